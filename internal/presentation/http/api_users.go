package http

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"wikiloult/app/internal/domain/errs"
	"wikiloult/app/internal/domain/identity"
	"wikiloult/app/internal/domain/users"
)

const identityCookieMaxAge = 10 * 365 * 24 * time.Hour

type editRefBody struct {
	EditID   string    `json:"edit_id"`
	Name     string    `json:"name"`
	EditedAt time.Time `json:"edited_at"`
}

type identityBody struct {
	Persona         identity.Persona `json:"persona"`
	Allowed         bool             `json:"allowed"`
	RegisteredAt    time.Time        `json:"registered_at"`
	EditCount       int              `json:"edit_count"`
	ProfileMarkdown string           `json:"profile_markdown,omitempty"`
	ProfileHTML     string           `json:"profile_html,omitempty"`
	Edits           []editRefBody    `json:"edits,omitempty"`
}

type memberBody struct {
	ShortID      string    `json:"short_id"`
	DisplayName  string    `json:"display_name"`
	AvatarID     int       `json:"avatar_id"`
	Color        string    `json:"color"`
	Allowed      bool      `json:"allowed"`
	RegisteredAt time.Time `json:"registered_at"`
	EditCount    int       `json:"edit_count"`
}

type registerOutput struct {
	Status    int
	SetCookie string `header:"Set-Cookie"`
	Body      identityBody
}

type identityOutput struct {
	Body identityBody
}

type profileInput struct {
	Body struct {
		Content string `json:"content,omitempty"`
	}
}

type userInput struct {
	ShortID string `path:"short_id" maxLength:"16"`
}

type memberListOutput struct {
	Body []memberBody
}

type permissionInput struct {
	UserID string `path:"userid" maxLength:"16"`
	Action string `query:"action" enum:"allow,block" required:"true"`
}

type memberOutput struct {
	Body memberBody
}

type purgeOutput struct {
	Body struct {
		Removed int64 `json:"removed"`
	}
}

func (s *Server) registerUserRoutes() {
	huma.Post(s.api, "/api/register", s.registerHandler, apiOperation("Register the visitor cookie", "users"))
	huma.Get(s.api, "/api/me", s.meHandler, apiOperation("Current identity", "users"))
	huma.Put(s.api, "/api/me/profile", s.updateProfileHandler, apiOperation("Update the profile text", "users"))
	huma.Get(s.api, "/api/users/{short_id}", s.userHandler, apiOperation("Public user profile", "users"))
}

func (s *Server) registerAdminRoutes() {
	admin := func(op *huma.Operation) {
		op.Middlewares = append(op.Middlewares, s.requireAdminMiddleware())
	}

	huma.Get(s.api, "/api/admin/users", s.listUsersHandler, apiOperation("List identities", "admin", admin))
	huma.Post(s.api, "/api/admin/users/{userid}", s.setPermissionHandler, apiOperation("Allow or block an editor", "admin", admin))
	huma.Post(s.api, "/api/admin/purge", s.purgeHandler, apiOperation("Purge idle identities", "admin", admin))
}

// registerHandler records the visitor cookie, minting one for visitors that
// have none yet. New identities are throttled per client address.
func (s *Server) registerHandler(ctx context.Context, _ *struct{}) (*registerOutput, error) {
	persona, ok := PersonaFromContext(ctx)
	cookie := persona.Cookie()
	if !ok || cookie == "" {
		cookie = uuid.NewString()
	}

	existing, err := s.users.Get(ctx, cookie)
	switch {
	case err == nil:
	case eris.Is(err, errs.ErrNotFound):
		existing = nil
	default:
		return nil, s.apiError(ctx, err, "looking up identity", nil)
	}

	if existing == nil && s.registration != nil {
		ip := clientIPFromContext(ctx)
		if !s.registration.Allow(ip) {
			if s.metrics != nil {
				s.metrics.RateLimited("registration")
			}
			if s.logger != nil {
				s.logger.WithFields(logrus.Fields{"ip": ip, "request_id": RequestIDFromContext(ctx)}).Warn("registration rate limited")
			}
			return nil, huma.NewError(stdhttp.StatusTooManyRequests, "Une seule inscription par jour et par adresse.")
		}
	}

	record := existing
	if record == nil {
		record, err = s.users.Register(ctx, cookie)
		if err != nil {
			return nil, s.apiError(ctx, err, "registering identity", nil)
		}
	}

	return &registerOutput{
		Status:    stdhttp.StatusOK,
		SetCookie: s.identityCookie(cookie).String(),
		Body:      toIdentityBody(*record, s.identity.Derive(cookie)),
	}, nil
}

func (s *Server) meHandler(ctx context.Context, _ *struct{}) (*identityOutput, error) {
	persona, ok := PersonaFromContext(ctx)
	if !ok {
		return nil, s.apiError(ctx, eris.Wrap(errs.ErrNotFound, "visitor has no identity cookie"), "loading identity", nil)
	}

	record, err := s.users.Get(ctx, persona.Cookie())
	if err != nil {
		return nil, s.apiError(ctx, err, "loading identity", logrus.Fields{"short_id": persona.ShortID})
	}

	return &identityOutput{Body: toIdentityBody(*record, persona)}, nil
}

func (s *Server) updateProfileHandler(ctx context.Context, input *profileInput) (*identityOutput, error) {
	persona, _ := PersonaFromContext(ctx)
	record, err := s.users.UpdateProfileText(ctx, persona.Cookie(), input.Body.Content)
	if err != nil {
		return nil, s.apiError(ctx, err, "updating profile", logrus.Fields{"short_id": persona.ShortID})
	}

	return &identityOutput{Body: toIdentityBody(*record, persona)}, nil
}

func (s *Server) userHandler(ctx context.Context, input *userInput) (*identityOutput, error) {
	member, err := s.users.Profile(ctx, input.ShortID)
	if err != nil {
		return nil, s.apiError(ctx, err, "loading user profile", logrus.Fields{"short_id": input.ShortID})
	}

	body := toIdentityBody(member.Identity, member.Persona)
	body.ProfileMarkdown = ""
	return &identityOutput{Body: body}, nil
}

func (s *Server) listUsersHandler(ctx context.Context, _ *struct{}) (*memberListOutput, error) {
	persona, _ := PersonaFromContext(ctx)
	members, err := s.users.List(ctx, persona)
	if err != nil {
		return nil, s.apiError(ctx, err, "listing identities", nil)
	}

	out := &memberListOutput{Body: make([]memberBody, 0, len(members))}
	for _, member := range members {
		out.Body = append(out.Body, toMemberBody(member.Identity, member.Persona))
	}
	return out, nil
}

func (s *Server) setPermissionHandler(ctx context.Context, input *permissionInput) (*memberOutput, error) {
	persona, _ := PersonaFromContext(ctx)
	record, err := s.users.SetAllowed(ctx, persona, input.UserID, input.Action == "allow")
	if err != nil {
		return nil, s.apiError(ctx, err, "changing editor permission", logrus.Fields{"short_id": input.UserID})
	}

	return &memberOutput{Body: toMemberBody(*record, s.identity.Derive(record.Cookie))}, nil
}

func (s *Server) purgeHandler(ctx context.Context, _ *struct{}) (*purgeOutput, error) {
	persona, _ := PersonaFromContext(ctx)
	removed, err := s.users.PurgeIdle(ctx, persona)
	if err != nil {
		return nil, s.apiError(ctx, err, "purging idle identities", nil)
	}

	out := &purgeOutput{}
	out.Body.Removed = removed
	return out, nil
}

// requireAdminMiddleware rejects visitors whose cookie is not privileged.
func (s *Server) requireAdminMiddleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if persona, ok := PersonaFromContext(ctx.Context()); ok && persona.IsPrivileged {
			next(ctx)
			return
		}

		if err := huma.WriteErr(s.api, ctx, stdhttp.StatusForbidden, "Vous n'avez pas le droit de faire ça."); err != nil && s.logger != nil {
			s.logger.WithError(err).Error("writing forbidden response failed")
		}
	}
}

func (s *Server) identityCookie(value string) *stdhttp.Cookie {
	return &stdhttp.Cookie{
		Name:     IdentityCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   int(identityCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: stdhttp.SameSiteLaxMode,
	}
}

func toIdentityBody(record users.Identity, persona identity.Persona) identityBody {
	body := identityBody{
		Persona:         persona,
		Allowed:         record.Allowed,
		RegisteredAt:    record.RegisteredAt,
		EditCount:       record.EditCount,
		ProfileMarkdown: record.ProfileMarkdown,
		ProfileHTML:     record.ProfileHTML,
	}
	if body.EditCount < len(record.Edits) {
		body.EditCount = len(record.Edits)
	}
	for _, ref := range record.Edits {
		body.Edits = append(body.Edits, editRefBody{
			EditID:   ref.EditID.String(),
			Name:     ref.PageName,
			EditedAt: ref.EditedAt,
		})
	}
	return body
}

func toMemberBody(record users.Identity, persona identity.Persona) memberBody {
	count := record.EditCount
	if count < len(record.Edits) {
		count = len(record.Edits)
	}
	return memberBody{
		ShortID:      record.ShortID,
		DisplayName:  persona.DisplayName,
		AvatarID:     persona.AvatarID,
		Color:        persona.CSSColor(),
		Allowed:      record.Allowed,
		RegisteredAt: record.RegisteredAt,
		EditCount:    count,
	}
}
