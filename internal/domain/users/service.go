package users

import (
	"context"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"wikiloult/app/internal/domain/errs"
	"wikiloult/app/internal/domain/identity"
)

// Service defines the user registry operations.
type Service interface {
	Register(ctx context.Context, cookie string) (*Identity, error)
	Get(ctx context.Context, cookie string) (*Identity, error)
	SetAllowed(ctx context.Context, actor identity.Persona, shortID string, allowed bool) (*Identity, error)
	RecordEdit(ctx context.Context, cookie string, ref EditRef) error
	IsAllowed(ctx context.Context, cookie string) (bool, error)
	PurgeIdle(ctx context.Context, actor identity.Persona) (int64, error)
	Profile(ctx context.Context, shortID string) (*Member, error)
	UpdateProfileText(ctx context.Context, cookie, markdown string) (*Identity, error)
	List(ctx context.Context, actor identity.Persona) ([]Member, error)
}

// Metrics receives counters about registry activity.
type Metrics interface {
	IdentityRegistered()
	IdentitiesPurged(count int64)
}

// Options wires the user registry with its dependencies.
type Options struct {
	Repository   Repository
	Renderer     Renderer
	Identity     *identity.Engine
	Metrics      Metrics
	Logger       *logrus.Logger
	SentryHub    *sentry.Hub
	StoreTimeout time.Duration
	PurgeGrace   time.Duration
	Now          func() time.Time
}

type service struct {
	repo         Repository
	renderer     Renderer
	identity     *identity.Engine
	metrics      Metrics
	logger       *logrus.Logger
	sentryHub    *sentry.Hub
	storeTimeout time.Duration
	purgeGrace   time.Duration
	now          func() time.Time
}

var _ Service = (*service)(nil)

const defaultStoreTimeout = 5 * time.Second

// NewService wires the user registry with its dependencies.
func NewService(opts Options) (Service, error) {
	if opts.Repository == nil {
		return nil, eris.New("users repository is required")
	}
	if opts.Renderer == nil {
		return nil, eris.New("markdown renderer is required")
	}
	if opts.Identity == nil {
		return nil, eris.New("identity engine is required")
	}

	timeout := opts.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &service{
		repo:         opts.Repository,
		renderer:     opts.Renderer,
		identity:     opts.Identity,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		sentryHub:    opts.SentryHub,
		storeTimeout: timeout,
		purgeGrace:   opts.PurgeGrace,
		now:          now,
	}, nil
}

// Register records the cookie as a known identity. Registering twice is not
// an error and returns the existing record.
func (s *service) Register(ctx context.Context, cookie string) (*Identity, error) {
	trimmed := strings.TrimSpace(cookie)
	if trimmed == "" {
		return nil, errs.NewValidationError("cookie", "must not be empty")
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	existing, err := s.repo.Get(storeCtx, trimmed)
	if err != nil {
		s.recordError(nil, err, "looking up identity")
		return nil, storeError(err, "looking up identity")
	}
	if existing != nil {
		return existing, nil
	}

	record := &Identity{
		Cookie:       trimmed,
		ShortID:      s.identity.ShortID(trimmed),
		RegisteredAt: s.now().UTC(),
	}

	created, err := s.repo.Create(storeCtx, record)
	if err != nil {
		s.recordError(logrus.Fields{"short_id": record.ShortID}, err, "registering identity")
		return nil, storeError(err, "registering identity")
	}

	if created {
		if s.metrics != nil {
			s.metrics.IdentityRegistered()
		}
		if s.logger != nil {
			s.logger.WithField("short_id", record.ShortID).Info("identity registered")
		}
		return record, nil
	}

	existing, err = s.repo.Get(storeCtx, trimmed)
	if err != nil {
		return nil, storeError(err, "reloading identity")
	}
	return existing, nil
}

func (s *service) Get(ctx context.Context, cookie string) (*Identity, error) {
	trimmed := strings.TrimSpace(cookie)
	if trimmed == "" {
		return nil, errs.NewValidationError("cookie", "must not be empty")
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	record, err := s.repo.Get(storeCtx, trimmed)
	if err != nil {
		s.recordError(nil, err, "looking up identity")
		return nil, storeError(err, "looking up identity")
	}
	if record == nil {
		return nil, eris.Wrap(errs.ErrNotFound, "identity is not registered")
	}

	return record, nil
}

func (s *service) SetAllowed(ctx context.Context, actor identity.Persona, shortID string, allowed bool) (*Identity, error) {
	if !actor.IsPrivileged {
		return nil, eris.Wrap(errs.ErrNotAllowed, "changing editor permissions")
	}

	trimmed := strings.TrimSpace(shortID)
	if trimmed == "" {
		return nil, errs.NewValidationError("userid", "must not be empty")
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	record, err := s.repo.SetAllowed(storeCtx, trimmed, allowed)
	if err != nil {
		s.recordError(logrus.Fields{"short_id": trimmed}, err, "updating editor permission")
		return nil, storeError(err, "updating editor permission")
	}
	if record == nil {
		return nil, eris.Wrapf(errs.ErrNotFound, "identity %s", trimmed)
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"short_id": trimmed,
			"allowed":  allowed,
			"actor":    actor.ShortID,
		}).Info("editor permission changed")
	}

	return record, nil
}

func (s *service) RecordEdit(ctx context.Context, cookie string, ref EditRef) error {
	trimmed := strings.TrimSpace(cookie)
	if trimmed == "" {
		return errs.NewValidationError("cookie", "must not be empty")
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.repo.AppendEdit(storeCtx, trimmed, ref); err != nil {
		s.recordError(logrus.Fields{"page": ref.PageName}, err, "appending edit reference")
		return storeError(err, "appending edit reference")
	}

	return nil
}

// IsAllowed reports whether the cookie may edit. Unknown cookies are not allowed.
func (s *service) IsAllowed(ctx context.Context, cookie string) (bool, error) {
	trimmed := strings.TrimSpace(cookie)
	if trimmed == "" {
		return false, nil
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	record, err := s.repo.Get(storeCtx, trimmed)
	if err != nil {
		s.recordError(nil, err, "checking editor permission")
		return false, storeError(err, "checking editor permission")
	}

	return record != nil && record.Allowed, nil
}

func (s *service) PurgeIdle(ctx context.Context, actor identity.Persona) (int64, error) {
	if !actor.IsPrivileged {
		return 0, eris.Wrap(errs.ErrNotAllowed, "purging idle identities")
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	cutoff := s.now().UTC().Add(-s.purgeGrace)
	removed, err := s.repo.PurgeIdle(storeCtx, cutoff)
	if err != nil {
		s.recordError(nil, err, "purging idle identities")
		return 0, storeError(err, "purging idle identities")
	}

	if s.metrics != nil {
		s.metrics.IdentitiesPurged(removed)
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"removed": removed, "actor": actor.ShortID}).Info("idle identities purged")
	}

	return removed, nil
}

func (s *service) Profile(ctx context.Context, shortID string) (*Member, error) {
	trimmed := strings.TrimSpace(shortID)
	if trimmed == "" {
		return nil, errs.NewValidationError("short_id", "must not be empty")
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	record, err := s.repo.GetByShortID(storeCtx, trimmed)
	if err != nil {
		s.recordError(logrus.Fields{"short_id": trimmed}, err, "loading user profile")
		return nil, storeError(err, "loading user profile")
	}
	if record == nil {
		return nil, eris.Wrapf(errs.ErrNotFound, "identity %s", trimmed)
	}

	return &Member{Identity: *record, Persona: s.identity.Derive(record.Cookie)}, nil
}

func (s *service) UpdateProfileText(ctx context.Context, cookie, markdown string) (*Identity, error) {
	trimmed := strings.TrimSpace(cookie)
	if trimmed == "" {
		return nil, eris.Wrap(errs.ErrNotAllowed, "anonymous visitors have no profile")
	}

	html, err := s.renderer.Render(ctx, markdown)
	if err != nil {
		s.recordError(nil, err, "rendering profile text")
		return nil, eris.Wrap(err, "rendering profile text")
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.repo.UpdateProfile(storeCtx, trimmed, markdown, html); err != nil {
		if !eris.Is(err, errs.ErrNotFound) {
			s.recordError(nil, err, "updating profile text")
		}
		return nil, storeError(err, "updating profile text")
	}

	record, err := s.repo.Get(storeCtx, trimmed)
	if err != nil {
		return nil, storeError(err, "reloading identity")
	}
	if record == nil {
		return nil, eris.Wrap(errs.ErrNotFound, "identity is not registered")
	}

	return record, nil
}

func (s *service) List(ctx context.Context, actor identity.Persona) ([]Member, error) {
	if !actor.IsPrivileged {
		return nil, eris.Wrap(errs.ErrNotAllowed, "listing identities")
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	records, err := s.repo.List(storeCtx)
	if err != nil {
		s.recordError(nil, err, "listing identities")
		return nil, storeError(err, "listing identities")
	}

	members := make([]Member, 0, len(records))
	for _, record := range records {
		members = append(members, Member{Identity: record, Persona: s.identity.Derive(record.Cookie)})
	}

	return members, nil
}

func (s *service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *service) recordError(fields logrus.Fields, err error, message string) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("error", err.Error())
		if len(fields) > 0 {
			entry = entry.WithFields(fields)
		}
		entry.Error(message)
	}

	if s.sentryHub != nil {
		s.sentryHub.CaptureException(err)
	}
}

func storeError(err error, message string) error {
	if eris.Is(err, errs.ErrNotFound) || eris.Is(err, errs.ErrStoreUnavailable) {
		return eris.Wrap(err, message)
	}
	return errs.StoreFailure(err, message)
}
