package http

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/danielgtaylor/huma/v2"
	"github.com/sirupsen/logrus"

	"wikiloult/app/internal/domain/identity"
	"wikiloult/app/internal/presentation/http/templates"
)

const (
	htmlContentType = "text/html; charset=utf-8"
	homeEditsLimit  = 15
	viewTimeLayout  = "02/01/2006 15:04"
)

type htmlResponse struct {
	Status      int
	ContentType string `header:"Content-Type"`
	Location    string `header:"Location"`
	Body        []byte
}

type pageViewInput struct {
	Name string `path:"name" maxLength:"255"`
}

type userViewInput struct {
	ShortID string `path:"short_id" maxLength:"16"`
}

func (s *Server) registerViewRoutes() {
	huma.Get(s.api, "/", s.homeHandler, htmlOperation("Wikiloult home", stdhttp.StatusServiceUnavailable, stdhttp.StatusInternalServerError))
	huma.Get(s.api, "/pages", s.indexHandler, htmlOperation("All pages by letter", stdhttp.StatusServiceUnavailable, stdhttp.StatusInternalServerError))
	huma.Get(s.api, "/page/{name}", s.pageViewHandler, htmlOperation(
		"Wiki page",
		stdhttp.StatusNotFound,
		stdhttp.StatusServiceUnavailable,
		stdhttp.StatusInternalServerError,
	))
	huma.Get(s.api, "/user/{short_id}", s.userViewHandler, htmlOperation(
		"User page",
		stdhttp.StatusNotFound,
		stdhttp.StatusServiceUnavailable,
		stdhttp.StatusInternalServerError,
	))
}

func (s *Server) homeHandler(ctx context.Context, _ *struct{}) (*htmlResponse, error) {
	count, err := s.wiki.Count(ctx)
	if err != nil {
		return s.renderErrorResponse(ctx, err, "counting pages", nil)
	}

	edits, err := s.wiki.LastEdited(ctx, homeEditsLimit)
	if err != nil {
		return s.renderErrorResponse(ctx, err, "listing last edits", nil)
	}

	data := templates.HomePageData{PageCount: count, RecentEdits: make([]templates.EditView, 0, len(edits))}
	for i, edit := range edits {
		data.RecentEdits = append(data.RecentEdits, templates.EditView{
			PageName: edit.PageName,
			Title:    edit.Title,
			Editor:   editorView(edit.Editor),
			When:     formatViewTime(edit.EditedAt),
			Count:    1,
			Index:    i,
		})
	}

	return s.renderPage(ctx, templates.HomePage(data), "rendering home page")
}

func (s *Server) indexHandler(ctx context.Context, _ *struct{}) (*htmlResponse, error) {
	groups, err := s.wiki.AllPagesByLetter(ctx)
	if err != nil {
		return s.renderErrorResponse(ctx, err, "listing pages", nil)
	}

	data := templates.IndexPageData{Letters: make([]templates.LetterView, 0, len(groups))}
	for _, group := range groups {
		letter := templates.LetterView{Letter: group.Letter, Pages: make([]templates.PageLink, 0, len(group.Pages))}
		for _, page := range group.Pages {
			letter.Pages = append(letter.Pages, templates.PageLink{Name: page.Name, Title: page.Title})
		}
		data.Letters = append(data.Letters, letter)
	}

	return s.renderPage(ctx, templates.IndexPage(data), "rendering page index")
}

func (s *Server) pageViewHandler(ctx context.Context, input *pageViewInput) (*htmlResponse, error) {
	name := strings.TrimSpace(input.Name)
	view, err := s.wiki.GetPage(ctx, name)
	if err != nil {
		return s.renderErrorResponse(ctx, err, "loading wiki page", logrus.Fields{"page": name})
	}

	persona, _ := PersonaFromContext(ctx)
	data := templates.WikiPageData{
		Name:     view.Page.Name,
		Title:    view.Page.Title,
		HTML:     view.Page.HTML,
		Revision: view.Page.Revision,
		History:  make([]templates.EditView, 0, len(view.History)),
		HasAudio: s.hasAudio(view.Page.Name),
		CanAdmin: persona.IsPrivileged,
	}
	for _, entry := range view.History {
		data.History = append(data.History, templates.EditView{
			PageName: view.Page.Name,
			Title:    entry.Title,
			Editor:   editorView(entry.Editor),
			When:     formatViewTime(entry.LastEditedAt),
			Count:    entry.Count,
			Index:    entry.Index,
		})
	}

	return s.renderPage(ctx, templates.WikiPage(data), "rendering wiki page")
}

func (s *Server) userViewHandler(ctx context.Context, input *userViewInput) (*htmlResponse, error) {
	shortID := strings.TrimSpace(input.ShortID)
	member, err := s.users.Profile(ctx, shortID)
	if err != nil {
		return s.renderErrorResponse(ctx, err, "loading user page", logrus.Fields{"short_id": shortID})
	}

	edits, err := s.wiki.EditsByEditor(ctx, member.Identity.Cookie)
	if err != nil {
		return s.renderErrorResponse(ctx, err, "listing user edits", logrus.Fields{"short_id": shortID})
	}

	editor := editorView(member.Persona)
	data := templates.UserPageData{
		Editor:      editor,
		Job:         member.Persona.Profile.Job,
		Age:         member.Persona.Profile.Age,
		City:        member.Persona.Profile.City,
		ProfileHTML: member.Identity.ProfileHTML,
		Edits:       make([]templates.EditView, 0, len(edits)),
	}
	for i, edit := range edits {
		title := edit.Title
		if title == "" {
			title = edit.PageName
		}
		data.Edits = append(data.Edits, templates.EditView{
			PageName: edit.PageName,
			Title:    title,
			Editor:   editor,
			When:     formatViewTime(edit.EditedAt),
			Count:    1,
			Index:    i,
		})
	}

	return s.renderPage(ctx, templates.UserPage(data), "rendering user page")
}

func (s *Server) hasAudio(name string) bool {
	if s.audioFolder == "" || name == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(s.audioFolder, name+".wav"))
	return err == nil && !info.IsDir()
}

func (s *Server) renderPage(ctx context.Context, component templ.Component, message string) (*htmlResponse, error) {
	body, err := renderComponent(ctx, component)
	if err != nil {
		s.recordError(ctx, err, message, nil)
		return s.renderStatusPage(ctx, stdhttp.StatusInternalServerError, errorFallbackMessage), nil
	}
	return newHTMLResponse(stdhttp.StatusOK, body), nil
}

// renderErrorResponse maps a domain error to a status page. Only server side
// failures are logged.
func (s *Server) renderErrorResponse(ctx context.Context, err error, message string, fields logrus.Fields) (*htmlResponse, error) {
	status, userMessage := statusFor(err)
	if status >= stdhttp.StatusInternalServerError {
		s.recordError(ctx, err, message, fields)
	}
	return s.renderStatusPage(ctx, status, userMessage), nil
}

func (s *Server) renderStatusPage(ctx context.Context, status int, message string) *htmlResponse {
	label := fmt.Sprintf("%d %s", status, stdhttp.StatusText(status))
	body, err := renderComponent(ctx, templates.ErrorPage(templates.ErrorPageData{
		StatusLabel: label,
		Message:     message,
	}))
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.recordError(ctx, err, "rendering error page", logrus.Fields{"status": status})
		}
		body = []byte(fmt.Sprintf("<html><body><h1>%s</h1><p>%s</p></body></html>", label, message))
	}
	return newHTMLResponse(status, body)
}

func newHTMLResponse(status int, body []byte) *htmlResponse {
	return &htmlResponse{
		Status:      status,
		ContentType: htmlContentType,
		Body:        body,
	}
}

func htmlOperation(summary string, statuses ...int) func(op *huma.Operation) {
	return func(op *huma.Operation) {
		if summary != "" {
			op.Summary = summary
		}
		op.Tags = append(op.Tags, "views")
		if op.Responses == nil {
			op.Responses = map[string]*huma.Response{}
		}

		statusCodes := append([]int{stdhttp.StatusOK}, statuses...)
		for _, status := range statusCodes {
			code := strconv.Itoa(status)
			op.Responses[code] = &huma.Response{
				Description: stdhttp.StatusText(status),
				Content: map[string]*huma.MediaType{
					htmlContentType: {
						Schema: &huma.Schema{Type: "string"},
					},
				},
			}
		}
	}
}

func editorView(persona identity.Persona) templates.EditorView {
	return templates.EditorView{
		ShortID:     persona.ShortID,
		DisplayName: persona.DisplayName,
		AvatarImage: persona.AvatarImage(),
		Color:       persona.CSSColor(),
	}
}

func formatViewTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(viewTimeLayout)
}
