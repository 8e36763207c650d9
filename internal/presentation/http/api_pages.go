package http

import (
	"context"
	stdhttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sirupsen/logrus"

	"wikiloult/app/internal/domain/identity"
	"wikiloult/app/internal/domain/wiki"
)

type editorBody struct {
	ShortID     string `json:"short_id"`
	DisplayName string `json:"display_name"`
	AvatarID    int    `json:"avatar_id"`
	Color       string `json:"color"`
}

type historyBody struct {
	Index        int        `json:"index"`
	EditID       string     `json:"edit_id"`
	Title        string     `json:"title"`
	Editor       editorBody `json:"editor"`
	EditedAt     time.Time  `json:"edited_at"`
	LastEditedAt *time.Time `json:"last_edited_at,omitempty"`
	Count        int        `json:"count,omitempty"`
}

type pageBody struct {
	Name       string        `json:"name"`
	Title      string        `json:"title"`
	Markdown   string        `json:"markdown"`
	HTML       string        `json:"html"`
	Revision   int           `json:"revision"`
	CreatedAt  time.Time     `json:"created_at"`
	LastEditAt time.Time     `json:"last_edit_at"`
	History    []historyBody `json:"history,omitempty"`
}

type saveBody struct {
	Preview     bool      `json:"preview"`
	PreviewHTML string    `json:"preview_html,omitempty"`
	EditID      string    `json:"edit_id,omitempty"`
	Page        *pageBody `json:"page,omitempty"`
}

type pageLinkBody struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

type letterBody struct {
	Letter string         `json:"letter"`
	Pages  []pageLinkBody `json:"pages"`
}

type searchResultBody struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
	Score   int    `json:"score"`
}

type recentEditBody struct {
	EditID   string     `json:"edit_id"`
	Name     string     `json:"name"`
	Title    string     `json:"title"`
	Excerpt  string     `json:"excerpt"`
	Editor   editorBody `json:"editor"`
	EditedAt time.Time  `json:"edited_at"`
}

type createPageInput struct {
	Body struct {
		Name    string `json:"name,omitempty" maxLength:"255"`
		Title   string `json:"title,omitempty"`
		Content string `json:"content,omitempty"`
		Preview bool   `json:"preview,omitempty"`
	}
}

type editPageInput struct {
	Name string `path:"name" maxLength:"255"`
	Body struct {
		Title    string `json:"title,omitempty"`
		Content  string `json:"content,omitempty"`
		Preview  bool   `json:"preview,omitempty"`
		Revision int    `json:"revision,omitempty" minimum:"0" doc:"Revision the edit started from. Zero skips the check."`
	}
}

type pageNameInput struct {
	Name string `path:"name" maxLength:"255"`
}

type historyInput struct {
	Name  string `path:"name" maxLength:"255"`
	Order string `query:"order" enum:"asc,desc" default:"desc"`
}

type restoreInput struct {
	Name   string `path:"name" maxLength:"255"`
	EditID int    `query:"edit_id" required:"true" minimum:"0" doc:"Position of the edit in ascending history."`
}

type searchInput struct {
	Query string `query:"query"`
	Limit int    `query:"limit" default:"10" minimum:"1" maximum:"50"`
}

type recentInput struct {
	Limit int `query:"limit" default:"30" minimum:"1" maximum:"100"`
}

type saveOutput struct {
	Status   int
	Location string `header:"Location"`
	Body     saveBody
}

type pageOutput struct {
	Body pageBody
}

type letterListOutput struct {
	Body []letterBody
}

type historyOutput struct {
	Body []historyBody
}

type searchOutput struct {
	Body []searchResultBody
}

type redirectOutput struct {
	Status   int
	Location string `header:"Location"`
}

type feedOutput struct {
	Body []wiki.FeedItem
}

type recentOutput struct {
	Body []recentEditBody
}

func (s *Server) registerPageRoutes() {
	huma.Get(s.api, "/api/pages", s.listPagesHandler, apiOperation("List pages by letter", "pages"))
	huma.Post(s.api, "/api/pages", s.createPageHandler, apiOperation("Create a page", "pages", func(op *huma.Operation) {
		op.DefaultStatus = stdhttp.StatusCreated
	}))
	huma.Get(s.api, "/api/pages/{name}", s.getPageHandler, apiOperation("Fetch a page", "pages"))
	huma.Post(s.api, "/api/pages/{name}", s.editPageHandler, apiOperation("Edit a page", "pages"))
	huma.Get(s.api, "/api/pages/{name}/history", s.historyHandler, apiOperation("Page history", "pages"))
	huma.Post(s.api, "/api/pages/{name}/restore", s.restoreHandler, apiOperation("Restore an old edit", "pages"))

	huma.Get(s.api, "/api/search", s.searchHandler, apiOperation("Search pages", "discovery"))
	huma.Get(s.api, "/api/random", s.randomHandler, apiOperation("Redirect to a random page", "discovery", func(op *huma.Operation) {
		op.DefaultStatus = stdhttp.StatusFound
	}))
	huma.Get(s.api, "/api/last_edits", s.lastEditsHandler, apiOperation("Latest edits feed", "discovery"))
	huma.Get(s.api, "/api/recent", s.recentHandler, apiOperation("Recent edits across pages", "discovery"))
}

func (s *Server) listPagesHandler(ctx context.Context, _ *struct{}) (*letterListOutput, error) {
	groups, err := s.wiki.AllPagesByLetter(ctx)
	if err != nil {
		return nil, s.apiError(ctx, err, "listing pages", nil)
	}

	out := &letterListOutput{Body: make([]letterBody, 0, len(groups))}
	for _, group := range groups {
		letter := letterBody{Letter: group.Letter, Pages: make([]pageLinkBody, 0, len(group.Pages))}
		for _, page := range group.Pages {
			letter.Pages = append(letter.Pages, pageLinkBody{Name: page.Name, Title: page.Title})
		}
		out.Body = append(out.Body, letter)
	}
	return out, nil
}

func (s *Server) createPageHandler(ctx context.Context, input *createPageInput) (*saveOutput, error) {
	persona, _ := PersonaFromContext(ctx)
	result, err := s.wiki.CreatePage(ctx, wiki.CreateInput{
		Name:     input.Body.Name,
		Title:    input.Body.Title,
		Markdown: input.Body.Content,
		Editor:   persona,
		Preview:  input.Body.Preview,
	})
	if err != nil {
		return nil, s.apiError(ctx, err, "creating page", logrus.Fields{"page": input.Body.Name})
	}

	return newSaveOutput(result, stdhttp.StatusCreated), nil
}

func (s *Server) getPageHandler(ctx context.Context, input *pageNameInput) (*pageOutput, error) {
	view, err := s.wiki.GetPage(ctx, input.Name)
	if err != nil {
		return nil, s.apiError(ctx, err, "loading page", logrus.Fields{"page": input.Name})
	}

	body := toPageBody(view.Page)
	body.History = make([]historyBody, 0, len(view.History))
	for _, entry := range view.History {
		last := entry.LastEditedAt
		body.History = append(body.History, historyBody{
			Index:        entry.Index,
			EditID:       entry.EditID.String(),
			Title:        entry.Title,
			Editor:       toEditorBody(entry.Editor),
			EditedAt:     entry.EditedAt,
			LastEditedAt: &last,
			Count:        entry.Count,
		})
	}

	return &pageOutput{Body: body}, nil
}

func (s *Server) editPageHandler(ctx context.Context, input *editPageInput) (*saveOutput, error) {
	persona, _ := PersonaFromContext(ctx)
	result, err := s.wiki.EditPage(ctx, wiki.EditInput{
		Name:             input.Name,
		Title:            input.Body.Title,
		Markdown:         input.Body.Content,
		Editor:           persona,
		Preview:          input.Body.Preview,
		ExpectedRevision: input.Body.Revision,
	})
	if err != nil {
		return nil, s.apiError(ctx, err, "editing page", logrus.Fields{"page": input.Name})
	}

	return newSaveOutput(result, stdhttp.StatusOK), nil
}

func (s *Server) historyHandler(ctx context.Context, input *historyInput) (*historyOutput, error) {
	order := wiki.Descending
	if input.Order == "asc" {
		order = wiki.Ascending
	}

	entries, err := s.wiki.History(ctx, input.Name, order)
	if err != nil {
		return nil, s.apiError(ctx, err, "loading page history", logrus.Fields{"page": input.Name})
	}

	out := &historyOutput{Body: make([]historyBody, 0, len(entries))}
	for _, entry := range entries {
		out.Body = append(out.Body, historyBody{
			Index:    entry.Index,
			EditID:   entry.Edit.ID.String(),
			Title:    entry.Title,
			Editor:   toEditorBody(entry.Editor),
			EditedAt: entry.EditedAt,
		})
	}
	return out, nil
}

func (s *Server) restoreHandler(ctx context.Context, input *restoreInput) (*saveOutput, error) {
	persona, _ := PersonaFromContext(ctx)
	result, err := s.wiki.Restore(ctx, input.Name, input.EditID, persona)
	if err != nil {
		return nil, s.apiError(ctx, err, "restoring page", logrus.Fields{"page": input.Name, "edit_index": input.EditID})
	}

	return newSaveOutput(result, stdhttp.StatusOK), nil
}

func (s *Server) searchHandler(ctx context.Context, input *searchInput) (*searchOutput, error) {
	query := strings.TrimSpace(input.Query)
	results, err := s.wiki.Search(ctx, query, input.Limit)
	if err != nil {
		return nil, s.apiError(ctx, err, "search request failed", logrus.Fields{"query": query})
	}

	out := &searchOutput{Body: make([]searchResultBody, 0, len(results))}
	for _, result := range results {
		out.Body = append(out.Body, searchResultBody(result))
	}
	return out, nil
}

func (s *Server) randomHandler(ctx context.Context, _ *struct{}) (*redirectOutput, error) {
	page, err := s.wiki.RandomPage(ctx)
	if err != nil {
		return nil, s.apiError(ctx, err, "selecting random page", nil)
	}

	return &redirectOutput{Status: stdhttp.StatusFound, Location: pagePath(page.Name)}, nil
}

func (s *Server) lastEditsHandler(ctx context.Context, _ *struct{}) (*feedOutput, error) {
	items, err := s.wiki.Feed(ctx)
	if err != nil {
		return nil, s.apiError(ctx, err, "building edits feed", nil)
	}
	return &feedOutput{Body: items}, nil
}

func (s *Server) recentHandler(ctx context.Context, input *recentInput) (*recentOutput, error) {
	edits, err := s.wiki.LastEdited(ctx, input.Limit)
	if err != nil {
		return nil, s.apiError(ctx, err, "listing recent edits", nil)
	}

	out := &recentOutput{Body: make([]recentEditBody, 0, len(edits))}
	for _, edit := range edits {
		out.Body = append(out.Body, recentEditBody{
			EditID:   edit.EditID.String(),
			Name:     edit.PageName,
			Title:    edit.Title,
			Excerpt:  edit.Excerpt,
			Editor:   toEditorBody(edit.Editor),
			EditedAt: edit.EditedAt,
		})
	}
	return out, nil
}

func apiOperation(summary, tag string, extra ...func(op *huma.Operation)) func(op *huma.Operation) {
	return func(op *huma.Operation) {
		op.Summary = summary
		op.Tags = append(op.Tags, tag)
		for _, fn := range extra {
			fn(op)
		}
	}
}

func newSaveOutput(result *wiki.SaveResult, status int) *saveOutput {
	if result.Preview {
		return &saveOutput{
			Status: stdhttp.StatusOK,
			Body:   saveBody{Preview: true, PreviewHTML: result.PreviewHTML},
		}
	}

	out := &saveOutput{Status: status}
	if result.Page != nil {
		page := toPageBody(*result.Page)
		out.Body.Page = &page
		out.Location = pagePath(result.Page.Name)
	}
	if result.Edit != nil {
		out.Body.EditID = result.Edit.ID.String()
	}
	return out
}

func toPageBody(page wiki.Page) pageBody {
	return pageBody{
		Name:       page.Name,
		Title:      page.Title,
		Markdown:   page.Markdown,
		HTML:       page.HTML,
		Revision:   page.Revision,
		CreatedAt:  page.CreatedAt,
		LastEditAt: page.LastEditAt,
	}
}

func toEditorBody(persona identity.Persona) editorBody {
	return editorBody{
		ShortID:     persona.ShortID,
		DisplayName: persona.DisplayName,
		AvatarID:    persona.AvatarID,
		Color:       persona.CSSColor(),
	}
}

func pagePath(name string) string {
	return "/page/" + url.PathEscape(name)
}
