package wiki

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"wikiloult/app/internal/domain/errs"
	"wikiloult/app/internal/domain/identity"
	domainspeech "wikiloult/app/internal/domain/speech"
)

// Service defines the page store and history operations of the wiki.
type Service interface {
	CreatePage(ctx context.Context, input CreateInput) (*SaveResult, error)
	EditPage(ctx context.Context, input EditInput) (*SaveResult, error)
	Restore(ctx context.Context, name string, editIndex int, actor identity.Persona) (*SaveResult, error)
	Preview(ctx context.Context, markdown string) (string, error)
	GetPage(ctx context.Context, name string) (*PageView, error)
	History(ctx context.Context, name string, order Order) ([]HistoryEntry, error)
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	RandomPage(ctx context.Context) (*Page, error)
	AllPagesByLetter(ctx context.Context) ([]LetterGroup, error)
	LastEdited(ctx context.Context, limit int) ([]LastEdit, error)
	Feed(ctx context.Context) ([]FeedItem, error)
	Count(ctx context.Context) (int64, error)
	RerenderAll(ctx context.Context) (int, error)
	EditsByEditor(ctx context.Context, cookie string) ([]Edit, error)
}

// CreateInput carries a page creation request.
type CreateInput struct {
	Name     string
	Title    string
	Markdown string
	Editor   identity.Persona
	Preview  bool
}

// EditInput carries a page edit request. ExpectedRevision, when non-zero,
// must match the page revision the editor started from.
type EditInput struct {
	Name             string
	Title            string
	Markdown         string
	Editor           identity.Persona
	Preview          bool
	ExpectedRevision int
}

// Metrics receives counters about page store activity.
type Metrics interface {
	PageSaved(kind string)
	PreviewRendered()
	SearchPerformed(hits int)
}

// Options wires the wiki service with its dependencies.
type Options struct {
	Repository   Repository
	Renderer     Renderer
	Editors      EditorRegistry
	Identity     *identity.Engine
	Speech       domainspeech.Synthesizer
	Metrics      Metrics
	Logger       *logrus.Logger
	SentryHub    *sentry.Hub
	StoreTimeout time.Duration
	Now          func() time.Time
}

type service struct {
	repo         Repository
	renderer     Renderer
	editors      EditorRegistry
	identity     *identity.Engine
	speech       domainspeech.Synthesizer
	metrics      Metrics
	logger       *logrus.Logger
	sentryHub    *sentry.Hub
	storeTimeout time.Duration
	now          func() time.Time
}

var _ Service = (*service)(nil)

const (
	defaultSearchLimit     = 10
	maxSearchLimit         = 50
	defaultLastEditedLimit = 30
	feedSize               = 3
	excerptLength          = 200
	defaultStoreTimeout    = 5 * time.Second
)

// NewService wires the wiki service with its dependencies.
func NewService(opts Options) (Service, error) {
	if opts.Repository == nil {
		return nil, eris.New("wiki repository is required")
	}
	if opts.Renderer == nil {
		return nil, eris.New("markdown renderer is required")
	}
	if opts.Editors == nil {
		return nil, eris.New("editor registry is required")
	}
	if opts.Identity == nil {
		return nil, eris.New("identity engine is required")
	}

	synth := opts.Speech
	if synth == nil {
		synth = domainspeech.Noop{}
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
		editors:      opts.Editors,
		identity:     opts.Identity,
		speech:       synth,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		sentryHub:    opts.SentryHub,
		storeTimeout: timeout,
		now:          now,
	}, nil
}

func (s *service) CreatePage(ctx context.Context, input CreateInput) (*SaveResult, error) {
	fields := createFields{
		Name:     strings.TrimSpace(input.Name),
		Title:    strings.TrimSpace(input.Title),
		Markdown: strings.TrimSpace(input.Markdown),
	}

	if input.Preview {
		return s.preview(ctx, input.Markdown)
	}

	if err := validateCreate(fields); err != nil {
		return nil, err
	}

	name := strings.ToLower(fields.Name)
	logFields := logrus.Fields{"page": name, "editor": input.Editor.ShortID}

	if err := s.authorize(ctx, input.Editor); err != nil {
		return nil, err
	}

	existing, err := s.getByName(ctx, name)
	if err != nil {
		s.recordError(logFields, err, "checking page name availability")
		return nil, err
	}
	if existing != nil {
		return nil, eris.Wrapf(errs.ErrDuplicateName, "creating page %s", name)
	}

	html, err := s.render(ctx, input.Markdown)
	if err != nil {
		s.recordError(logFields, err, "rendering new page")
		return nil, err
	}

	now := s.now().UTC()
	page := &Page{
		Name:       name,
		Title:      fields.Title,
		Markdown:   input.Markdown,
		HTML:       html,
		Revision:   1,
		CreatedAt:  now,
		LastEditAt: now,
	}
	edit := &Edit{
		ID:           uuid.New(),
		PageName:     name,
		EditorCookie: input.Editor.Cookie(),
		Title:        fields.Title,
		Markdown:     input.Markdown,
		EditedAt:     now,
	}

	storeCtx, cancel := s.storeContext(ctx)
	err = s.repo.Create(storeCtx, page, edit)
	cancel()
	if err != nil {
		s.recordError(logFields, err, "persisting new page")
		return nil, storeError(err, "creating page "+name)
	}

	if err := s.recordEdit(ctx, *edit); err != nil {
		s.recordError(logFields, err, "appending edit to editor identity")
		return nil, err
	}

	page.Edits = []Edit{*edit}
	s.afterSave(ctx, "create", page, input.Editor)

	return &SaveResult{Page: page, Edit: edit}, nil
}

func (s *service) EditPage(ctx context.Context, input EditInput) (*SaveResult, error) {
	fields := editFields{
		Name:     strings.TrimSpace(input.Name),
		Title:    strings.TrimSpace(input.Title),
		Markdown: strings.TrimSpace(input.Markdown),
	}

	if input.Preview {
		return s.preview(ctx, input.Markdown)
	}

	if err := validateEdit(fields); err != nil {
		return nil, err
	}

	name := strings.ToLower(fields.Name)
	logFields := logrus.Fields{"page": name, "editor": input.Editor.ShortID}

	if err := s.authorize(ctx, input.Editor); err != nil {
		return nil, err
	}

	html, err := s.render(ctx, input.Markdown)
	if err != nil {
		s.recordError(logFields, err, "rendering page edit")
		return nil, err
	}

	edit := &Edit{
		ID:           uuid.New(),
		PageName:     name,
		EditorCookie: input.Editor.Cookie(),
		Title:        fields.Title,
		Markdown:     input.Markdown,
		EditedAt:     s.now().UTC(),
	}

	storeCtx, cancel := s.storeContext(ctx)
	page, err := s.repo.ApplyEdit(storeCtx, edit, html, input.ExpectedRevision)
	cancel()
	if err != nil {
		if !eris.Is(err, errs.ErrNotFound) && !eris.Is(err, errs.ErrEditConflict) {
			s.recordError(logFields, err, "persisting page edit")
		}
		return nil, storeError(err, "editing page "+name)
	}
	if page == nil {
		return nil, eris.Wrapf(errs.ErrNotFound, "page %s", name)
	}

	if err := s.recordEdit(ctx, *edit); err != nil {
		s.recordError(logFields, err, "appending edit to editor identity")
		return nil, err
	}

	s.afterSave(ctx, "edit", page, input.Editor)

	return &SaveResult{Page: page, Edit: edit}, nil
}

func (s *service) Restore(ctx context.Context, name string, editIndex int, actor identity.Persona) (*SaveResult, error) {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if !actor.IsPrivileged {
		return nil, eris.Wrapf(errs.ErrNotAllowed, "restoring page %s", trimmed)
	}

	page, err := s.getWithHistory(ctx, trimmed)
	if err != nil {
		s.recordError(logrus.Fields{"page": trimmed}, err, "loading page history for restore")
		return nil, err
	}
	if page == nil {
		return nil, eris.Wrapf(errs.ErrNotFound, "page %s", trimmed)
	}

	entries := ResolveTitles(page)
	if editIndex < 0 || editIndex >= len(entries) {
		return nil, eris.Wrapf(errs.ErrNotFound, "edit %d of page %s", editIndex, trimmed)
	}

	selected := entries[editIndex]
	result, err := s.EditPage(ctx, EditInput{
		Name:     trimmed,
		Title:    selected.Title,
		Markdown: selected.Edit.Markdown,
		Editor:   actor,
	})
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"page":          trimmed,
			"restored_from": selected.Edit.ID.String(),
			"edit_id":       result.Edit.ID.String(),
		}).Info("page restored")
	}

	return result, nil
}

func (s *service) Preview(ctx context.Context, markdown string) (string, error) {
	result, err := s.preview(ctx, markdown)
	if err != nil {
		return "", err
	}
	return result.PreviewHTML, nil
}

func (s *service) GetPage(ctx context.Context, name string) (*PageView, error) {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return nil, errs.NewValidationError("name", "must not be empty")
	}

	page, err := s.getWithHistory(ctx, trimmed)
	if err != nil {
		s.recordError(logrus.Fields{"page": trimmed}, err, "retrieving page from repository")
		return nil, err
	}
	if page == nil {
		return nil, eris.Wrapf(errs.ErrNotFound, "page %s", trimmed)
	}

	entries := s.withEditors(ResolveTitles(page))

	return &PageView{Page: *page, History: SquashByEditor(entries)}, nil
}

func (s *service) History(ctx context.Context, name string, order Order) ([]HistoryEntry, error) {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return nil, errs.NewValidationError("name", "must not be empty")
	}

	page, err := s.getWithHistory(ctx, trimmed)
	if err != nil {
		s.recordError(logrus.Fields{"page": trimmed}, err, "retrieving page history")
		return nil, err
	}
	if page == nil {
		return nil, eris.Wrapf(errs.ErrNotFound, "page %s", trimmed)
	}

	entries := s.withEditors(ResolveTitles(page))
	for i := range entries {
		html, err := s.render(ctx, entries[i].Edit.Markdown)
		if err != nil {
			s.recordError(logrus.Fields{"page": trimmed, "edit_index": i}, err, "rendering history entry")
			return nil, err
		}
		entries[i].HTML = html
	}

	if order == Descending {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}

	return entries, nil
}

func (s *service) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	terms := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	if len(terms) == 0 {
		return []SearchResult{}, nil
	}

	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	storeCtx, cancel := s.storeContext(ctx)
	hits, err := s.repo.Search(storeCtx, terms, limit)
	cancel()
	if err != nil {
		s.recordError(logrus.Fields{"query": query}, err, "performing search")
		return nil, storeError(err, "searching pages")
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, SearchResult{
			Name:    hit.Page.Name,
			Title:   hit.Page.Title,
			Excerpt: excerpt(s.renderer.PlainText(hit.Page.HTML), excerptLength),
			Score:   hit.Score,
		})
	}

	if len(results) > limit {
		results = results[:limit]
	}

	if s.metrics != nil {
		s.metrics.SearchPerformed(len(results))
	}

	return results, nil
}

func (s *service) RandomPage(ctx context.Context) (*Page, error) {
	storeCtx, cancel := s.storeContext(ctx)
	page, err := s.repo.RandomPage(storeCtx)
	cancel()
	if err != nil {
		s.recordError(nil, err, "selecting random wiki page")
		return nil, storeError(err, "selecting random wiki page")
	}

	if page == nil {
		return nil, eris.Wrap(errs.ErrNoPages, "selecting random wiki page")
	}

	return page, nil
}

func (s *service) AllPagesByLetter(ctx context.Context) ([]LetterGroup, error) {
	storeCtx, cancel := s.storeContext(ctx)
	pages, err := s.repo.ListPages(storeCtx)
	cancel()
	if err != nil {
		s.recordError(nil, err, "listing pages")
		return nil, storeError(err, "listing pages")
	}

	return GroupByLetter(pages), nil
}

func (s *service) LastEdited(ctx context.Context, limit int) ([]LastEdit, error) {
	if limit <= 0 {
		limit = defaultLastEditedLimit
	}

	batch := limit * 2
	if batch < 20 {
		batch = 20
	}

	var collected, kept []Edit
	for offset := 0; ; offset += batch {
		storeCtx, cancel := s.storeContext(ctx)
		edits, err := s.repo.RecentEdits(storeCtx, offset, batch)
		cancel()
		if err != nil {
			s.recordError(nil, err, "listing recent edits")
			return nil, storeError(err, "listing recent edits")
		}

		collected = append(collected, edits...)
		kept = DedupeConsecutive(collected)
		if len(kept) >= limit || len(edits) < batch {
			break
		}
	}
	if len(kept) > limit {
		kept = kept[:limit]
	}

	titles, err := s.pageTitles(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]LastEdit, 0, len(kept))
	for _, edit := range kept {
		page := titles[edit.PageName]
		out = append(out, LastEdit{
			EditID:   edit.ID,
			PageName: edit.PageName,
			Title:    firstNonEmpty(edit.Title, page.Title),
			Excerpt:  excerpt(s.renderer.PlainText(page.HTML), excerptLength),
			Editor:   s.identity.Derive(edit.EditorCookie),
			EditedAt: edit.EditedAt,
		})
	}

	return out, nil
}

func (s *service) Feed(ctx context.Context) ([]FeedItem, error) {
	edits, err := s.LastEdited(ctx, feedSize)
	if err != nil {
		return nil, err
	}

	items := make([]FeedItem, 0, len(edits))
	for _, edit := range edits {
		items = append(items, FeedItem{
			Title: edit.Title,
			Name:  edit.PageName,
			Time:  edit.EditedAt.Format(time.DateOnly),
			Editor: FeedEditor{
				DisplayName: edit.Editor.DisplayName,
				AvatarID:    edit.Editor.AvatarID,
				Color:       edit.Editor.CSSColor(),
			},
		})
	}

	return items, nil
}

func (s *service) Count(ctx context.Context) (int64, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	count, err := s.repo.CountPages(storeCtx)
	if err != nil {
		s.recordError(nil, err, "counting pages")
		return 0, storeError(err, "counting pages")
	}

	return count, nil
}

// RerenderAll refreshes the stored HTML of every page from its markdown.
// History is not touched. It returns the number of pages whose HTML changed.
func (s *service) RerenderAll(ctx context.Context) (int, error) {
	storeCtx, cancel := s.storeContext(ctx)
	pages, err := s.repo.ListPages(storeCtx)
	cancel()
	if err != nil {
		s.recordError(nil, err, "listing pages for rerender")
		return 0, storeError(err, "listing pages")
	}

	updated := 0
	for _, page := range pages {
		html, err := s.render(ctx, page.Markdown)
		if err != nil {
			s.recordError(logrus.Fields{"page": page.Name}, err, "rerendering page")
			return updated, err
		}
		if html == page.HTML {
			continue
		}

		storeCtx, cancel := s.storeContext(ctx)
		err = s.repo.UpdateHTML(storeCtx, page.Name, html)
		cancel()
		if err != nil {
			s.recordError(logrus.Fields{"page": page.Name}, err, "storing rerendered page")
			return updated, storeError(err, "updating page html "+page.Name)
		}
		updated++
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"pages": len(pages), "updated": updated}).Info("pages rerendered")
	}

	return updated, nil
}

func (s *service) EditsByEditor(ctx context.Context, cookie string) ([]Edit, error) {
	trimmed := strings.TrimSpace(cookie)
	if trimmed == "" {
		return nil, errs.NewValidationError("cookie", "must not be empty")
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	edits, err := s.repo.EditsByEditor(storeCtx, trimmed)
	if err != nil {
		s.recordError(nil, err, "listing edits by editor")
		return nil, storeError(err, "listing edits by editor")
	}

	return edits, nil
}

func (s *service) preview(ctx context.Context, markdown string) (*SaveResult, error) {
	html, err := s.render(ctx, markdown)
	if err != nil {
		s.recordError(nil, err, "rendering preview")
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.PreviewRendered()
	}

	return &SaveResult{Preview: true, PreviewHTML: html}, nil
}

// authorize checks that the editor may write. Privileged editors are
// registered on the fly so their edits always resolve to an identity.
func (s *service) authorize(ctx context.Context, editor identity.Persona) error {
	cookie := editor.Cookie()
	if strings.TrimSpace(cookie) == "" {
		return eris.Wrap(errs.ErrNotAllowed, "anonymous visitors cannot edit")
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	if editor.IsPrivileged {
		if err := s.editors.EnsureRegistered(storeCtx, cookie); err != nil {
			s.recordError(logrus.Fields{"editor": editor.ShortID}, err, "registering privileged editor")
			return storeError(err, "registering privileged editor")
		}
		return nil
	}

	allowed, err := s.editors.IsAllowed(storeCtx, cookie)
	if err != nil {
		s.recordError(logrus.Fields{"editor": editor.ShortID}, err, "checking editor permission")
		return storeError(err, "checking editor permission")
	}
	if !allowed {
		return eris.Wrapf(errs.ErrNotAllowed, "editor %s is not allowed to edit", editor.ShortID)
	}

	return nil
}

// recordEdit appends the edit to its author's identity. The page write has
// already been committed, so a failure here leaves the store inconsistent.
func (s *service) recordEdit(ctx context.Context, edit Edit) error {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.editors.RecordEdit(storeCtx, edit); err != nil {
		return eris.Wrapf(errs.ErrInconsistent, "edit %s on page %s saved but not attributed: %v", edit.ID, edit.PageName, err)
	}
	return nil
}

func (s *service) afterSave(ctx context.Context, kind string, page *Page, editor identity.Persona) {
	if s.metrics != nil {
		s.metrics.PageSaved(kind)
	}

	if err := s.speech.RenderTitle(ctx, page.Name, page.Title, editor.Voice); err != nil {
		s.recordError(logrus.Fields{"page": page.Name}, err, "rendering title audio")
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"page":     page.Name,
			"revision": page.Revision,
			"editor":   editor.ShortID,
			"kind":     kind,
		}).Info("page saved")
	}
}

func (s *service) render(ctx context.Context, markdown string) (string, error) {
	html, err := s.renderer.Render(ctx, markdown)
	if err != nil {
		return "", eris.Wrap(err, "rendering markdown")
	}
	return html, nil
}

func (s *service) getByName(ctx context.Context, name string) (*Page, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	page, err := s.repo.GetByName(storeCtx, name)
	if err != nil {
		return nil, storeError(err, "retrieving page "+name)
	}
	return page, nil
}

func (s *service) getWithHistory(ctx context.Context, name string) (*Page, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	page, err := s.repo.GetWithHistory(storeCtx, name)
	if err != nil {
		return nil, storeError(err, "retrieving page history "+name)
	}
	return page, nil
}

func (s *service) pageTitles(ctx context.Context) (map[string]Page, error) {
	storeCtx, cancel := s.storeContext(ctx)
	pages, err := s.repo.ListPages(storeCtx)
	cancel()
	if err != nil {
		s.recordError(nil, err, "listing pages")
		return nil, storeError(err, "listing pages")
	}

	byName := make(map[string]Page, len(pages))
	for _, page := range pages {
		byName[page.Name] = page
	}
	return byName, nil
}

func (s *service) withEditors(entries []HistoryEntry) []HistoryEntry {
	for i := range entries {
		entries[i].Editor = s.identity.Derive(entries[i].Edit.EditorCookie)
	}
	return entries
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

// storeError keeps domain errors reported by the repository and classifies
// everything else as the store being unavailable.
func storeError(err error, message string) error {
	if err == nil {
		return nil
	}

	for _, known := range []error{errs.ErrNotFound, errs.ErrDuplicateName, errs.ErrEditConflict, errs.ErrStoreUnavailable} {
		if eris.Is(err, known) {
			return eris.Wrap(err, message)
		}
	}

	return errs.StoreFailure(err, message)
}

func excerpt(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}

	runes := []rune(text)
	return strings.TrimSpace(string(runes[:max])) + "…"
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
