package wiki

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"wikiloult/app/internal/domain/errs"
	"wikiloult/app/internal/domain/identity"
)

const (
	testSalt    = "test-salt"
	adminCookie = "admin-cookie"
)

func TestServiceCreatePageStoresRenderedMarkdown(t *testing.T) {
	t.Parallel()

	deps := newServiceDeps(t)
	author := deps.allowedPersona("author")

	result, err := deps.service.CreatePage(context.Background(), CreateInput{
		Name:     " Lune ",
		Title:    " La Lune ",
		Markdown: "Un satellite.",
		Editor:   author,
	})
	if err != nil {
		t.Fatalf("CreatePage returned error: %v", err)
	}

	if result.Preview {
		t.Fatalf("expected a persisted save, got preview")
	}

	stored := deps.repo.get("lune")
	if stored == nil {
		t.Fatalf("expected page lune to be persisted")
	}
	if stored.Title != "La Lune" {
		t.Fatalf("expected trimmed title, got %q", stored.Title)
	}

	rendered, _ := deps.renderer.Render(context.Background(), stored.Markdown)
	if stored.HTML != rendered {
		t.Fatalf("expected stored html %q to equal render of markdown %q", stored.HTML, rendered)
	}

	if len(stored.Edits) != 1 {
		t.Fatalf("expected exactly one edit after creation, got %d", len(stored.Edits))
	}
	if stored.Edits[0].EditorCookie != "author" {
		t.Fatalf("expected edit attributed to author, got %q", stored.Edits[0].EditorCookie)
	}
	if stored.Revision != 1 {
		t.Fatalf("expected revision 1, got %d", stored.Revision)
	}

	if len(deps.editors.recorded) != 1 || deps.editors.recorded[0].ID != stored.Edits[0].ID {
		t.Fatalf("expected the edit to be recorded on the editor identity, got %+v", deps.editors.recorded)
	}

	if deps.speech.calls != 1 || deps.speech.lastTitle != "La Lune" {
		t.Fatalf("expected one title render for La Lune, got %d calls (%q)", deps.speech.calls, deps.speech.lastTitle)
	}
}

func TestServiceCreatePageRejectsDuplicate(t *testing.T) {
	t.Parallel()

	deps := newServiceDeps(t)
	author := deps.allowedPersona("author")
	ctx := context.Background()

	if _, err := deps.service.CreatePage(ctx, CreateInput{Name: "foo", Title: "Foo", Markdown: "first", Editor: author}); err != nil {
		t.Fatalf("CreatePage returned error: %v", err)
	}

	_, err := deps.service.CreatePage(ctx, CreateInput{Name: "FOO", Title: "Foo", Markdown: "second", Editor: author})
	if !eris.Is(err, errs.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}

	if stored := deps.repo.get("foo"); stored.Markdown != "first" {
		t.Fatalf("expected original markdown to survive, got %q", stored.Markdown)
	}
	if len(deps.editors.recorded) != 1 {
		t.Fatalf("expected a single recorded edit, got %d", len(deps.editors.recorded))
	}
}

func TestServiceCreatePageValidatesInput(t *testing.T) {
	t.Parallel()

	deps := newServiceDeps(t)
	author := deps.allowedPersona("author")

	cases := []struct {
		input CreateInput
		field string
	}{
		{CreateInput{Name: "bad-name", Title: "T", Markdown: "m"}, "name"},
		{CreateInput{Name: "page1", Title: "T", Markdown: "m"}, "name"},
		{CreateInput{Name: "   ", Title: "T", Markdown: "m"}, "name"},
		{CreateInput{Name: "page", Title: "  ", Markdown: "m"}, "title"},
		{CreateInput{Name: "page", Title: "T", Markdown: "\n\t"}, "content"},
	}

	for _, tc := range cases {
		tc.input.Editor = author
		_, err := deps.service.CreatePage(context.Background(), tc.input)
		if !eris.Is(err, errs.ErrInvalidName) || !eris.Is(err, errs.ErrValidation) {
			t.Fatalf("expected invalid name error for %+v, got %v", tc.input, err)
		}

		var validationErr *errs.ValidationError
		if !errors.As(err, &validationErr) || validationErr.Field != tc.field {
			t.Fatalf("expected field %q for %+v, got %v", tc.field, tc.input, err)
		}
	}

	if deps.repo.count() != 0 {
		t.Fatalf("expected no page to be persisted, got %d", deps.repo.count())
	}
}

func TestServiceCreatePageRequiresAllowedEditor(t *testing.T) {
	t.Parallel()

	deps := newServiceDeps(t)
	ctx := context.Background()

	_, err := deps.service.CreatePage(ctx, CreateInput{Name: "page", Title: "T", Markdown: "m", Editor: deps.engine.Derive("stranger")})
	if !eris.Is(err, errs.ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}

	_, err = deps.service.CreatePage(ctx, CreateInput{Name: "page", Title: "T", Markdown: "m", Editor: identity.Persona{}})
	if !eris.Is(err, errs.ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed for anonymous visitor, got %v", err)
	}

	admin := deps.engine.Derive(adminCookie)
	if _, err := deps.service.CreatePage(ctx, CreateInput{Name: "page", Title: "T", Markdown: "m", Editor: admin}); err != nil {
		t.Fatalf("expected privileged editor to create page, got %v", err)
	}
	if _, ok := deps.editors.registered[adminCookie]; !ok {
		t.Fatalf("expected privileged editor to be registered on the fly")
	}
}

func TestServiceEditPagePreviewLeavesStoreUntouched(t *testing.T) {
	t.Parallel()

	deps := newServiceDeps(t)
	author := deps.allowedPersona("author")
	ctx := context.Background()

	if _, err := deps.service.CreatePage(ctx, CreateInput{Name: "page", Title: "Page", Markdown: "v1", Editor: author}); err != nil {
		t.Fatalf("CreatePage returned error: %v", err)
	}

	before := deps.repo.snapshot()
	recordedBefore := len(deps.editors.recorded)

	result, err := deps.service.EditPage(ctx, EditInput{Name: "page", Title: "", Markdown: "v2 preview", Editor: author, Preview: true})
	if err != nil {
		t.Fatalf("EditPage preview returned error: %v", err)
	}
	if !result.Preview || result.Page != nil || result.Edit != nil {
		t.Fatalf("expected preview-only result, got %+v", result)
	}
	if result.PreviewHTML != "<p>v2 preview</p>" {
		t.Fatalf("unexpected preview html %q", result.PreviewHTML)
	}

	if after := deps.repo.snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("expected store to be unchanged by preview")
	}
	if len(deps.editors.recorded) != recordedBefore {
		t.Fatalf("expected no edit to be recorded by preview")
	}
}

func TestServiceEditPageAppendsEdit(t *testing.T) {
	t.Parallel()

	deps := newServiceDeps(t)
	author := deps.allowedPersona("author")
	ctx := context.Background()

	if _, err := deps.service.CreatePage(ctx, CreateInput{Name: "page", Title: "Page", Markdown: "v1", Editor: author}); err != nil {
		t.Fatalf("CreatePage returned error: %v", err)
	}

	result, err := deps.service.EditPage(ctx, EditInput{Name: "Page", Title: "Page v2", Markdown: "v2", Editor: author})
	if err != nil {
		t.Fatalf("EditPage returned error: %v", err)
	}

	stored := deps.repo.get("page")
	if stored.Title != "Page v2" || stored.Markdown != "v2" || stored.HTML != "<p>v2</p>" {
		t.Fatalf("expected projection to be overwritten, got %+v", stored)
	}
	if len(stored.Edits) != 2 || stored.Revision != 2 {
		t.Fatalf("expected two edits and revision 2, got %d edits revision %d", len(stored.Edits), stored.Revision)
	}
	if result.Edit.ID != stored.Edits[1].ID {
		t.Fatalf("expected returned edit to be the appended one")
	}
	if stored.Edits[0].Markdown != "v1" {
		t.Fatalf("expected first edit to be unchanged, got %q", stored.Edits[0].Markdown)
	}
}

func TestServiceEditPageErrors(t *testing.T) {
	t.Parallel()

	deps := newServiceDeps(t)
	author := deps.allowedPersona("author")
	ctx := context.Background()

	_, err := deps.service.EditPage(ctx, EditInput{Name: "missing", Title: "T", Markdown: "m", Editor: author})
	if !eris.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := deps.service.CreatePage(ctx, CreateInput{Name: "page", Title: "Page", Markdown: "v1", Editor: author}); err != nil {
		t.Fatalf("CreatePage returned error: %v", err)
	}

	_, err = deps.service.EditPage(ctx, EditInput{Name: "page", Title: " ", Markdown: "m", Editor: author})
	var validationErr *errs.ValidationError
	if !errors.As(err, &validationErr) || validationErr.Field != "title" {
		t.Fatalf("expected title validation error, got %v", err)
	}
	if eris.Is(err, errs.ErrInvalidName) {
		t.Fatalf("expected edit validation not to be reported as invalid name")
	}

	_, err = deps.service.EditPage(ctx, EditInput{Name: "page", Title: "T", Markdown: "m", Editor: author, ExpectedRevision: 7})
	if !eris.Is(err, errs.ErrEditConflict) {
		t.Fatalf("expected ErrEditConflict, got %v", err)
	}

	if _, err := deps.service.EditPage(ctx, EditInput{Name: "page", Title: "T", Markdown: "m", Editor: author, ExpectedRevision: 1}); err != nil {
		t.Fatalf("expected matching revision to succeed, got %v", err)
	}

	if len(deps.repo.get("page").Edits) != 2 {
		t.Fatalf("expected failed edits not to append history")
	}
}

func TestServiceRestoreCreatesOneForwardEdit(t *testing.T) {
	t.Parallel()

	deps := newServiceDeps(t)
	author := deps.allowedPersona("author")
	admin := deps.engine.Derive(adminCookie)
	ctx := context.Background()

	if _, err := deps.service.CreatePage(ctx, CreateInput{Name: "page", Title: "First", Markdown: "one", Editor: author}); err != nil {
		t.Fatalf("CreatePage returned error: %v", err)
	}
	for _, md := range []string{"two", "three"} {
		if _, err := deps.service.EditPage(ctx, EditInput{Name: "page", Title: "Title " + md, Markdown: md, Editor: author}); err != nil {
			t.Fatalf("EditPage returned error: %v", err)
		}
	}

	before := deps.repo.get("page").Edits

	if _, err := deps.service.Restore(ctx, "page", 0, author); !eris.Is(err, errs.ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed for unprivileged restore, got %v", err)
	}
	if _, err := deps.service.Restore(ctx, "page", 3, admin); !eris.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for out of range edit, got %v", err)
	}

	result, err := deps.service.Restore(ctx, "page", 0, admin)
	if err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}

	after := deps.repo.get("page").Edits
	if len(after) != len(before)+1 {
		t.Fatalf("expected exactly one new edit, got %d -> %d", len(before), len(after))
	}
	if !reflect.DeepEqual(before, after[:len(before)]) {
		t.Fatalf("expected prior edits to be unchanged")
	}

	restored := after[len(after)-1]
	if restored.Title != before[0].Title || restored.Markdown != before[0].Markdown {
		t.Fatalf("expected restored edit to copy edit 0, got %+v", restored)
	}
	if restored.EditorCookie != adminCookie || result.Edit.ID != restored.ID {
		t.Fatalf("expected restore to be attributed to the admin")
	}
	if deps.repo.get("page").Markdown != "one" {
		t.Fatalf("expected projection to show restored markdown")
	}
}

func TestServiceGetPageSquashesHistory(t *testing.T) {
	t.Parallel()

	deps := newServiceDeps(t)
	alice := deps.allowedPersona("alice")
	bob := deps.allowedPersona("bob")
	ctx := context.Background()

	if _, err := deps.service.CreatePage(ctx, CreateInput{Name: "page", Title: "Page", Markdown: "1", Editor: alice}); err != nil {
		t.Fatalf("CreatePage returned error: %v", err)
	}
	for _, step := range []struct {
		editor identity.Persona
		md     string
	}{{alice, "2"}, {bob, "3"}, {alice, "4"}} {
		if _, err := deps.service.EditPage(ctx, EditInput{Name: "page", Title: "Page", Markdown: step.md, Editor: step.editor}); err != nil {
			t.Fatalf("EditPage returned error: %v", err)
		}
	}

	view, err := deps.service.GetPage(ctx, "PAGE")
	if err != nil {
		t.Fatalf("GetPage returned error: %v", err)
	}

	edits := deps.repo.get("page").Edits
	if len(view.History) != 3 {
		t.Fatalf("expected three squashed entries, got %d", len(view.History))
	}

	expected := []struct {
		editor string
		at     time.Time
		count  int
	}{
		{"alice", edits[3].EditedAt, 1},
		{"bob", edits[2].EditedAt, 1},
		{"alice", edits[0].EditedAt, 2},
	}
	for i, want := range expected {
		got := view.History[i]
		if got.Editor.ShortID != deps.engine.ShortID(want.editor) || !got.EditedAt.Equal(want.at) || got.Count != want.count {
			t.Fatalf("entry %d: expected %s@%s x%d, got %+v", i, want.editor, want.at, want.count, got)
		}
	}
	if !view.History[2].LastEditedAt.Equal(edits[1].EditedAt) {
		t.Fatalf("expected squashed run to remember its last edit time")
	}
}

func TestServiceHistoryRendersEntries(t *testing.T) {
	t.Parallel()

	deps := newServiceDeps(t)
	author := deps.allowedPersona("author")
	ctx := context.Background()

	if _, err := deps.service.CreatePage(ctx, CreateInput{Name: "page", Title: "Page", Markdown: "one", Editor: author}); err != nil {
		t.Fatalf("CreatePage returned error: %v", err)
	}
	if _, err := deps.service.EditPage(ctx, EditInput{Name: "page", Title: "Page 2", Markdown: "two", Editor: author}); err != nil {
		t.Fatalf("EditPage returned error: %v", err)
	}

	entries, err := deps.service.History(ctx, "page", Descending)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(entries) != 2 || entries[0].Index != 1 || entries[0].HTML != "<p>two</p>" || entries[1].Title != "Page" {
		t.Fatalf("unexpected history %+v", entries)
	}
	if entries[0].Editor.ShortID != author.ShortID {
		t.Fatalf("expected persona to be attached")
	}

	if _, err := deps.service.History(ctx, "missing", Ascending); !eris.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceSearch(t *testing.T) {
	t.Parallel()

	deps := newServiceDeps(t)
	author := deps.allowedPersona("author")
	ctx := context.Background()

	results, err := deps.service.Search(ctx, "   ", 5)
	if err != nil || results == nil || len(results) != 0 {
		t.Fatalf("expected empty non-nil result for blank query, got %v, %v", results, err)
	}

	if _, err := deps.service.CreatePage(ctx, CreateInput{Name: "lune", Title: "La Lune", Markdown: "satellite", Editor: author}); err != nil {
		t.Fatalf("CreatePage returned error: %v", err)
	}

	results, err = deps.service.Search(ctx, " Lune ", 0)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(results) != 1 || results[0].Name != "lune" || results[0].Excerpt != "satellite" {
		t.Fatalf("unexpected results %+v", results)
	}
	if deps.repo.lastTerms[0] != "lune" || deps.repo.lastLimit != defaultSearchLimit {
		t.Fatalf("expected lowercased terms and default limit, got %v %d", deps.repo.lastTerms, deps.repo.lastLimit)
	}
}

func TestServiceRandomPage(t *testing.T) {
	t.Parallel()

	deps := newServiceDeps(t)
	ctx := context.Background()

	if _, err := deps.service.RandomPage(ctx); !eris.Is(err, errs.ErrNoPages) {
		t.Fatalf("expected ErrNoPages, got %v", err)
	}

	if _, err := deps.service.CreatePage(ctx, CreateInput{Name: "alpha", Title: "Alpha", Markdown: "a", Editor: deps.allowedPersona("author")}); err != nil {
		t.Fatalf("CreatePage returned error: %v", err)
	}

	page, err := deps.service.RandomPage(ctx)
	if err != nil || page.Name != "alpha" {
		t.Fatalf("expected alpha, got %+v, %v", page, err)
	}
}

func TestServiceLastEditedAndFeed(t *testing.T) {
	t.Parallel()

	deps := newServiceDeps(t)
	alice := deps.allowedPersona("alice")
	bob := deps.allowedPersona("bob")
	ctx := context.Background()

	for _, name := range []string{"alpha", "beta"} {
		if _, err := deps.service.CreatePage(ctx, CreateInput{Name: name, Title: strings.ToUpper(name), Markdown: name, Editor: alice}); err != nil {
			t.Fatalf("CreatePage returned error: %v", err)
		}
	}
	steps := []struct {
		editor identity.Persona
		page   string
	}{{bob, "alpha"}, {bob, "alpha"}, {alice, "beta"}, {alice, "beta"}}
	for _, step := range steps {
		if _, err := deps.service.EditPage(ctx, EditInput{Name: step.page, Title: strings.ToUpper(step.page), Markdown: "x", Editor: step.editor}); err != nil {
			t.Fatalf("EditPage returned error: %v", err)
		}
	}

	last, err := deps.service.LastEdited(ctx, 10)
	if err != nil {
		t.Fatalf("LastEdited returned error: %v", err)
	}

	want := []string{"alice/beta", "bob/alpha", "alice/beta", "alice/alpha"}
	if len(last) != len(want) {
		t.Fatalf("expected %d deduplicated entries, got %d", len(want), len(last))
	}
	for i, entry := range last {
		got := map[string]string{alice.ShortID: "alice", bob.ShortID: "bob"}[entry.Editor.ShortID] + "/" + entry.PageName
		if got != want[i] {
			t.Fatalf("entry %d: expected %s, got %s", i, want[i], got)
		}
	}

	feed, err := deps.service.Feed(ctx)
	if err != nil {
		t.Fatalf("Feed returned error: %v", err)
	}
	if len(feed) != 3 {
		t.Fatalf("expected feed capped at 3, got %d", len(feed))
	}
	if feed[0].Name != "beta" || feed[0].Title != "BETA" || feed[0].Time != "2024-03-01" {
		t.Fatalf("unexpected first feed item %+v", feed[0])
	}
	if feed[0].Editor.DisplayName != alice.DisplayName || feed[0].Editor.Color != alice.CSSColor() || feed[0].Editor.AvatarID != alice.AvatarID {
		t.Fatalf("unexpected feed editor %+v", feed[0].Editor)
	}
}

func TestServiceAllPagesByLetter(t *testing.T) {
	t.Parallel()

	deps := newServiceDeps(t)
	author := deps.allowedPersona("author")
	ctx := context.Background()

	for _, page := range []struct{ name, title string }{{"lune", "La Lune"}, {"elan", "Élan"}, {"arbre", "Arbre"}} {
		if _, err := deps.service.CreatePage(ctx, CreateInput{Name: page.name, Title: page.title, Markdown: "x", Editor: author}); err != nil {
			t.Fatalf("CreatePage returned error: %v", err)
		}
	}

	groups, err := deps.service.AllPagesByLetter(ctx)
	if err != nil {
		t.Fatalf("AllPagesByLetter returned error: %v", err)
	}

	var letters []string
	for _, group := range groups {
		letters = append(letters, group.Letter)
	}
	if strings.Join(letters, ",") != "a,e,l" {
		t.Fatalf("expected groups a,e,l got %v", letters)
	}
	if groups[2].Pages[0].Name != "lune" {
		t.Fatalf("expected lune under l, got %+v", groups[2].Pages)
	}
}

func TestServiceRecordEditFailureIsReportedAsInconsistent(t *testing.T) {
	t.Parallel()

	deps := newServiceDeps(t)
	author := deps.allowedPersona("author")
	deps.editors.recordErr = errStub("identity store down")

	_, err := deps.service.CreatePage(context.Background(), CreateInput{Name: "page", Title: "T", Markdown: "m", Editor: author})
	if !eris.Is(err, errs.ErrInconsistent) {
		t.Fatalf("expected ErrInconsistent, got %v", err)
	}
	if deps.repo.get("page") == nil {
		t.Fatalf("expected page write to have been committed before the failure")
	}
}

func TestServiceStoreFailureIsUnavailable(t *testing.T) {
	t.Parallel()

	deps := newServiceDeps(t)
	deps.repo.err = errStub("database is locked")

	if _, err := deps.service.Count(context.Background()); !eris.Is(err, errs.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := deps.service.AllPagesByLetter(context.Background()); !eris.Is(err, errs.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestServiceSpeechFailureDoesNotFailSave(t *testing.T) {
	t.Parallel()

	deps := newServiceDeps(t)
	deps.speech.err = errStub("tts offline")

	if _, err := deps.service.CreatePage(context.Background(), CreateInput{Name: "page", Title: "T", Markdown: "m", Editor: deps.allowedPersona("author")}); err != nil {
		t.Fatalf("expected save to succeed despite speech failure, got %v", err)
	}
	if deps.speech.calls != 1 {
		t.Fatalf("expected speech to be attempted once, got %d", deps.speech.calls)
	}
}

func TestServiceRerenderAll(t *testing.T) {
	t.Parallel()

	deps := newServiceDeps(t)
	ctx := context.Background()

	if _, err := deps.service.CreatePage(ctx, CreateInput{Name: "page", Title: "T", Markdown: "m", Editor: deps.allowedPersona("author")}); err != nil {
		t.Fatalf("CreatePage returned error: %v", err)
	}
	deps.repo.pages["page"].HTML = "<p>stale</p>"

	updated, err := deps.service.RerenderAll(ctx)
	if err != nil {
		t.Fatalf("RerenderAll returned error: %v", err)
	}
	if updated != 1 || deps.repo.get("page").HTML != "<p>m</p>" {
		t.Fatalf("expected stale page to be rerendered, updated=%d", updated)
	}
	if len(deps.repo.get("page").Edits) != 1 {
		t.Fatalf("expected rerender to leave history alone")
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewService(Options{}); err == nil {
		t.Fatalf("expected error when dependencies are missing")
	}
}

type serviceDeps struct {
	service  Service
	repo     *stubRepository
	renderer *stubRenderer
	editors  *stubEditors
	speech   *stubSpeech
	engine   *identity.Engine
}

func newServiceDeps(t *testing.T) *serviceDeps {
	t.Helper()

	engine, err := identity.NewEngine(identity.Settings{Salt: testSalt, PrivilegedCookies: []string{adminCookie}})
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	deps := &serviceDeps{
		repo:     newStubRepository(),
		renderer: &stubRenderer{},
		editors:  newStubEditors(),
		speech:   &stubSpeech{},
		engine:   engine,
	}

	clock := &fakeClock{current: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}

	service, err := NewService(Options{
		Repository: deps.repo,
		Renderer:   deps.renderer,
		Editors:    deps.editors,
		Identity:   engine,
		Speech:     deps.speech,
		Logger:     silentLogger(),
		Now:        clock.Now,
	})
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	deps.service = service

	return deps
}

func (d *serviceDeps) allowedPersona(cookie string) identity.Persona {
	d.editors.allowed[cookie] = true
	d.editors.registered[cookie] = struct{}{}
	return d.engine.Derive(cookie)
}

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time {
	c.current = c.current.Add(time.Minute)
	return c.current
}

type stubRepository struct {
	pages     map[string]*Page
	seq       int64
	err       error
	lastTerms []string
	lastLimit int
}

var _ Repository = (*stubRepository)(nil)

func newStubRepository() *stubRepository {
	return &stubRepository{pages: make(map[string]*Page)}
}

func (s *stubRepository) GetByName(_ context.Context, name string) (*Page, error) {
	if s.err != nil {
		return nil, s.err
	}
	page := s.get(name)
	if page != nil {
		page.Edits = nil
	}
	return page, nil
}

func (s *stubRepository) GetWithHistory(_ context.Context, name string) (*Page, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.get(name), nil
}

func (s *stubRepository) Create(_ context.Context, page *Page, first *Edit) error {
	if s.err != nil {
		return s.err
	}
	if _, exists := s.pages[page.Name]; exists {
		return eris.Wrapf(errs.ErrDuplicateName, "page %s", page.Name)
	}
	s.seq++
	first.Seq = s.seq
	stored := *page
	stored.Edits = []Edit{*first}
	s.pages[page.Name] = &stored
	return nil
}

func (s *stubRepository) ApplyEdit(_ context.Context, edit *Edit, html string, expectedRevision int) (*Page, error) {
	if s.err != nil {
		return nil, s.err
	}
	page, ok := s.pages[edit.PageName]
	if !ok {
		return nil, eris.Wrapf(errs.ErrNotFound, "page %s", edit.PageName)
	}
	if expectedRevision != AnyRevision && expectedRevision != page.Revision {
		return nil, eris.Wrapf(errs.ErrEditConflict, "page %s", edit.PageName)
	}

	s.seq++
	edit.Seq = s.seq
	page.Title = edit.Title
	page.Markdown = edit.Markdown
	page.HTML = html
	page.LastEditAt = edit.EditedAt
	page.Revision++
	page.Edits = append(page.Edits, *edit)

	updated := *page
	updated.Edits = nil
	return &updated, nil
}

func (s *stubRepository) UpdateHTML(_ context.Context, name, html string) error {
	if s.err != nil {
		return s.err
	}
	s.pages[name].HTML = html
	return nil
}

func (s *stubRepository) ListPages(_ context.Context) ([]Page, error) {
	if s.err != nil {
		return nil, s.err
	}
	pages := make([]Page, 0, len(s.pages))
	for _, page := range s.pages {
		copy := *page
		copy.Edits = nil
		pages = append(pages, copy)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Name < pages[j].Name })
	return pages, nil
}

func (s *stubRepository) CountPages(_ context.Context) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return int64(len(s.pages)), nil
}

func (s *stubRepository) RandomPage(ctx context.Context) (*Page, error) {
	pages, err := s.ListPages(ctx)
	if err != nil || len(pages) == 0 {
		return nil, err
	}
	return &pages[0], nil
}

func (s *stubRepository) Search(_ context.Context, terms []string, limit int) ([]SearchHit, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.lastTerms = terms
	s.lastLimit = limit

	var hits []SearchHit
	for _, page := range s.pages {
		for _, term := range terms {
			if strings.Contains(strings.ToLower(page.Title), term) {
				hits = append(hits, SearchHit{Page: *page, Score: 10})
				break
			}
		}
	}
	return hits, nil
}

func (s *stubRepository) RecentEdits(_ context.Context, offset, limit int) ([]Edit, error) {
	if s.err != nil {
		return nil, s.err
	}
	var all []Edit
	for _, page := range s.pages {
		all = append(all, page.Edits...)
	}
	sort.Slice(all, func(i, j int) bool { return editBefore(all[j], all[i]) })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *stubRepository) EditsByEditor(_ context.Context, cookie string) ([]Edit, error) {
	if s.err != nil {
		return nil, s.err
	}
	var edits []Edit
	for _, page := range s.pages {
		for _, edit := range page.Edits {
			if edit.EditorCookie == cookie {
				edits = append(edits, edit)
			}
		}
	}
	return edits, nil
}

func (s *stubRepository) get(name string) *Page {
	page, ok := s.pages[strings.TrimSpace(name)]
	if !ok {
		return nil
	}
	copy := *page
	copy.Edits = append([]Edit(nil), page.Edits...)
	return &copy
}

func (s *stubRepository) count() int {
	return len(s.pages)
}

func (s *stubRepository) snapshot() map[string]Page {
	out := make(map[string]Page, len(s.pages))
	for name := range s.pages {
		out[name] = *s.get(name)
	}
	return out
}

type stubRenderer struct{}

func (stubRenderer) Render(_ context.Context, markdown string) (string, error) {
	return "<p>" + strings.TrimSpace(markdown) + "</p>", nil
}

func (stubRenderer) PlainText(html string) string {
	return strings.TrimSuffix(strings.TrimPrefix(html, "<p>"), "</p>")
}

type stubEditors struct {
	allowed    map[string]bool
	registered map[string]struct{}
	recorded   []Edit
	recordErr  error
}

var _ EditorRegistry = (*stubEditors)(nil)

func newStubEditors() *stubEditors {
	return &stubEditors{allowed: make(map[string]bool), registered: make(map[string]struct{})}
}

func (s *stubEditors) EnsureRegistered(_ context.Context, cookie string) error {
	s.registered[cookie] = struct{}{}
	return nil
}

func (s *stubEditors) IsAllowed(_ context.Context, cookie string) (bool, error) {
	return s.allowed[cookie], nil
}

func (s *stubEditors) RecordEdit(_ context.Context, edit Edit) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.recorded = append(s.recorded, edit)
	return nil
}

type stubSpeech struct {
	calls     int
	lastTitle string
	err       error
}

func (s *stubSpeech) RenderTitle(_ context.Context, _ string, title string, _ identity.Voice) error {
	s.calls++
	s.lastTitle = title
	return s.err
}

func silentLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type errStub string

func (e errStub) Error() string {
	return string(e)
}
