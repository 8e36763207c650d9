package wiki

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"wikiloult/app/internal/data/database"
	"wikiloult/app/internal/domain/errs"
	domainwiki "wikiloult/app/internal/domain/wiki"
)

var baseTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func TestNewRepositoryRequiresDatabase(t *testing.T) {
	t.Parallel()

	if _, err := NewRepository(nil, nil); err == nil {
		t.Fatalf("expected error when database is nil")
	}
}

func TestGetByNameReturnsNilForMissingPage(t *testing.T) {
	t.Parallel()

	repo := setupRepository(t)

	page, err := repo.GetByName(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetByName returned error: %v", err)
	}
	if page != nil {
		t.Fatalf("expected nil page for missing name, got %#v", page)
	}
}

func TestCreateStoresPageAndFirstEdit(t *testing.T) {
	t.Parallel()

	repo := setupRepository(t)
	ctx := context.Background()

	page, edit := seedPage(t, repo, "lune", "La Lune", "Un *satellite*.", "alice", baseTime)
	if edit.Seq == 0 {
		t.Fatalf("expected edit sequence to be assigned")
	}
	if page.Revision != 1 {
		t.Fatalf("expected revision 1, got %d", page.Revision)
	}

	stored, err := repo.GetWithHistory(ctx, "lune")
	if err != nil {
		t.Fatalf("GetWithHistory returned error: %v", err)
	}
	if stored == nil {
		t.Fatalf("expected stored page to be present")
	}
	if stored.Title != "La Lune" || stored.Markdown != "Un *satellite*." {
		t.Fatalf("unexpected stored page %#v", stored)
	}
	if len(stored.Edits) != 1 {
		t.Fatalf("expected one edit, got %d", len(stored.Edits))
	}
	if stored.Edits[0].ID != edit.ID || stored.Edits[0].EditorCookie != "alice" {
		t.Fatalf("unexpected first edit %#v", stored.Edits[0])
	}
	if !stored.LastEditAt.Equal(baseTime) || !stored.CreatedAt.Equal(baseTime) {
		t.Fatalf("expected timestamps %v, got created %v last %v", baseTime, stored.CreatedAt, stored.LastEditAt)
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	t.Parallel()

	repo := setupRepository(t)
	seedPage(t, repo, "lune", "La Lune", "texte", "alice", baseTime)

	page, edit := newPage("lune", "Autre", "texte", "bob", baseTime.Add(time.Minute))
	err := repo.Create(context.Background(), page, edit)
	if !eris.Is(err, errs.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}

	stored, err := repo.GetWithHistory(context.Background(), "lune")
	if err != nil {
		t.Fatalf("GetWithHistory returned error: %v", err)
	}
	if stored.Title != "La Lune" || len(stored.Edits) != 1 {
		t.Fatalf("expected original page untouched, got %#v", stored)
	}
}

func TestApplyEditAppendsHistory(t *testing.T) {
	t.Parallel()

	repo := setupRepository(t)
	ctx := context.Background()
	seedPage(t, repo, "lune", "La Lune", "v1", "alice", baseTime)

	for idx, editor := range []string{"bob", "alice"} {
		edit := &domainwiki.Edit{
			ID:           uuid.New(),
			PageName:     "lune",
			EditorCookie: editor,
			Title:        "La Lune",
			Markdown:     "v" + string(rune('2'+idx)),
			EditedAt:     baseTime.Add(time.Duration(idx+1) * time.Minute),
		}
		page, err := repo.ApplyEdit(ctx, edit, "<p>"+edit.Markdown+"</p>", domainwiki.AnyRevision)
		if err != nil {
			t.Fatalf("ApplyEdit returned error: %v", err)
		}
		if page.Revision != idx+2 {
			t.Fatalf("expected revision %d, got %d", idx+2, page.Revision)
		}
		if page.Markdown != edit.Markdown || page.HTML != "<p>"+edit.Markdown+"</p>" {
			t.Fatalf("expected projection to follow the edit, got %#v", page)
		}
	}

	stored, err := repo.GetWithHistory(ctx, "lune")
	if err != nil {
		t.Fatalf("GetWithHistory returned error: %v", err)
	}

	wantMarkdown := []string{"v1", "v2", "v3"}
	if len(stored.Edits) != len(wantMarkdown) {
		t.Fatalf("expected %d edits, got %d", len(wantMarkdown), len(stored.Edits))
	}
	for idx, want := range wantMarkdown {
		if stored.Edits[idx].Markdown != want {
			t.Fatalf("expected edit %d to be %q, got %q", idx, want, stored.Edits[idx].Markdown)
		}
	}
	if stored.Revision != len(stored.Edits) {
		t.Fatalf("expected revision to equal edit count, got %d for %d edits", stored.Revision, len(stored.Edits))
	}
}

func TestApplyEditOrdersEqualTimestampsBySequence(t *testing.T) {
	t.Parallel()

	repo := setupRepository(t)
	ctx := context.Background()
	seedPage(t, repo, "lune", "La Lune", "first", "alice", baseTime)

	edit := &domainwiki.Edit{ID: uuid.New(), PageName: "lune", EditorCookie: "bob", Title: "La Lune", Markdown: "second", EditedAt: baseTime}
	if _, err := repo.ApplyEdit(ctx, edit, "<p>second</p>", domainwiki.AnyRevision); err != nil {
		t.Fatalf("ApplyEdit returned error: %v", err)
	}

	stored, err := repo.GetWithHistory(ctx, "lune")
	if err != nil {
		t.Fatalf("GetWithHistory returned error: %v", err)
	}
	if stored.Edits[0].Markdown != "first" || stored.Edits[1].Markdown != "second" {
		t.Fatalf("expected insertion order for equal timestamps, got %q then %q", stored.Edits[0].Markdown, stored.Edits[1].Markdown)
	}
	if stored.Edits[0].Seq >= stored.Edits[1].Seq {
		t.Fatalf("expected increasing sequence numbers, got %d and %d", stored.Edits[0].Seq, stored.Edits[1].Seq)
	}
}

func TestApplyEditChecksRevision(t *testing.T) {
	t.Parallel()

	repo := setupRepository(t)
	ctx := context.Background()
	seedPage(t, repo, "lune", "La Lune", "v1", "alice", baseTime)

	stale := &domainwiki.Edit{ID: uuid.New(), PageName: "lune", EditorCookie: "bob", Title: "La Lune", Markdown: "v2", EditedAt: baseTime.Add(time.Minute)}
	_, err := repo.ApplyEdit(ctx, stale, "<p>v2</p>", 3)
	if !eris.Is(err, errs.ErrEditConflict) {
		t.Fatalf("expected ErrEditConflict, got %v", err)
	}

	current := &domainwiki.Edit{ID: uuid.New(), PageName: "lune", EditorCookie: "bob", Title: "La Lune", Markdown: "v2", EditedAt: baseTime.Add(time.Minute)}
	page, err := repo.ApplyEdit(ctx, current, "<p>v2</p>", 1)
	if err != nil {
		t.Fatalf("ApplyEdit returned error: %v", err)
	}
	if page.Revision != 2 {
		t.Fatalf("expected revision 2, got %d", page.Revision)
	}

	stored, err := repo.GetWithHistory(ctx, "lune")
	if err != nil {
		t.Fatalf("GetWithHistory returned error: %v", err)
	}
	if len(stored.Edits) != 2 {
		t.Fatalf("expected the rejected edit to leave no record, got %d edits", len(stored.Edits))
	}
}

func TestApplyEditUnknownPage(t *testing.T) {
	t.Parallel()

	repo := setupRepository(t)

	edit := &domainwiki.Edit{ID: uuid.New(), PageName: "absente", EditorCookie: "bob", Title: "T", Markdown: "m", EditedAt: baseTime}
	_, err := repo.ApplyEdit(context.Background(), edit, "<p>m</p>", domainwiki.AnyRevision)
	if !eris.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateHTML(t *testing.T) {
	t.Parallel()

	repo := setupRepository(t)
	ctx := context.Background()
	seedPage(t, repo, "lune", "La Lune", "v1", "alice", baseTime)

	if err := repo.UpdateHTML(ctx, "lune", "<p>neuf</p>"); err != nil {
		t.Fatalf("UpdateHTML returned error: %v", err)
	}

	stored, err := repo.GetWithHistory(ctx, "lune")
	if err != nil {
		t.Fatalf("GetWithHistory returned error: %v", err)
	}
	if stored.HTML != "<p>neuf</p>" {
		t.Fatalf("expected html to be replaced, got %q", stored.HTML)
	}
	if stored.Revision != 1 || len(stored.Edits) != 1 {
		t.Fatalf("expected history untouched, got revision %d with %d edits", stored.Revision, len(stored.Edits))
	}

	if err := repo.UpdateHTML(ctx, "absente", "<p>x</p>"); !eris.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing page, got %v", err)
	}
}

func TestListPagesCountAndRandom(t *testing.T) {
	t.Parallel()

	repo := setupRepository(t)
	ctx := context.Background()

	random, err := repo.RandomPage(ctx)
	if err != nil {
		t.Fatalf("RandomPage returned error: %v", err)
	}
	if random != nil {
		t.Fatalf("expected nil page from empty store, got %#v", random)
	}

	for idx, name := range []string{"zulu", "alpha", "beta"} {
		seedPage(t, repo, name, name, "texte", "alice", baseTime.Add(time.Duration(idx)*time.Minute))
	}

	listed, err := repo.ListPages(ctx)
	if err != nil {
		t.Fatalf("ListPages returned error: %v", err)
	}

	expectedOrder := []string{"alpha", "beta", "zulu"}
	if len(listed) != len(expectedOrder) {
		t.Fatalf("expected %d pages, got %d", len(expectedOrder), len(listed))
	}
	for idx, name := range expectedOrder {
		if listed[idx].Name != name {
			t.Fatalf("expected name %q at index %d, got %q", name, idx, listed[idx].Name)
		}
	}

	count, err := repo.CountPages(ctx)
	if err != nil {
		t.Fatalf("CountPages returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 pages, got %d", count)
	}

	random, err = repo.RandomPage(ctx)
	if err != nil {
		t.Fatalf("RandomPage returned error: %v", err)
	}
	if random == nil {
		t.Fatalf("expected a random page")
	}
}

func TestSearchWeightsTitleNameAndMarkdown(t *testing.T) {
	t.Parallel()

	repo := setupRepository(t)
	ctx := context.Background()

	seedPage(t, repo, "lune", "La Lune", "Un satellite naturel.", "alice", baseTime)
	seedPage(t, repo, "astres", "Astres", "La lune brille la nuit.", "alice", baseTime)
	seedPage(t, repo, "soleil", "Soleil", "Une étoile.", "alice", baseTime)

	hits, err := repo.Search(ctx, []string{"lune"}, 10)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Page.Name != "lune" || hits[0].Score != 17 {
		t.Fatalf("expected lune scored 17 first, got %s scored %d", hits[0].Page.Name, hits[0].Score)
	}
	if hits[1].Page.Name != "astres" || hits[1].Score != 5 {
		t.Fatalf("expected astres scored 5 second, got %s scored %d", hits[1].Page.Name, hits[1].Score)
	}

	limited, err := repo.Search(ctx, []string{"lune"}, 1)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d hits", len(limited))
	}

	wildcard, err := repo.Search(ctx, []string{"%"}, 10)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(wildcard) != 0 {
		t.Fatalf("expected LIKE wildcards to be matched literally, got %d hits", len(wildcard))
	}
}

func TestRecentEditsAndEditsByEditor(t *testing.T) {
	t.Parallel()

	repo := setupRepository(t)
	ctx := context.Background()

	seedPage(t, repo, "alpha", "Alpha", "a", "alice", baseTime)
	seedPage(t, repo, "beta", "Beta", "b", "bob", baseTime.Add(time.Minute))
	edit := &domainwiki.Edit{ID: uuid.New(), PageName: "alpha", EditorCookie: "alice", Title: "Alpha", Markdown: "a2", EditedAt: baseTime.Add(2 * time.Minute)}
	if _, err := repo.ApplyEdit(ctx, edit, "<p>a2</p>", domainwiki.AnyRevision); err != nil {
		t.Fatalf("ApplyEdit returned error: %v", err)
	}

	recent, err := repo.RecentEdits(ctx, 0, 2)
	if err != nil {
		t.Fatalf("RecentEdits returned error: %v", err)
	}
	if len(recent) != 2 || recent[0].Markdown != "a2" || recent[1].Markdown != "b" {
		t.Fatalf("unexpected first page of recent edits: %#v", recent)
	}

	rest, err := repo.RecentEdits(ctx, 2, 2)
	if err != nil {
		t.Fatalf("RecentEdits returned error: %v", err)
	}
	if len(rest) != 1 || rest[0].Markdown != "a" {
		t.Fatalf("unexpected second page of recent edits: %#v", rest)
	}

	byAlice, err := repo.EditsByEditor(ctx, "alice")
	if err != nil {
		t.Fatalf("EditsByEditor returned error: %v", err)
	}
	if len(byAlice) != 2 || byAlice[0].Markdown != "a2" {
		t.Fatalf("unexpected edits by alice: %#v", byAlice)
	}
}

func newPage(name, title, markdown, editor string, at time.Time) (*domainwiki.Page, *domainwiki.Edit) {
	page := &domainwiki.Page{
		Name:       name,
		Title:      title,
		Markdown:   markdown,
		HTML:       "<p>" + markdown + "</p>",
		Revision:   1,
		CreatedAt:  at,
		LastEditAt: at,
	}
	edit := &domainwiki.Edit{
		ID:           uuid.New(),
		PageName:     name,
		EditorCookie: editor,
		Title:        title,
		Markdown:     markdown,
		EditedAt:     at,
	}
	return page, edit
}

func seedPage(t *testing.T, repo *Repository, name, title, markdown, editor string, at time.Time) (*domainwiki.Page, *domainwiki.Edit) {
	t.Helper()

	page, edit := newPage(name, title, markdown, editor, at)
	if err := repo.Create(context.Background(), page, edit); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	return page, edit
}

func setupRepository(t *testing.T) *Repository {
	t.Helper()

	path := filepath.Join(t.TempDir(), "repo.db")
	gormDB, err := database.Open(database.Options{Path: path})
	if err != nil {
		t.Fatalf("database.Open returned error: %v", err)
	}

	t.Cleanup(func() {
		if closeErr := database.Close(gormDB); closeErr != nil {
			t.Fatalf("closing database failed: %v", closeErr)
		}
	})

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	if err := gormDB.AutoMigrate(&PageRecord{}, &EditRecord{}); err != nil {
		t.Fatalf("AutoMigrate returned error: %v", err)
	}

	repo, err := NewRepository(gormDB, logger)
	if err != nil {
		t.Fatalf("NewRepository returned error: %v", err)
	}

	return repo
}
