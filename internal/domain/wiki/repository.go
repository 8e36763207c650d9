package wiki

import "context"

// Repository defines persistence operations supported by the wiki domain.
// Lookups return nil, nil when nothing matches.
type Repository interface {
	GetByName(ctx context.Context, name string) (*Page, error)
	GetWithHistory(ctx context.Context, name string) (*Page, error)
	Create(ctx context.Context, page *Page, first *Edit) error
	ApplyEdit(ctx context.Context, edit *Edit, html string, expectedRevision int) (*Page, error)
	UpdateHTML(ctx context.Context, name, html string) error
	ListPages(ctx context.Context) ([]Page, error)
	CountPages(ctx context.Context) (int64, error)
	RandomPage(ctx context.Context) (*Page, error)
	Search(ctx context.Context, terms []string, limit int) ([]SearchHit, error)
	RecentEdits(ctx context.Context, offset, limit int) ([]Edit, error)
	EditsByEditor(ctx context.Context, cookie string) ([]Edit, error)
}

// Renderer converts stored markdown into page HTML.
type Renderer interface {
	Render(ctx context.Context, markdown string) (string, error)
	PlainText(html string) string
}

// EditorRegistry is the slice of the user registry the page store relies on.
type EditorRegistry interface {
	EnsureRegistered(ctx context.Context, cookie string) error
	IsAllowed(ctx context.Context, cookie string) (bool, error)
	RecordEdit(ctx context.Context, edit Edit) error
}

// AnyRevision disables the optimistic revision check on ApplyEdit.
const AnyRevision = 0
