package users

import (
	"context"
	"time"
)

// Repository defines persistence operations for registered identities.
// Lookups return nil, nil when nothing matches.
type Repository interface {
	Get(ctx context.Context, cookie string) (*Identity, error)
	GetByShortID(ctx context.Context, shortID string) (*Identity, error)
	Create(ctx context.Context, record *Identity) (bool, error)
	SetAllowed(ctx context.Context, shortID string, allowed bool) (*Identity, error)
	AppendEdit(ctx context.Context, cookie string, ref EditRef) error
	UpdateProfile(ctx context.Context, cookie, markdown, html string) error
	List(ctx context.Context) ([]Identity, error)
	PurgeIdle(ctx context.Context, registeredBefore time.Time) (int64, error)
}

// Renderer converts profile markdown into HTML.
type Renderer interface {
	Render(ctx context.Context, markdown string) (string, error)
}
