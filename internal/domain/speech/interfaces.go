package speech

import (
	"context"

	"wikiloult/app/internal/domain/identity"
)

// Synthesizer renders a spoken version of a page title with the editor's voice.
type Synthesizer interface {
	RenderTitle(ctx context.Context, pageName, title string, voice identity.Voice) error
}

// Noop discards every render request. It is used when no speech backend is configured.
type Noop struct{}

// RenderTitle implements Synthesizer.
func (Noop) RenderTitle(context.Context, string, string, identity.Voice) error {
	return nil
}

var _ Synthesizer = Noop{}
