package templates

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// RawHTML returns a templ component that writes the provided HTML without escaping.
func RawHTML(html string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := io.WriteString(w, html)
		return err
	})
}

// markup accumulates escaped and trusted fragments and flushes them once.
type markup struct {
	b strings.Builder
}

func (m *markup) raw(fragments ...string) *markup {
	for _, fragment := range fragments {
		m.b.WriteString(fragment)
	}
	return m
}

func (m *markup) text(value string) *markup {
	m.b.WriteString(templ.EscapeString(value))
	return m
}

func (m *markup) render(ctx context.Context, child templ.Component) error {
	return child.Render(ctx, &m.b)
}

func (m *markup) flush(w io.Writer) error {
	_, err := io.WriteString(w, m.b.String())
	return err
}
