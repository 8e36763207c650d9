// Package markdown converts wiki markdown into the HTML stored alongside each page.
package markdown

import (
	"bytes"
	"context"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/rotisserie/eris"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	nethtml "golang.org/x/net/html"
)

// ErrConversion indicates goldmark failed to convert the document.
var ErrConversion = eris.New("markdown conversion failed")

// Renderer turns markdown into sanitized HTML fragments.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer builds a Renderer with GFM, syntax highlighting and wiki links.
// Raw HTML in the source is dropped.
func NewRenderer() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
			WikiLinks,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithXHTML(),
		),
	)
	return &Renderer{md: md}
}

// Render converts markdown to an HTML fragment. Goldmark has no context
// support, so cancellation is honoured around the conversion goroutine.
func (r *Renderer) Render(ctx context.Context, markdown string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		html string
		err  error
	}

	done := make(chan result, 1)

	go func() {
		var buf bytes.Buffer
		if err := r.md.Convert([]byte(markdown), &buf); err != nil {
			done <- result{err: eris.Wrapf(ErrConversion, "%v", err)}
			return
		}
		done <- result{html: buf.String()}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.html, res.err
	}
}

// PlainText extracts the visible text of an HTML fragment with whitespace collapsed.
func (r *Renderer) PlainText(fragment string) string {
	tokenizer := nethtml.NewTokenizer(strings.NewReader(fragment))

	var parts []string
	skip := 0
	for {
		switch tokenizer.Next() {
		case nethtml.ErrorToken:
			return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
		case nethtml.StartTagToken:
			if name, _ := tokenizer.TagName(); isHiddenTag(name) {
				skip++
			}
		case nethtml.EndTagToken:
			if name, _ := tokenizer.TagName(); isHiddenTag(name) && skip > 0 {
				skip--
			}
		case nethtml.TextToken:
			if skip == 0 {
				parts = append(parts, string(tokenizer.Text()))
			}
		}
	}
}

func isHiddenTag(name []byte) bool {
	switch string(name) {
	case "script", "style", "audio":
		return true
	}
	return false
}
