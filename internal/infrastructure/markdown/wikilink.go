package markdown

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var (
	pageTargetPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	vocarooPattern    = regexp.MustCompile(`^https?://vocaroo\.com/i/([0-9A-Za-z]+)$`)

	openMarker  = []byte("[[")
	closeMarker = []byte("]]")
)

// KindWikiLink is the node kind of a [[Label|page]] link.
var KindWikiLink = ast.NewNodeKind("WikiLink")

// KindVocaroo is the node kind of a [[https://vocaroo.com/i/ID]] embed.
var KindVocaroo = ast.NewNodeKind("Vocaroo")

// WikiLink points at another wiki page by name.
type WikiLink struct {
	ast.BaseInline
	Label  []byte
	Target []byte
}

// Kind implements ast.Node.
func (n *WikiLink) Kind() ast.NodeKind {
	return KindWikiLink
}

// Dump implements ast.Node.
func (n *WikiLink) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Label":  string(n.Label),
		"Target": string(n.Target),
	}, nil)
}

// Vocaroo embeds a vocaroo recording player.
type Vocaroo struct {
	ast.BaseInline
	RecordingID []byte
}

// Kind implements ast.Node.
func (n *Vocaroo) Kind() ast.NodeKind {
	return KindVocaroo
}

// Dump implements ast.Node.
func (n *Vocaroo) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"RecordingID": string(n.RecordingID)}, nil)
}

type wikiLinkParser struct{}

func (wikiLinkParser) Trigger() []byte {
	return []byte{'['}
}

// Parse accepts [[...]] spans on a single line. Anything that is neither a
// vocaroo URL nor a Label|page pair is left to the regular link parser.
func (wikiLinkParser) Parse(_ ast.Node, block text.Reader, _ parser.Context) ast.Node {
	line, _ := block.PeekLine()
	if !bytes.HasPrefix(line, openMarker) {
		return nil
	}

	end := bytes.Index(line[len(openMarker):], closeMarker)
	if end < 0 {
		return nil
	}
	end += len(openMarker)

	consumed := end + len(closeMarker)
	if consumed < len(line) && line[consumed] == ']' {
		return nil
	}

	inner := line[len(openMarker):end]

	if match := vocarooPattern.FindSubmatch(inner); match != nil {
		block.Advance(consumed)
		return &Vocaroo{RecordingID: append([]byte(nil), match[1]...)}
	}

	sep := bytes.LastIndexByte(inner, '|')
	if sep <= 0 {
		return nil
	}

	label := bytes.TrimSpace(inner[:sep])
	target := inner[sep+1:]
	if len(label) == 0 || !pageTargetPattern.Match(target) {
		return nil
	}

	block.Advance(consumed)
	return &WikiLink{
		Label:  append([]byte(nil), label...),
		Target: append([]byte(nil), target...),
	}
}

type wikiLinkRenderer struct{}

func (r wikiLinkRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindWikiLink, r.renderWikiLink)
	reg.Register(KindVocaroo, r.renderVocaroo)
}

func (wikiLinkRenderer) renderWikiLink(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	link := node.(*WikiLink)
	_, _ = w.WriteString(`<a href="/page/`)
	_, _ = w.Write(link.Target)
	_, _ = w.WriteString(`">`)
	_, _ = w.Write(util.EscapeHTML(link.Label))
	_, _ = w.WriteString("</a>")

	return ast.WalkSkipChildren, nil
}

const vocarooPlayer = `<div class="vocaroo-player">` +
	`<audio controls="">` +
	`<source src="http://vocaroo.com/media_command.php?media=%[1]s&amp;command=download_mp3" type="audio/mpeg">` +
	`<source src="http://vocaroo.com/media_command.php?media=%[1]s&amp;command=download_webm" type="audio/webm">` +
	`</audio>` +
	`<a class="my-auto" href="https://vocaroo.com/i/%[1]s">[🔗]</a>` +
	`</div>`

func (wikiLinkRenderer) renderVocaroo(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	embed := node.(*Vocaroo)
	_, _ = fmt.Fprintf(w, vocarooPlayer, embed.RecordingID)

	return ast.WalkSkipChildren, nil
}

type wikiLinks struct{}

// WikiLinks adds [[Label|page]] links and vocaroo embeds to a goldmark instance.
var WikiLinks goldmark.Extender = wikiLinks{}

func (wikiLinks) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithInlineParsers(
		util.Prioritized(wikiLinkParser{}, 199),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(wikiLinkRenderer{}, 500),
	))
}
