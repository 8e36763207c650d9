package templates

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

// Layout wraps body in the shared page chrome.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var m markup
		m.raw(`<!DOCTYPE html><html lang="fr"><head><meta charset="utf-8">`,
			`<meta name="viewport" content="width=device-width, initial-scale=1">`,
			`<title>`).text(title).raw(`</title>`,
			`<link rel="stylesheet" href="/static/style.css">`,
			`<link rel="icon" href="/static/favicon.svg" type="image/svg+xml">`,
			`</head><body>`,
			`<header class="site-header"><a class="brand" href="/">`).text(SiteName).raw(`</a>`,
			`<nav><a href="/pages">Toutes les pages</a> <a href="/api/random">Page au hasard</a></nav>`,
			`<form class="search" action="/api/search" method="get"><input type="search" name="query" placeholder="Rechercher"></form>`,
			`</header><main>`)
		if err := m.render(ctx, body); err != nil {
			return err
		}
		m.raw(`</main><footer class="site-footer">`).text(DefaultFooterNote).raw(`</footer></body></html>`)

		return m.flush(w)
	})
}

// HomePage renders the landing page with the latest edits.
func HomePage(data HomePageData) templ.Component {
	return Layout(SiteName, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var m markup
		m.raw(`<section class="home"><h1>`).text(SiteName).raw(`</h1><p class="page-count">`).
			text(fmt.Sprintf("%d pages écrites jusqu'ici.", data.PageCount)).raw(`</p>`)
		m.raw(`<h2>Dernières modifications</h2>`)
		writeEdits(&m, data.RecentEdits, true)
		m.raw(`</section>`)
		return m.flush(w)
	}))
}

// WikiPage renders a page with its squashed history.
func WikiPage(data WikiPageData) templ.Component {
	return Layout(data.Title+" • "+SiteName, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var m markup
		m.raw(`<article class="wiki-page" data-revision="`).text(fmt.Sprint(data.Revision)).raw(`"><h1>`).text(data.Title).raw(`</h1>`)
		if data.HasAudio {
			m.raw(`<audio class="title-audio" controls src="/audio/`).text(data.Name).raw(`.wav"></audio>`)
		}
		m.raw(`<div class="wiki-content">`)
		if err := m.render(ctx, RawHTML(data.HTML)); err != nil {
			return err
		}
		m.raw(`</div></article><aside class="history"><h2>Historique</h2>`)
		writeEdits(&m, data.History, false)
		m.raw(`</aside>`)
		return m.flush(w)
	}))
}

// IndexPage lists every page grouped by letter.
func IndexPage(data IndexPageData) templ.Component {
	return Layout("Toutes les pages • "+SiteName, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var m markup
		m.raw(`<section class="index"><h1>Toutes les pages</h1>`)
		for _, letter := range data.Letters {
			m.raw(`<h2 class="letter">`).text(letter.Letter).raw(`</h2><ul>`)
			for _, page := range letter.Pages {
				m.raw(`<li><a href="/page/`).text(page.Name).raw(`">`).text(page.Title).raw(`</a></li>`)
			}
			m.raw(`</ul>`)
		}
		m.raw(`</section>`)
		return m.flush(w)
	}))
}

// UserPage renders the public page of a registered identity.
func UserPage(data UserPageData) templ.Component {
	return Layout(data.Editor.DisplayName+" • "+SiteName, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var m markup
		m.raw(`<section class="user">`)
		writeEditor(&m, data.Editor)
		m.raw(`<p class="profile">`).text(fmt.Sprintf("%s, %d ans, %s", data.Job, data.Age, data.City)).raw(`</p>`)
		if data.ProfileHTML != "" {
			m.raw(`<div class="profile-text">`)
			if err := m.render(ctx, RawHTML(data.ProfileHTML)); err != nil {
				return err
			}
			m.raw(`</div>`)
		}
		m.raw(`<h2>Contributions</h2>`)
		writeEdits(&m, data.Edits, true)
		m.raw(`</section>`)
		return m.flush(w)
	}))
}

// ErrorPage renders a status page.
func ErrorPage(data ErrorPageData) templ.Component {
	return Layout(data.StatusLabel+" • "+SiteName, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var m markup
		m.raw(`<section class="error"><h1>`).text(data.StatusLabel).raw(`</h1><p>`).text(data.Message).raw(`</p></section>`)
		return m.flush(w)
	}))
}

func writeEditor(m *markup, editor EditorView) {
	m.raw(`<span class="editor" style="color:`).text(editor.Color).raw(`">`,
		`<img class="avatar" alt="" src="/static/img/avatars/`).text(editor.AvatarImage).raw(`.png">`,
		`<a href="/user/`).text(editor.ShortID).raw(`">`).text(editor.DisplayName).raw(`</a></span>`)
}

func writeEdits(m *markup, edits []EditView, withPage bool) {
	if len(edits) == 0 {
		m.raw(`<p class="empty">Aucune modification pour l'instant.</p>`)
		return
	}

	m.raw(`<ol class="edits">`)
	for _, edit := range edits {
		m.raw(`<li>`)
		if withPage {
			m.raw(`<a class="page" href="/page/`).text(edit.PageName).raw(`">`).text(edit.Title).raw(`</a> `)
		} else {
			m.raw(`<span class="title">`).text(edit.Title).raw(`</span> `)
		}
		writeEditor(m, edit.Editor)
		m.raw(` <time>`).text(edit.When).raw(`</time>`)
		if edit.Count > 1 {
			m.raw(` <span class="count">(`).text(fmt.Sprintf("%d modifications", edit.Count)).raw(`)</span>`)
		}
		m.raw(`</li>`)
	}
	m.raw(`</ol>`)
}
