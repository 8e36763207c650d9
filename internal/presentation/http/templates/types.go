package templates

// SiteName is shown in the header and page titles.
const SiteName = "Wikiloult"

// DefaultFooterNote is shown in the shared layout when a page does not supply custom text.
const DefaultFooterNote = "Wikiloult est écrit par ses visiteurs. Chaque modification est conservée dans l'historique."

// EditorView is the public face of a persona.
type EditorView struct {
	ShortID     string
	DisplayName string
	AvatarImage string
	Color       string
}

// EditView is one line of a history listing.
type EditView struct {
	PageName string
	Title    string
	Editor   EditorView
	When     string
	Count    int
	Index    int
}

// PageLink points at a wiki page.
type PageLink struct {
	Name  string
	Title string
}

// LetterView groups page links under a letter.
type LetterView struct {
	Letter string
	Pages  []PageLink
}

// HomePageData contains dynamic values rendered on the landing page.
type HomePageData struct {
	PageCount   int64
	RecentEdits []EditView
}

// WikiPageData contains the dynamic values for a wiki page.
type WikiPageData struct {
	Name     string
	Title    string
	HTML     string
	Revision int
	History  []EditView
	HasAudio bool
	CanAdmin bool
}

// IndexPageData lists every page by letter.
type IndexPageData struct {
	Letters []LetterView
}

// UserPageData is the public page of a registered identity.
type UserPageData struct {
	Editor      EditorView
	Job         string
	Age         int
	City        string
	ProfileHTML string
	Edits       []EditView
}

// ErrorPageData holds information for rendering an error view.
type ErrorPageData struct {
	StatusLabel string
	Message     string
}
