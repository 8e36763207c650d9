package wiki

import (
	"time"

	"github.com/google/uuid"

	"wikiloult/app/internal/domain/identity"
)

// Page is the current projection of a wiki entry. Edits is only populated by
// history-aware lookups and is ordered by edit time ascending.
type Page struct {
	Name       string
	Title      string
	Markdown   string
	HTML       string
	Revision   int
	CreatedAt  time.Time
	LastEditAt time.Time
	Edits      []Edit
}

// Edit is an immutable record of one save. PageName is a back-reference to
// the owning page, not an ownership link.
type Edit struct {
	ID           uuid.UUID
	Seq          int64
	PageName     string
	EditorCookie string
	Title        string
	Markdown     string
	EditedAt     time.Time
}

// HistoryEntry is an edit with its title resolved and its editor's persona attached.
type HistoryEntry struct {
	Index    int
	Edit     Edit
	Title    string
	HTML     string
	Editor   identity.Persona
	EditedAt time.Time
}

// SquashedEntry stands for a run of consecutive edits by the same editor.
type SquashedEntry struct {
	Index        int
	EditID       uuid.UUID
	Title        string
	Editor       identity.Persona
	EditorCookie string
	EditedAt     time.Time
	LastEditedAt time.Time
	Count        int
}

// PageView is a page together with its squashed history, newest run first.
type PageView struct {
	Page    Page
	History []SquashedEntry
}

// SearchHit is a page matched by a search along with its weighted score.
type SearchHit struct {
	Page  Page
	Score int
}

// SearchResult represents a wiki entry returned by search operations.
type SearchResult struct {
	Name    string
	Title   string
	Excerpt string
	Score   int
}

// LetterGroup holds the pages shelved under one initial letter.
type LetterGroup struct {
	Letter string
	Pages  []Page
}

// LastEdit is one entry of the cross-page recent edits list.
type LastEdit struct {
	EditID   uuid.UUID
	PageName string
	Title    string
	Excerpt  string
	Editor   identity.Persona
	EditedAt time.Time
}

// FeedEditor is the public part of a persona shown in the edits feed.
type FeedEditor struct {
	DisplayName string `json:"display_name"`
	AvatarID    int    `json:"avatar_id"`
	Color       string `json:"color"`
}

// FeedItem is one element of the machine readable recent edits feed.
type FeedItem struct {
	Title  string     `json:"title"`
	Name   string     `json:"name"`
	Time   string     `json:"time"`
	Editor FeedEditor `json:"editor"`
}

// SaveResult is returned by create, edit and restore. Preview results carry
// only PreviewHTML and leave Page and Edit nil.
type SaveResult struct {
	Preview     bool
	PreviewHTML string
	Page        *Page
	Edit        *Edit
}

// Order selects the direction history is listed in.
type Order int

const (
	// Descending lists the newest edit first.
	Descending Order = iota
	// Ascending lists edits in the order they were saved.
	Ascending
)
