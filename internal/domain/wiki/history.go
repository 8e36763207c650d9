package wiki

import (
	"sort"
	"strings"
)

// ResolveTitles numbers the page's edits in save order and fills in missing
// titles by carrying the previous one forward. A first edit without a title
// falls back to the page's current title.
func ResolveTitles(page *Page) []HistoryEntry {
	if page == nil {
		return nil
	}

	edits := sortedAscending(page.Edits)
	entries := make([]HistoryEntry, 0, len(edits))

	title := strings.TrimSpace(page.Title)
	for i, edit := range edits {
		if trimmed := strings.TrimSpace(edit.Title); trimmed != "" {
			title = trimmed
		}
		entries = append(entries, HistoryEntry{
			Index:    i,
			Edit:     edit,
			Title:    title,
			EditedAt: edit.EditedAt,
		})
	}

	return entries
}

// SquashByEditor collapses adjacent edits by the same editor into one entry.
// Entries are compared in save order; each run is represented by its first
// edit and remembers when the run ended. The result is newest run first.
func SquashByEditor(entries []HistoryEntry) []SquashedEntry {
	if len(entries) == 0 {
		return nil
	}

	ordered := make([]HistoryEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return editBefore(ordered[i].Edit, ordered[j].Edit)
	})

	var runs []SquashedEntry
	for _, entry := range ordered {
		if n := len(runs); n > 0 && runs[n-1].EditorCookie == entry.Edit.EditorCookie {
			runs[n-1].LastEditedAt = entry.Edit.EditedAt
			runs[n-1].Count++
			continue
		}

		runs = append(runs, SquashedEntry{
			Index:        entry.Index,
			EditID:       entry.Edit.ID,
			Title:        entry.Title,
			Editor:       entry.Editor,
			EditorCookie: entry.Edit.EditorCookie,
			EditedAt:     entry.Edit.EditedAt,
			LastEditedAt: entry.Edit.EditedAt,
			Count:        1,
		})
	}

	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}

	return runs
}

// DedupeConsecutive drops edits that repeat the (editor, page) pair of the
// edit kept just before them. The input is expected newest first.
func DedupeConsecutive(edits []Edit) []Edit {
	var (
		out      []Edit
		previous *Edit
	)

	for i := range edits {
		if previous != nil && sameAuthorship(*previous, edits[i]) {
			continue
		}
		out = append(out, edits[i])
		previous = &edits[i]
	}

	return out
}

func sameAuthorship(a, b Edit) bool {
	return a.EditorCookie == b.EditorCookie && a.PageName == b.PageName
}

func sortedAscending(edits []Edit) []Edit {
	ordered := make([]Edit, len(edits))
	copy(ordered, edits)
	sort.SliceStable(ordered, func(i, j int) bool {
		return editBefore(ordered[i], ordered[j])
	})
	return ordered
}

// editBefore orders edits by time, falling back to insertion sequence.
func editBefore(a, b Edit) bool {
	if !a.EditedAt.Equal(b.EditedAt) {
		return a.EditedAt.Before(b.EditedAt)
	}
	return a.Seq < b.Seq
}
