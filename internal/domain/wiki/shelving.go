package wiki

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var leadingArticle = regexp.MustCompile(`^(?:(?:les|le|la)\s+|l['’]\s*)`)

// otherShelf collects titles that have no usable first letter.
const otherShelf = "#"

// ShelfKey returns the letter a title is filed under: the first letter of the
// lowercased title once diacritics and a leading French article are removed.
func ShelfKey(title string) string {
	folded := stripDiacritics(strings.ToLower(strings.TrimSpace(title)))

	rest := strings.TrimSpace(leadingArticle.ReplaceAllString(folded, ""))
	if rest == "" {
		rest = folded
	}

	r, _ := utf8.DecodeRuneInString(rest)
	if r == utf8.RuneError || unicode.IsSpace(r) {
		return otherShelf
	}

	return string(r)
}

// GroupByLetter sorts pages by title with French collation and shelves them
// by ShelfKey. Groups are ordered by letter; pages keep title order inside a group.
func GroupByLetter(pages []Page) []LetterGroup {
	collator := collate.New(language.French)

	sorted := make([]Page, len(pages))
	copy(sorted, pages)
	sort.SliceStable(sorted, func(i, j int) bool {
		if cmp := collator.CompareString(sorted[i].Title, sorted[j].Title); cmp != 0 {
			return cmp < 0
		}
		return sorted[i].Name < sorted[j].Name
	})

	index := make(map[string]int)
	var groups []LetterGroup
	for _, page := range sorted {
		key := ShelfKey(page.Title)
		pos, ok := index[key]
		if !ok {
			pos = len(groups)
			index[key] = pos
			groups = append(groups, LetterGroup{Letter: key})
		}
		groups[pos].Pages = append(groups[pos].Pages, page)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return collator.CompareString(groups[i].Letter, groups[j].Letter) < 0
	})

	return groups
}

func stripDiacritics(value string) string {
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(chain, value)
	if err != nil {
		return value
	}
	return stripped
}
