// Package relevance classifies scraped records as in-domain by keyword match.
package relevance

import "strings"

// DefaultKeywords is the wellness vocabulary used when none is configured.
// Broad terms such as "workshop" are intentional: the feed favours recall.
var DefaultKeywords = []string{
	"wellness",
	"wellbeing",
	"well-being",
	"mental health",
	"mindful",
	"meditat",
	"yoga",
	"breath",
	"stress",
	"anxiety",
	"therapy",
	"healing",
	"self-care",
	"self care",
	"support group",
	"counsel",
	"retreat",
	"reiki",
	"sound bath",
	"workshop",
	"relax",
	"calm",
}

// Filter performs case-insensitive substring matching against a fixed
// vocabulary. It is safe for concurrent use.
type Filter struct {
	keywords []string
}

// New builds a Filter. Keywords are trimmed and lowercased; blanks are
// dropped. An empty vocabulary matches nothing.
func New(keywords []string) *Filter {
	f := &Filter{}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			f.keywords = append(f.keywords, k)
		}
	}
	return f
}

// Keywords returns a copy of the normalized vocabulary.
func (f *Filter) Keywords() []string {
	return append([]string(nil), f.keywords...)
}

// IsRelevant reports whether title or description mentions any keyword.
func (f *Filter) IsRelevant(title, description string) bool {
	text := strings.ToLower(title + " " + description)
	for _, k := range f.keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
