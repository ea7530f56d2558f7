// Package extract turns untrusted markup into candidate records using
// ordered, data-driven selector tables.
package extract

import (
	"bytes"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// Field locates one value inside a container element. An empty Selector
// targets the container itself; an empty Attr reads the element text.
type Field struct {
	Selector string
	Attr     string
}

// Text selects the text of the first element matching selector.
func Text(selector string) Field {
	return Field{Selector: selector}
}

// Attr selects an attribute of the first element matching selector.
func Attr(selector, attr string) Field {
	return Field{Selector: selector, Attr: attr}
}

// Rules is the extraction table for one page shape. Every list is ordered
// most specific first; the first non-empty match wins.
type Rules struct {
	Containers  []string
	Title       []Field
	Location    []Field
	When        []Field
	Link        []Field
	Description []Field

	// MinTitleLength is exclusive: titles must be longer than this.
	MinTitleLength int
	// Limit caps raw candidates, before any relevance filtering by the
	// caller; zero means no cap.
	Limit int
	// RedirectParam names a query parameter carrying the real target of a
	// redirect link (for example "q" on search-engine result links).
	RedirectParam string
}

// Candidate is one extracted record. Missing fields are empty strings.
type Candidate struct {
	Title       string
	Location    string
	When        string
	Link        string
	Description string
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Extract parses raw markup and applies rules. It never fails: malformed
// markup or missing elements yield fewer candidates, never an error.
// Relative links are resolved against base.
func Extract(raw []byte, contentType string, base *url.URL, rules Rules) (candidates []Candidate) {
	defer func() {
		if r := recover(); r != nil {
			candidates = nil
		}
	}()

	doc, err := goquery.NewDocumentFromReader(decode(raw, contentType))
	if err != nil {
		return nil
	}
	for _, selector := range rules.Containers {
		found := fromContainers(doc.Find(selector), base, rules)
		if len(found) > 0 {
			return found
		}
	}
	return nil
}

func fromContainers(containers *goquery.Selection, base *url.URL, rules Rules) []Candidate {
	var out []Candidate
	containers.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := firstValue(s, rules.Title)
		if title == "" || len([]rune(title)) <= rules.MinTitleLength {
			return true
		}
		out = append(out, Candidate{
			Title:       title,
			Location:    firstValue(s, rules.Location),
			When:        firstValue(s, rules.When),
			Link:        firstLink(s, base, rules),
			Description: firstValue(s, rules.Description),
		})
		return rules.Limit <= 0 || len(out) < rules.Limit
	})
	return out
}

func firstValue(s *goquery.Selection, fields []Field) string {
	for _, f := range fields {
		if v := fieldValue(s, f); v != "" {
			return v
		}
	}
	return ""
}

func firstLink(s *goquery.Selection, base *url.URL, rules Rules) string {
	for _, f := range rules.Link {
		if link := ResolveLink(base, fieldValue(s, f), rules.RedirectParam); link != "" {
			return link
		}
	}
	return ""
}

func fieldValue(s *goquery.Selection, f Field) string {
	target := s
	if f.Selector != "" {
		target = s.Find(f.Selector).First()
	}
	if target.Length() == 0 {
		return ""
	}
	if f.Attr == "" {
		return Clean(target.Text())
	}
	v, _ := target.Attr(f.Attr)
	return Clean(v)
}

// Clean collapses runs of whitespace and trims the result.
func Clean(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// ResolveLink makes href absolute against base, unwraps redirect links when
// redirectParam is set, and drops anything that is not http(s).
func ResolveLink(base *url.URL, href, redirectParam string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if redirectParam != "" {
		if target := abs.Query().Get(redirectParam); target != "" {
			if t, err := url.Parse(target); err == nil && t.IsAbs() {
				abs = t
			}
		}
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

func decode(raw []byte, contentType string) io.Reader {
	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return bytes.NewReader(raw)
	}
	return r
}
