package source

import (
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/wellness-aggregator/internal/extract"
	"github.com/JakeFAU/wellness-aggregator/internal/feed"
)

// placeProfile is the category-specific part of the places search.
type placeProfile struct {
	Term       string
	Containers []string
	Title      []extract.Field
}

// placeProfiles maps each place category to its search term and selectors.
// Local-pack results come first; organic results are the fallback.
var placeProfiles = map[feed.Category]placeProfile{
	feed.CategoryYoga: {
		Term:       "yoga studios",
		Containers: []string{"div.VkpGBb", "div.rllt__details", "div.g", "div.MjjYud"},
		Title:      []extract.Field{extract.Text("span.OSrXXb"), extract.Text("div.dbg0pd"), extract.Text("h3")},
	},
	feed.CategoryReligious: {
		Term: "temples and places of worship",
		Containers: []string{
			"div.VkpGBb", "div.rllt__details", "div.cXedhc", "div.g", "div.MjjYud",
		},
		Title: []extract.Field{
			extract.Text("span.OSrXXb"), extract.Text("div.dbg0pd"), extract.Text("[role='heading']"), extract.Text("h3"),
		},
	},
	feed.CategoryMeditation: {
		Term:       "meditation centers",
		Containers: []string{"div.VkpGBb", "div.rllt__details", "div.g", "div.MjjYud"},
		Title:      []extract.Field{extract.Text("span.OSrXXb"), extract.Text("div.dbg0pd"), extract.Text("h3")},
	},
}

var placeLocation = []extract.Field{
	extract.Text(".rllt__details div:nth-of-type(3)"),
	extract.Text("span.LrzXr"),
	extract.Text("[class*='address']"),
}

var placeLink = []extract.Field{
	extract.Attr("a.yYlJEf", "href"),
	extract.Attr("a[href^='/url']", "href"),
	extract.Attr("a[href^='http']", "href"),
	extract.Attr("a[href]", "href"),
}

var placeDescription = []extract.Field{
	extract.Text("div.VwiC3b"),
	extract.Text(".st"),
}

// PlaceRules returns the extraction table for a place category.
func PlaceRules(c feed.Category) (extract.Rules, bool) {
	p, ok := placeProfiles[c]
	if !ok {
		return extract.Rules{}, false
	}
	return extract.Rules{
		Containers:     p.Containers,
		Title:          p.Title,
		Location:       placeLocation,
		Link:           placeLink,
		Description:    placeDescription,
		MinTitleLength: 2,
		RedirectParam:  "q",
	}, true
}

// PlaceSearchQuery builds the free-text search for a places query.
func PlaceSearchQuery(q feed.Query) (string, error) {
	p, ok := placeProfiles[q.Category]
	if !ok {
		return "", fmt.Errorf("%w: unsupported place category %q", feed.ErrInvalidInput, q.Category)
	}
	locality := strings.TrimSpace(q.Locality)
	city := strings.TrimSpace(q.City)
	if locality == "" || city == "" {
		return "", fmt.Errorf("%w: locality and city are required", feed.ErrInvalidInput)
	}
	return fmt.Sprintf("%s near %s, %s", p.Term, locality, city), nil
}

// NewPlaces builds the search-engine places adapter:
// {base}/search?q=<term> near <locality>, <city>&hl=en.
func NewPlaces(
	opts Options,
	fetcher feed.Fetcher,
	detector BlockDetector,
	logger *zap.Logger,
) (*Adapter, error) {
	base, err := parseBase(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	return New(Definition{
		ID:      feed.SourceSearchPlaces,
		BaseURL: base,
		Timeout: opts.Timeout,
		BuildURL: func(base *url.URL, q feed.Query) (string, error) {
			text, err := PlaceSearchQuery(q)
			if err != nil {
				return "", err
			}
			u := base.JoinPath("search")
			u.RawQuery = url.Values{"q": {text}, "hl": {"en"}}.Encode()
			return u.String(), nil
		},
		Rules: func(q feed.Query) extract.Rules {
			rules, _ := PlaceRules(q.Category)
			return rules
		},
		Category:        func(q feed.Query) feed.Category { return q.Category },
		MaxRecords:      opts.MaxRecords,
		LocationDefault: feed.AddressTBA,
	}, fetcher, detector, logger), nil
}
