package source

import (
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/wellness-aggregator/internal/extract"
	"github.com/JakeFAU/wellness-aggregator/internal/feed"
	"github.com/JakeFAU/wellness-aggregator/internal/relevance"
)

// AllEventsRules is the extraction table for allevents.in city listings.
var AllEventsRules = extract.Rules{
	Containers: []string{
		"li.event-card",
		".event-item",
		"[class*='event-card']",
		"[class*='event']",
	},
	Title: []extract.Field{
		extract.Text(".title h3"),
		extract.Text(".event-title"),
		extract.Text("h3"),
		extract.Text("[class*='title']"),
		extract.Attr("a[title]", "title"),
	},
	Location: []extract.Field{
		extract.Text(".location"),
		extract.Text(".venue"),
		extract.Text("[class*='venue']"),
		extract.Text("[class*='location']"),
	},
	When: []extract.Field{
		extract.Text(".date"),
		extract.Text("time"),
		extract.Text("[class*='date']"),
		extract.Text("[class*='time']"),
	},
	Link: []extract.Field{
		extract.Attr("", "data-link"),
		extract.Attr("", "href"),
		extract.Attr("a[href]", "href"),
	},
	Description: []extract.Field{
		extract.Text(".description"),
		extract.Text("p"),
	},
	MinTitleLength: 5,
}

// EventbriteRules is the extraction table for Eventbrite discovery pages.
var EventbriteRules = extract.Rules{
	Containers: []string{
		"[data-testid='search-event']",
		".discover-search-desktop-card",
		".search-event-card-wrapper",
		"article[class*='event']",
		"[class*='event-card']",
		"[class*='card']",
	},
	Title: []extract.Field{
		extract.Text("h3"),
		extract.Text("h2"),
		extract.Text("[class*='title']"),
		extract.Attr("a[aria-label]", "aria-label"),
	},
	Location: []extract.Field{
		extract.Text("[data-testid='event-location']"),
		extract.Text("[class*='location']"),
		extract.Text("[class*='venue']"),
	},
	When: []extract.Field{
		extract.Text("[data-testid='event-date']"),
		extract.Text("time"),
		extract.Text("[class*='date']"),
	},
	Link: []extract.Field{
		extract.Attr("a.event-card-link", "href"),
		extract.Attr("a[href*='/e/']", "href"),
		extract.Attr("a[href]", "href"),
	},
	Description: []extract.Field{
		extract.Text("[class*='summary']"),
		extract.Text("p"),
	},
	MinTitleLength: 3,
}

// NewAllEvents builds the allevents.in adapter:
// {base}/{city-slug}/health-wellness.
func NewAllEvents(
	opts Options,
	fetcher feed.Fetcher,
	detector BlockDetector,
	filter *relevance.Filter,
	logger *zap.Logger,
) (*Adapter, error) {
	base, err := parseBase(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	return New(Definition{
		ID:      feed.SourceAllEvents,
		BaseURL: base,
		Timeout: opts.Timeout,
		BuildURL: func(base *url.URL, q feed.Query) (string, error) {
			slug, err := citySlug(q)
			if err != nil {
				return "", err
			}
			return base.JoinPath(slug, "health-wellness").String(), nil
		},
		Rules:           func(feed.Query) extract.Rules { return AllEventsRules },
		Category:        fixedCategory(feed.CategoryWellness),
		Filter:          filter,
		MaxRecords:      opts.MaxRecords,
		LocationDefault: feed.VenueTBA,
		WhenDefault:     feed.DateTBA,
	}, fetcher, detector, logger), nil
}

// NewEventbrite builds the Eventbrite adapter:
// {base}/d/{region--}{city-slug}/wellness--events/. region may be empty.
func NewEventbrite(
	opts Options,
	region string,
	fetcher feed.Fetcher,
	detector BlockDetector,
	filter *relevance.Filter,
	logger *zap.Logger,
) (*Adapter, error) {
	base, err := parseBase(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	prefix := ""
	if r := Slug(region); r != "" {
		prefix = r + "--"
	}
	return New(Definition{
		ID:      feed.SourceEventbrite,
		BaseURL: base,
		Timeout: opts.Timeout,
		BuildURL: func(base *url.URL, q feed.Query) (string, error) {
			slug, err := citySlug(q)
			if err != nil {
				return "", err
			}
			return base.JoinPath("d", prefix+slug, "wellness--events").String() + "/", nil
		},
		Rules:           func(feed.Query) extract.Rules { return EventbriteRules },
		Category:        fixedCategory(feed.CategoryWellness),
		Filter:          filter,
		MaxRecords:      opts.MaxRecords,
		LocationDefault: feed.VenueTBA,
		WhenDefault:     feed.DateTBA,
	}, fetcher, detector, logger), nil
}
