// Package feed defines core types shared across the aggregation subsystems.
package feed

import (
	"net/http"
	"time"
)

// SourceID tags the adapter that produced a record.
type SourceID string

// Known source identifiers.
const (
	SourceAllEvents    SourceID = "allevents"
	SourceEventbrite   SourceID = "eventbrite"
	SourceSearchPlaces SourceID = "search-places"
)

// Category is the domain tag carried by every record.
type Category string

// Category values. Events are always CategoryWellness; places carry the
// category requested by the caller.
const (
	CategoryWellness   Category = "wellness"
	CategoryYoga       Category = "yoga"
	CategoryReligious  Category = "religious"
	CategoryMeditation Category = "meditation"
)

// PlaceCategories lists the categories accepted by the places endpoint.
var PlaceCategories = []Category{CategoryYoga, CategoryReligious, CategoryMeditation}

// ParsePlaceCategory performs an exact, case-sensitive enum check.
func ParsePlaceCategory(raw string) (Category, bool) {
	for _, c := range PlaceCategories {
		if string(c) == raw {
			return c, true
		}
	}
	return "", false
}

// Placeholders used when a field could not be extracted.
const (
	VenueTBA   = "Venue TBA"
	DateTBA    = "Date TBA"
	AddressTBA = "Address TBA"
)

// Record is one normalized scraped item (an event or a place).
type Record struct {
	Title       string
	Location    string
	When        string
	Description string
	URL         string
	Source      SourceID
	Category    Category
	// Lat and Lng are reserved and never populated by current adapters.
	Lat *float64
	Lng *float64
}

// Query is the caller's location (and, for places, category) input.
type Query struct {
	City     string
	Locality string
	Category Category
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
	Timeout time.Duration
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// ContentType returns the response Content-Type header, if any.
func (r FetchResponse) ContentType() string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get("Content-Type")
}
