package feed

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata. Failures are
// reported as *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Adapter produces structured records for a query from one upstream source.
// Errors are returned explicitly; callers decide how to absorb them.
type Adapter interface {
	ID() SourceID
	FetchRecords(ctx context.Context, query Query) ([]Record, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using time.Now in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
