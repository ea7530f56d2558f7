package feed

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks caller errors (missing or malformed parameters).
	ErrInvalidInput = errors.New("invalid input")
	// ErrMissingCredential marks a deployment that lacks an upstream credential.
	ErrMissingCredential = errors.New("upstream credential not configured")
	// ErrNoCandidates is returned when a page yielded no acceptable records.
	ErrNoCandidates = errors.New("no candidates extracted")
	// ErrBlocked is returned when an upstream served a captcha or consent wall.
	ErrBlocked = errors.New("upstream served a block page")
)

// FetchErrorKind classifies Fetch Client failures.
type FetchErrorKind string

// Fetch failure kinds.
const (
	FetchTimeout    FetchErrorKind = "timeout"
	FetchHTTPStatus FetchErrorKind = "http_status"
	FetchNetwork    FetchErrorKind = "network"
	// FetchCanceled means the caller gave up, not the upstream.
	FetchCanceled   FetchErrorKind = "canceled"
)

// FetchError is the typed failure returned by a Fetcher.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchHTTPStatus:
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	case FetchTimeout:
		return fmt.Sprintf("fetch %s: timeout: %v", e.URL, e.Err)
	case FetchCanceled:
		return fmt.Sprintf("fetch %s: canceled: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// AdapterStage names the step of an adapter pipeline that failed.
type AdapterStage string

// Adapter pipeline stages.
const (
	StageBuild   AdapterStage = "build"
	StageFetch   AdapterStage = "fetch"
	StageBlocked AdapterStage = "blocked"
	StageExtract AdapterStage = "extract"
	StagePanic   AdapterStage = "panic"
)

// AdapterError wraps a failure with the source and stage that produced it.
type AdapterError struct {
	Source SourceID
	Stage  AdapterStage
	Err    error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("source %s: %s: %v", e.Source, e.Stage, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// ErrorKind reduces an adapter error to a short label for logs and metrics.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return string(fetchErr.Kind)
	}
	switch {
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrNoCandidates):
		return "no_candidates"
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return string(adapterErr.Stage)
	}
	return "unknown"
}
