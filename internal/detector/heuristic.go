// Package detector recognises upstream pages that are not real content:
// captchas, consent walls, bot challenges and script-only shells.
package detector

import (
	"bytes"
	"strings"

	"github.com/JakeFAU/wellness-aggregator/internal/feed"
)

// Heuristic implements a handful of rule-based block-page checks.
type Heuristic struct {
	BodyLengthThreshold int
	Markers             [][]byte
}

// DefaultMarkers are lowercase fragments that only appear on block pages.
var DefaultMarkers = [][]byte{
	[]byte("our systems have detected unusual traffic"),
	[]byte("g-recaptcha"),
	[]byte("/recaptcha/api"),
	[]byte("consent.google.com"),
	[]byte("before you continue to google"),
	[]byte("cf-challenge"),
	[]byte("attention required! | cloudflare"),
	[]byte("please verify you are a human"),
	[]byte("px-captcha"),
}

// NewHeuristic creates a new detector. A zero threshold defaults to 2048
// bytes; nil markers default to DefaultMarkers.
func NewHeuristic(threshold int, markers [][]byte) *Heuristic {
	if threshold == 0 {
		threshold = 2048
	}
	if markers == nil {
		markers = DefaultMarkers
	}
	return &Heuristic{BodyLengthThreshold: threshold, Markers: markers}
}

// IsBlocked reports whether a successful response is a block page rather
// than content. Non-2xx responses are the fetcher's concern and return false.
func (h *Heuristic) IsBlocked(resp feed.FetchResponse) bool {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}
	body := resp.Body
	if len(body) == 0 {
		return false
	}
	lower := bytes.ToLower(body)
	for _, marker := range h.Markers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return len(body) < h.BodyLengthThreshold && scriptDensityHigh(lower)
}

func scriptDensityHigh(lowerBody []byte) bool {
	lower := string(lowerBody)
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Malformed tag: the rest of the document counts as script.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := strings.Index(lower[contentStart:], closeTag)
		var nextSearch int
		if relativeEnd == -1 {
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	if scriptCoverage == 0 {
		return false
	}
	return scriptCoverage*100/total >= 60
}
