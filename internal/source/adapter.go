// Package source implements the per-upstream adapters that turn a location
// query into structured records: fetch, block-page check, extract, filter.
package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wellness-aggregator/internal/extract"
	"github.com/JakeFAU/wellness-aggregator/internal/feed"
	"github.com/JakeFAU/wellness-aggregator/internal/relevance"
)

// BlockDetector recognises captcha and consent pages served with a 2xx status.
type BlockDetector interface {
	IsBlocked(resp feed.FetchResponse) bool
}

// Options are the deployment knobs shared by every adapter.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRecords int
}

// Definition describes one upstream: where to go, how to read it, and how
// to label what comes back.
type Definition struct {
	ID       feed.SourceID
	BaseURL  *url.URL
	Timeout  time.Duration
	Headers  http.Header
	BuildURL func(base *url.URL, q feed.Query) (string, error)
	Rules    func(q feed.Query) extract.Rules
	Category func(q feed.Query) feed.Category
	// Filter drops off-topic candidates; nil keeps everything.
	Filter *relevance.Filter
	// MaxRecords caps records after filtering; zero means no cap.
	MaxRecords int
	// Placeholders for fields the page did not provide. An empty
	// WhenDefault means the source has no temporal label at all.
	LocationDefault string
	WhenDefault     string
}

// Adapter runs one Definition against a Fetcher.
type Adapter struct {
	def      Definition
	fetcher  feed.Fetcher
	detector BlockDetector
	logger   *zap.Logger
}

// New builds an Adapter. detector may be nil.
func New(def Definition, fetcher feed.Fetcher, detector BlockDetector, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		def:      def,
		fetcher:  fetcher,
		detector: detector,
		logger:   logger.Named("source").With(zap.String("source", string(def.ID))),
	}
}

// ID returns the source identifier attached to every produced record.
func (a *Adapter) ID() feed.SourceID {
	return a.def.ID
}

// FetchRecords fetches and parses the upstream page for q. Every failure is
// returned as *feed.AdapterError; callers choose whether to absorb it.
func (a *Adapter) FetchRecords(ctx context.Context, q feed.Query) ([]feed.Record, error) {
	target, err := a.def.BuildURL(a.def.BaseURL, q)
	if err != nil {
		return nil, a.fail(feed.StageBuild, err)
	}

	resp, err := a.fetcher.Fetch(ctx, feed.FetchRequest{
		URL:     target,
		Headers: a.def.Headers,
		Timeout: a.def.Timeout,
	})
	if err != nil {
		return nil, a.fail(feed.StageFetch, err)
	}
	if a.detector != nil && a.detector.IsBlocked(resp) {
		return nil, a.fail(feed.StageBlocked, feed.ErrBlocked)
	}

	rules := a.def.Rules(q)
	candidates := extract.Extract(resp.Body, resp.ContentType(), a.def.BaseURL, rules)
	category := a.def.Category(q)

	records := make([]feed.Record, 0, len(candidates))
	for _, c := range candidates {
		if a.def.Filter != nil && !a.def.Filter.IsRelevant(c.Title, c.Description) {
			continue
		}
		records = append(records, a.toRecord(c, category, target))
		if a.def.MaxRecords > 0 && len(records) == a.def.MaxRecords {
			break
		}
	}
	if len(records) == 0 {
		return nil, a.fail(feed.StageExtract,
			fmt.Errorf("%w: %d candidates from %d bytes", feed.ErrNoCandidates, len(candidates), len(resp.Body)))
	}

	a.logger.Debug("source records extracted",
		zap.String("url", target),
		zap.Int("candidates", len(candidates)),
		zap.Int("records", len(records)),
		zap.Duration("fetch_duration", resp.Duration),
	)
	return records, nil
}

func (a *Adapter) toRecord(c extract.Candidate, category feed.Category, pageURL string) feed.Record {
	r := feed.Record{
		Title:       c.Title,
		Location:    orDefault(c.Location, a.def.LocationDefault),
		Description: c.Description,
		URL:         orDefault(c.Link, pageURL),
		Source:      a.def.ID,
		Category:    category,
	}
	if a.def.WhenDefault != "" {
		r.When = orDefault(c.When, a.def.WhenDefault)
	}
	return r
}

func (a *Adapter) fail(stage feed.AdapterStage, err error) error {
	return &feed.AdapterError{Source: a.def.ID, Stage: stage, Err: err}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func fixedCategory(c feed.Category) func(feed.Query) feed.Category {
	return func(feed.Query) feed.Category { return c }
}

func parseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(raw), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute http(s)", raw)
	}
	return u, nil
}

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases s and joins its alphanumeric runs with hyphens.
func Slug(s string) string {
	return strings.Trim(nonSlugRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-"), "-")
}

func citySlug(q feed.Query) (string, error) {
	slug := Slug(q.City)
	if slug == "" {
		return "", fmt.Errorf("%w: city %q has no usable characters", feed.ErrInvalidInput, q.City)
	}
	return slug, nil
}
