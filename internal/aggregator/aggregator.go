// Package aggregator fans a query out to source adapters, merges what comes
// back and removes duplicate titles.
package aggregator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wellness-aggregator/internal/feed"
	"github.com/JakeFAU/wellness-aggregator/internal/metrics"
)

// Result is the merged output of one aggregation.
type Result struct {
	Records   []feed.Record
	Sources   []feed.SourceID
	Timestamp time.Time
}

// Aggregator runs adapters concurrently and absorbs their failures.
type Aggregator struct {
	logger *zap.Logger
	clock  feed.Clock
}

// New creates an Aggregator. A nil clock uses the system clock.
func New(logger *zap.Logger, clock feed.Clock) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = feed.SystemClock{}
	}
	return &Aggregator{logger: logger.Named("aggregator"), clock: clock}
}

type outcome struct {
	records  []feed.Record
	err      error
	duration time.Duration
}

// Aggregate invokes every adapter at once and waits for all of them. Adapter
// errors are logged and counted, then treated as an empty contribution, so
// the result is always usable. Records keep adapter order, then page order.
func (a *Aggregator) Aggregate(ctx context.Context, q feed.Query, adapters []feed.Adapter) Result {
	outcomes := make([]outcome, len(adapters))
	var wg sync.WaitGroup
	for i, ad := range adapters {
		wg.Add(1)
		go func(i int, ad feed.Adapter) {
			defer wg.Done()
			outcomes[i] = a.run(ctx, q, ad)
		}(i, ad)
	}
	wg.Wait()

	sources := make([]feed.SourceID, 0, len(adapters))
	var merged []feed.Record
	for i, ad := range adapters {
		id := ad.ID()
		sources = append(sources, id)
		o := outcomes[i]
		if o.err != nil {
			kind := feed.ErrorKind(o.err)
			a.logger.Warn("source failed",
				zap.String("source", string(id)),
				zap.String("kind", kind),
				zap.String("city", q.City),
				zap.Duration("duration", o.duration),
				zap.Error(o.err),
			)
			metrics.ObserveSource(string(id), metrics.OutcomeError+":"+kind, 0, o.duration)
			continue
		}
		result := metrics.OutcomeOK
		if len(o.records) == 0 {
			result = metrics.OutcomeEmpty
		}
		metrics.ObserveSource(string(id), result, len(o.records), o.duration)
		merged = append(merged, o.records...)
	}

	records := Dedupe(merged)
	a.logger.Debug("aggregation complete",
		zap.String("city", q.City),
		zap.Int("sources", len(adapters)),
		zap.Int("raw", len(merged)),
		zap.Int("records", len(records)),
	)
	return Result{
		Records:   records,
		Sources:   sources,
		Timestamp: a.clock.Now(),
	}
}

func (a *Aggregator) run(ctx context.Context, q feed.Query, ad feed.Adapter) (o outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o = outcome{err: &feed.AdapterError{
				Source: ad.ID(),
				Stage:  feed.StagePanic,
				Err:    fmt.Errorf("recovered: %v", r),
			}}
		}
		o.duration = time.Since(start)
	}()
	records, err := ad.FetchRecords(ctx, q)
	return outcome{records: records, err: err}
}

// NormalizeTitle is the dedup key: lowercased and trimmed.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// Dedupe drops records whose normalized title was already seen. The first
// occurrence wins and order is preserved. The result is never nil.
func Dedupe(records []feed.Record) []feed.Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]feed.Record, 0, len(records))
	for _, r := range records {
		key := NormalizeTitle(r.Title)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
