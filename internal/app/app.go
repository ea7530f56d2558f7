// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/wellness-aggregator/internal/aggregator"
	"github.com/JakeFAU/wellness-aggregator/internal/api"
	"github.com/JakeFAU/wellness-aggregator/internal/coach"
	"github.com/JakeFAU/wellness-aggregator/internal/config"
	"github.com/JakeFAU/wellness-aggregator/internal/detector"
	collyfetcher "github.com/JakeFAU/wellness-aggregator/internal/fetcher/colly"
	"github.com/JakeFAU/wellness-aggregator/internal/feed"
	"github.com/JakeFAU/wellness-aggregator/internal/policy/ratelimit"
	"github.com/JakeFAU/wellness-aggregator/internal/relevance"
	"github.com/JakeFAU/wellness-aggregator/internal/source"
)

// App holds the services built once at startup: adapters, the coach chain
// and the HTTP server that exposes them.
type App struct {
	events []feed.Adapter
	places []feed.Adapter
	coach  *coach.Chain
	server *api.Server
}

// Option customizes NewApp.
type Option func(*options)

type options struct {
	fetcher     feed.Fetcher
	coachClient *http.Client
	clock       feed.Clock
}

// WithFetcher replaces the colly fetcher used by every source adapter.
func WithFetcher(f feed.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithCoachClient sets the HTTP client used for generative endpoints.
func WithCoachClient(c *http.Client) Option {
	return func(o *options) { o.coachClient = c }
}

// WithClock sets the clock used to timestamp aggregated responses.
func WithClock(c feed.Clock) Option {
	return func(o *options) { o.clock = c }
}

// NewApp builds every service from cfg. It fails fast on configuration that
// cannot produce a working adapter.
func NewApp(cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:      cfg.Fetch.UserAgent,
			AcceptLanguage: cfg.Fetch.AcceptLanguage,
			Accept:         cfg.Fetch.Accept,
			Timeout:        cfg.Fetch.Timeout(),
			Limiter: ratelimit.New(ratelimit.Config{
				DefaultRPS:   cfg.Fetch.RateLimitRPS,
				DefaultBurst: cfg.Fetch.RateLimitBurst,
			}),
		}, logger.Named("fetcher"))
	}
	detect := detector.NewHeuristic(0, nil)
	filter := relevance.New(cfg.Relevance.Keywords)

	a := &App{}

	if s := cfg.Sources.AllEvents; s.Enabled {
		ad, err := source.NewAllEvents(sourceOptions(s), fetcher, detect, filter, logger)
		if err != nil {
			return nil, fmt.Errorf("allevents adapter: %w", err)
		}
		a.events = append(a.events, ad)
	}
	if s := cfg.Sources.Eventbrite; s.Enabled {
		ad, err := source.NewEventbrite(sourceOptions(s.SourceConfig), s.Region, fetcher, detect, filter, logger)
		if err != nil {
			return nil, fmt.Errorf("eventbrite adapter: %w", err)
		}
		a.events = append(a.events, ad)
	}
	if s := cfg.Sources.Places; s.Enabled {
		ad, err := source.NewPlaces(sourceOptions(s), fetcher, detect, logger)
		if err != nil {
			return nil, fmt.Errorf("places adapter: %w", err)
		}
		a.places = append(a.places, ad)
	}

	endpoints := coach.NewGeminiEndpoints(coach.GeminiConfig{
		BaseURL:         cfg.Coach.BaseURL,
		APIKey:          cfg.Coach.APIKey,
		Models:          cfg.Coach.Models,
		Temperature:     cfg.Coach.Temperature,
		MaxOutputTokens: cfg.Coach.MaxOutputTokens,
		Timeout:         cfg.Coach.Timeout(),
	}, o.coachClient)
	a.coach = coach.NewChain(coach.Config{
		Credential:     cfg.Coach.APIKey,
		RateLimitDelay: cfg.Coach.RateLimitDelay(),
		Rules:          coachRules(cfg.Coach.FallbackRules),
		DefaultAnswer:  cfg.Coach.DefaultAnswer,
	}, endpoints, logger)

	a.server = api.NewServer(
		aggregator.New(logger, o.clock),
		a.events,
		a.places,
		a.coach,
		api.Config{RequestTimeout: cfg.Server.RequestTimeout()},
		logger.Named("api"),
	)

	if cfg.Coach.APIKey == "" {
		logger.Warn("coach api key not configured; POST /coach will return 500")
	}
	logger.Info("application services initialized",
		zap.Int("event_sources", len(a.events)),
		zap.Int("place_sources", len(a.places)),
		zap.Int("coach_endpoints", len(endpoints)),
	)
	return a, nil
}

// Handler returns the HTTP handler serving every route.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// EventSources returns the ids of the enabled event adapters, in query order.
func (a *App) EventSources() []feed.SourceID {
	return ids(a.events)
}

// PlaceSources returns the ids of the enabled place adapters.
func (a *App) PlaceSources() []feed.SourceID {
	return ids(a.places)
}

func ids(adapters []feed.Adapter) []feed.SourceID {
	out := make([]feed.SourceID, 0, len(adapters))
	for _, ad := range adapters {
		out = append(out, ad.ID())
	}
	return out
}

func sourceOptions(s config.SourceConfig) source.Options {
	return source.Options{
		BaseURL:    s.BaseURL,
		Timeout:    s.Timeout(),
		MaxRecords: s.MaxRecords,
	}
}

// coachRules converts configured rules; nil keeps the built-in table.
func coachRules(rules []config.FallbackRule) []coach.Rule {
	if len(rules) == 0 {
		return nil
	}
	out := make([]coach.Rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, coach.Rule{Keywords: r.Keywords, Response: r.Response})
	}
	return out
}
