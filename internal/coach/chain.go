// Package coach answers free-text wellness questions from an ordered list of
// generative endpoints, falling back to canned answers when all of them fail.
package coach

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wellness-aggregator/internal/feed"
	"github.com/JakeFAU/wellness-aggregator/internal/metrics"
)

// DefaultRateLimitDelay is the pause before retrying an endpoint that
// answered 429.
const DefaultRateLimitDelay = 10 * time.Second

// Endpoint is one upstream text generator.
type Endpoint interface {
	Name() string
	Generate(ctx context.Context, question string) (string, error)
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http status %d", e.Endpoint, e.Code)
}

// Answer is the chain's output. Only Text is meant for callers; Origin and
// Degraded are for logs and metrics.
type Answer struct {
	Text     string
	Origin   string
	Endpoint string
	Degraded bool
}

// Config tunes a Chain.
type Config struct {
	// Credential is the upstream API key; empty means the deployment is
	// misconfigured and Answer fails before any call.
	Credential     string
	RateLimitDelay time.Duration
	Rules          []Rule
	DefaultAnswer  string
}

// Chain tries endpoints one at a time, in order.
type Chain struct {
	endpoints []Endpoint
	cfg       Config
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewChain builds a Chain. Zero config values take the package defaults.
func NewChain(cfg Config, endpoints []Endpoint, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RateLimitDelay <= 0 {
		cfg.RateLimitDelay = DefaultRateLimitDelay
	}
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules
	}
	if strings.TrimSpace(cfg.DefaultAnswer) == "" {
		cfg.DefaultAnswer = DefaultAnswer
	}
	return &Chain{
		endpoints: endpoints,
		cfg:       cfg,
		logger:    logger.Named("coach"),
		sleep:     sleepContext,
	}
}

type step int

const (
	stepTry step = iota
	stepRetry
	stepNext
	stepExhausted
)

// Answer returns an upstream answer when some endpoint produces non-empty
// text, and a canned answer otherwise. The only error is
// feed.ErrMissingCredential, returned before any endpoint is called.
//
// An endpoint answering 429 is retried once after RateLimitDelay; any other
// failure, or a second 429, moves on to the next endpoint. Answer returns no
// later than ctx's deadline: whatever attempt is still running is abandoned
// and the canned answer is served.
func (c *Chain) Answer(ctx context.Context, question string) (Answer, error) {
	if strings.TrimSpace(c.cfg.Credential) == "" {
		return Answer{}, fmt.Errorf("coach: %w", feed.ErrMissingCredential)
	}

	done := make(chan Answer, 1)
	go func() { done <- c.run(ctx, question) }()

	var ans Answer
	select {
	case ans = <-done:
	case <-ctx.Done():
		c.logger.Warn("coach deadline reached, abandoning upstream attempts", zap.Error(ctx.Err()))
		ans = c.synthesize(question)
	}
	metrics.ObserveCoachAnswer(ans.Origin)
	return ans, nil
}

func (c *Chain) run(ctx context.Context, question string) Answer {
	attempts := 0
	i, retried := 0, false
	state := stepTry
	if len(c.endpoints) == 0 {
		state = stepExhausted
	}
	for state != stepExhausted {
		switch state {
		case stepTry, stepRetry:
			if ctx.Err() != nil {
				state = stepExhausted
				continue
			}
			ep := c.endpoints[i]
			attempts++
			text, err := ep.Generate(ctx, question)
			switch {
			case err == nil && strings.TrimSpace(text) != "":
				metrics.ObserveCoachAttempt(ep.Name(), metrics.OutcomeOK)
				return Answer{Text: text, Origin: metrics.OriginUpstream, Endpoint: ep.Name()}
			case err == nil:
				metrics.ObserveCoachAttempt(ep.Name(), metrics.OutcomeEmpty)
				c.logger.Warn("endpoint returned empty answer", zap.String("endpoint", ep.Name()))
				state = stepNext
			case isRateLimited(err) && !retried:
				metrics.ObserveCoachAttempt(ep.Name(), "rate_limited")
				if !fitsDeadline(ctx, c.cfg.RateLimitDelay) {
					c.logger.Warn("endpoint rate limited, no time left to back off", zap.String("endpoint", ep.Name()))
					state = stepExhausted
					continue
				}
				c.logger.Warn("endpoint rate limited, backing off",
					zap.String("endpoint", ep.Name()),
					zap.Duration("delay", c.cfg.RateLimitDelay),
				)
				if err := c.sleep(ctx, c.cfg.RateLimitDelay); err != nil {
					state = stepExhausted
					continue
				}
				retried = true
				state = stepRetry
			default:
				metrics.ObserveCoachAttempt(ep.Name(), metrics.OutcomeError)
				c.logger.Warn("endpoint failed", zap.String("endpoint", ep.Name()), zap.Error(err))
				state = stepNext
			}
		case stepNext:
			i++
			retried = false
			state = stepTry
			if i >= len(c.endpoints) {
				state = stepExhausted
			}
		}
	}

	c.logger.Warn("serving fallback answer",
		zap.Int("endpoints", len(c.endpoints)),
		zap.Int("attempts", attempts),
	)
	return c.synthesize(question)
}

func (c *Chain) synthesize(question string) Answer {
	return Answer{
		Text:     Synthesize(question, c.cfg.Rules, c.cfg.DefaultAnswer),
		Origin:   metrics.OriginFallback,
		Degraded: true,
	}
}

// fitsDeadline reports whether a pause of d ends before ctx's deadline.
func fitsDeadline(ctx context.Context, d time.Duration) bool {
	deadline, ok := ctx.Deadline()
	return !ok || time.Until(deadline) > d
}

func isRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusTooManyRequests
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
