// Package collyfetcher implements feed.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/wellness-aggregator/internal/feed"
)

// Browser identity defaults. Several upstreams serve degraded markup (or
// nothing) to clients that do not look like a desktop browser.
const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	DefaultAcceptLanguage = "en-US,en;q=0.9"
	DefaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"

	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 5 * 1024 * 1024
)

// Waiter throttles outbound requests per host.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	AcceptLanguage string
	Accept         string
	Timeout        time.Duration
	Limiter        Waiter
}

// Fetcher implements feed.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type visitOutcome struct {
	response feed.FetchResponse
	err      error
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = DefaultAcceptLanguage
	}
	if cfg.Accept == "" {
		cfg.Accept = DefaultAccept
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(maxBodyBytes),
		colly.UserAgent(cfg.UserAgent),
	)
	c.WithTransport(newHTTPTransport())
	// The client timeout bounds visits that Fetch has already given up on.
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger.Named("fetcher"),
	}
}

// Fetch executes a single HTTP GET using Colly. Non-2xx statuses, timeouts
// and transport failures are returned as *feed.FetchError.
//
// The visit runs on its own goroutine. When the timeout or ctx expires first
// the visit is abandoned and its eventual result is discarded.
func (f *Fetcher) Fetch(ctx context.Context, request feed.FetchRequest) (feed.FetchResponse, error) {
	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, request.URL); err != nil {
			return feed.FetchResponse{}, classify(request.URL, 0, err)
		}
	}

	timeout := request.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	start := time.Now()

	done := make(chan visitOutcome, 1)
	go func() {
		done <- f.visit(request, start)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return feed.FetchResponse{}, classify(request.URL, 0, ctx.Err())
	case <-timer.C:
		f.logger.Debug("abandoning fetch after timeout",
			zap.String("url", request.URL),
			zap.Duration("timeout", timeout),
		)
		return feed.FetchResponse{}, &feed.FetchError{
			Kind: feed.FetchTimeout,
			URL:  request.URL,
			Err:  fmt.Errorf("no response within %s: %w", timeout, context.DeadlineExceeded),
		}
	case out := <-done:
		if out.err != nil {
			return feed.FetchResponse{}, classify(request.URL, 0, out.err)
		}
		if out.response.StatusCode < 200 || out.response.StatusCode > 299 {
			return out.response, classify(request.URL, out.response.StatusCode, nil)
		}
		return out.response, nil
	}
}

func (f *Fetcher) visit(request feed.FetchRequest, start time.Time) visitOutcome {
	var out visitOutcome
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, request, start, &out)
	if err := collector.Visit(request.URL); err != nil && out.err == nil {
		out.err = fmt.Errorf("colly visit failed: %w", err)
	}
	return out
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request feed.FetchRequest,
	start time.Time,
	out *visitOutcome,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.setHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		finalURL := request.URL
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		out.response = feed.FetchResponse{
			URL:        finalURL,
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		out.err = err
	})
}

func (f *Fetcher) setHeaders(request feed.FetchRequest, r *colly.Request) {
	if r.Headers == nil {
		r.Headers = &http.Header{}
	}
	r.Headers.Set("Accept", f.cfg.Accept)
	r.Headers.Set("Accept-Language", f.cfg.AcceptLanguage)
	for key, values := range request.Headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func classify(rawURL string, status int, err error) *feed.FetchError {
	if status != 0 && (status < 200 || status > 299) {
		return &feed.FetchError{Kind: feed.FetchHTTPStatus, URL: rawURL, StatusCode: status, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &feed.FetchError{Kind: feed.FetchTimeout, URL: rawURL, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &feed.FetchError{Kind: feed.FetchCanceled, URL: rawURL, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &feed.FetchError{Kind: feed.FetchTimeout, URL: rawURL, Err: err}
	}
	return &feed.FetchError{Kind: feed.FetchNetwork, URL: rawURL, Err: err}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
