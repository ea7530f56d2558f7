package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/wellness-aggregator/internal/aggregator"
	"github.com/JakeFAU/wellness-aggregator/internal/coach"
	"github.com/JakeFAU/wellness-aggregator/internal/feed"
)

type fakeAdapter struct {
	id      feed.SourceID
	records []feed.Record
	err     error

	mu      sync.Mutex
	queries []feed.Query
}

func (f *fakeAdapter) ID() feed.SourceID { return f.id }

func (f *fakeAdapter) FetchRecords(_ context.Context, q feed.Query) ([]feed.Record, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	return f.records, f.err
}

func (f *fakeAdapter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type panickingAggregator struct{}

func (panickingAggregator) Aggregate(context.Context, feed.Query, []feed.Adapter) aggregator.Result {
	panic("aggregator exploded")
}

type countingEndpoint struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (c *countingEndpoint) Name() string { return "counting" }

func (c *countingEndpoint) Generate(context.Context, string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.text, c.err
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type testDeps struct {
	events   []*fakeAdapter
	places   *fakeAdapter
	endpoint *countingEndpoint
}

func newTestServer(t *testing.T, credential string) (*Server, *testDeps) {
	t.Helper()
	deps := &testDeps{
		events: []*fakeAdapter{
			{id: feed.SourceAllEvents, records: []feed.Record{
				{Title: "Morning Yoga", Location: "Park", When: "Sat 7am", URL: "https://a.example/1", Source: feed.SourceAllEvents, Category: feed.CategoryWellness},
				{Title: "Sound Bath", Location: feed.VenueTBA, When: feed.DateTBA, URL: "https://a.example/2", Source: feed.SourceAllEvents, Category: feed.CategoryWellness},
			}},
			{id: feed.SourceEventbrite, records: []feed.Record{
				{Title: "  morning yoga  ", Location: "Studio", When: "Sun", URL: "https://b.example/1", Source: feed.SourceEventbrite, Category: feed.CategoryWellness},
			}},
			{id: "broken", err: &feed.AdapterError{Source: "broken", Stage: feed.StageFetch, Err: &feed.FetchError{Kind: feed.FetchTimeout}}},
		},
		places: &fakeAdapter{id: feed.SourceSearchPlaces, records: []feed.Record{
			{Title: "Shanti Yoga Shala", Location: "Lane 5", URL: "https://shanti.example/", Source: feed.SourceSearchPlaces, Category: feed.CategoryYoga},
		}},
		endpoint: &countingEndpoint{err: &coach.StatusError{Endpoint: "counting", Code: http.StatusServiceUnavailable}},
	}
	events := make([]feed.Adapter, 0, len(deps.events))
	for _, a := range deps.events {
		events = append(events, a)
	}
	agg := aggregator.New(zap.NewNop(), fixedClock{time.Date(2025, 10, 12, 9, 30, 0, 0, time.UTC)})
	chain := coach.NewChain(coach.Config{Credential: credential}, []coach.Endpoint{deps.endpoint}, zap.NewNop())
	srv := NewServer(agg, events, []feed.Adapter{deps.places}, chain, Config{RequestTimeout: 5 * time.Second}, zap.NewNop())
	return srv, deps
}

func serve(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestServer_OptionsShortCircuits(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t, "key")
	for target, methods := range map[string]string{
		"/events": "GET, OPTIONS",
		"/places": "GET, OPTIONS",
		"/coach":  "POST, OPTIONS",
	} {
		rec := serve(srv, http.MethodOptions, target, "")
		require.Equal(t, http.StatusOK, rec.Code, target)
		require.Empty(t, rec.Body.String(), target)
		require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"), target)
		require.Equal(t, methods, rec.Header().Get("Access-Control-Allow-Methods"), target)
		require.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"), target)
	}
	for _, a := range deps.events {
		require.Zero(t, a.calls())
	}
	require.Zero(t, deps.places.calls())
	require.Zero(t, deps.endpoint.calls)
}

func TestServer_Events(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t, "key")
	rec := serve(srv, http.MethodGet, "/events?city=Pune", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Equal(t, "Pune", body.City)
	require.Equal(t, len(body.Events), body.Count)
	require.Equal(t, 2, body.Count)
	require.Equal(t, "Morning Yoga", body.Events[0].Title)
	require.Equal(t, "Park", body.Events[0].Venue)
	require.Equal(t, "Sat 7am", body.Events[0].Date)
	require.Equal(t, feed.DateTBA, body.Events[1].Date)
	require.Equal(t, "2025-10-12T09:30:00.000Z", body.Timestamp)
	require.Equal(t, []feed.SourceID{feed.SourceAllEvents, feed.SourceEventbrite, "broken"}, body.Sources)
	require.Equal(t, []feed.Query{{City: "Pune"}}, deps.events[0].queries)
}

func TestServer_EventsAllSourcesFailing(t *testing.T) {
	t.Parallel()

	failing := &fakeAdapter{id: feed.SourceAllEvents, err: errors.New("boom")}
	srv := NewServer(aggregator.New(nil, nil), []feed.Adapter{failing}, nil, nil, Config{}, nil)

	rec := serve(srv, http.MethodGet, "/events?city=Nowhere", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, true, body["success"])
	require.EqualValues(t, 0, body["count"])
	require.Equal(t, []any{}, body["events"])
}

func TestServer_EventsBadInput(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t, "key")
	for _, target := range []string{"/events", "/events?city=", "/events?city=%20%20", "/events?city=Pune&city=Mumbai"} {
		rec := serve(srv, http.MethodGet, target, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
		require.Contains(t, decode(t, rec)["error"], "city", target)
	}
	require.Zero(t, deps.events[0].calls())
}

func TestServer_Places(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t, "key")
	rec := serve(srv, http.MethodGet, "/places?city=Pune&locality=Koregaon%20Park&category=yoga", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body placesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Equal(t, "Pune", body.City)
	require.Equal(t, "Koregaon Park", body.Locality)
	require.Equal(t, feed.CategoryYoga, body.Category)
	require.Equal(t, 1, body.Count)
	require.Equal(t, "Shanti Yoga Shala", body.Places[0].Name)
	require.Equal(t, "Lane 5", body.Places[0].Address)
	require.Equal(t, []feed.Query{{City: "Pune", Locality: "Koregaon Park", Category: feed.CategoryYoga}}, deps.places.queries)
}

func TestServer_PlacesRejectsUnknownCategory(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t, "key")
	for _, target := range []string{
		"/places?city=Pune&locality=Baner&category=spa",
		"/places?city=Pune&locality=Baner&category=Yoga",
		"/places?city=Pune&locality=Baner&category=wellness",
		"/places?category=gym",
		"/places?city=Pune&locality=Baner",
		"/places?city=Pune&category=yoga",
		"/places?city=Pune&locality=Baner&category=yoga&category=religious",
	} {
		rec := serve(srv, http.MethodGet, target, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
		require.NotEmpty(t, decode(t, rec)["error"], target)
	}
	require.Zero(t, deps.places.calls())
}

func TestServer_CoachDegradedStillSucceeds(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t, "key")
	rec := serve(srv, http.MethodPost, "/coach", `{"question":"How do I handle stress?"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	var body coachResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Equal(t, coach.DefaultRules[0].Response, body.Text)
	require.Equal(t, 1, deps.endpoint.calls)
}

// slowRateLimitedEndpoint ignores its context, like an upstream client
// without a deadline, and always answers 429.
type slowRateLimitedEndpoint struct {
	name  string
	delay time.Duration
}

func (e slowRateLimitedEndpoint) Name() string { return e.name }

func (e slowRateLimitedEndpoint) Generate(context.Context, string) (string, error) {
	time.Sleep(e.delay)
	return "", &coach.StatusError{Endpoint: e.name, Code: http.StatusTooManyRequests}
}

func TestServer_CoachAnswersWithinRequestTimeout(t *testing.T) {
	t.Parallel()

	endpoints := make([]coach.Endpoint, 0, 4)
	for _, name := range []string{"m1", "m2", "m3", "m4"} {
		endpoints = append(endpoints, slowRateLimitedEndpoint{name: name, delay: 150 * time.Millisecond})
	}
	chain := coach.NewChain(coach.Config{Credential: "key", RateLimitDelay: 100 * time.Millisecond}, endpoints, zap.NewNop())
	srv := NewServer(aggregator.New(zap.NewNop(), nil), nil, nil, chain,
		Config{RequestTimeout: 900 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	rec := serve(srv, http.MethodPost, "/coach", `{"question":"I feel stressed"}`)

	elapsed := time.Since(start)
	require.True(t, elapsed < 900*time.Millisecond, "took %s", elapsed)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	var body coachResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Equal(t, coach.DefaultRules[0].Response, body.Text)
}

func TestServer_CoachUpstreamAnswer(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t, "key")
	deps.endpoint.err = nil
	deps.endpoint.text = "Take three slow breaths."

	rec := serve(srv, http.MethodPost, "/coach", `{"question":"help"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Take three slow breaths.", decode(t, rec)["text"])
}

func TestServer_CoachMissingCredential(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t, "")
	rec := serve(srv, http.MethodPost, "/coach", `{"question":"How do I sleep better?"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotEmpty(t, decode(t, rec)["error"])
	require.Zero(t, deps.endpoint.calls)
}

func TestServer_CoachBadInput(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t, "key")
	for _, body := range []string{
		`{invalid`,
		`{}`,
		`{"question":null}`,
		`{"question":42}`,
		`{"question":["a"]}`,
		`{"question":"   "}`,
	} {
		rec := serve(srv, http.MethodPost, "/coach", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		require.NotEmpty(t, decode(t, rec)["error"], body)
	}
	require.Zero(t, deps.endpoint.calls)
}

func TestServer_PanicIsInternalFault(t *testing.T) {
	t.Parallel()

	srv := NewServer(panickingAggregator{}, nil, nil, nil, Config{}, zap.NewNop())
	rec := serve(srv, http.MethodGet, "/events?city=Pune", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	require.Equal(t, false, body["success"])
	require.Equal(t, "internal server error", body["error"])
	require.NotEmpty(t, body["message"])
}

func TestTimeoutMiddleware_WritesJSON(t *testing.T) {
	t.Parallel()

	slow := timeoutMiddleware(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	rec := httptest.NewRecorder()
	slow.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events?city=Pune", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "request timed out", decode(t, rec)["error"])

	fast := timeoutMiddleware(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	}))
	rec = httptest.NewRecorder()
	fast.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestServer_OperationalRoutes(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, "key")

	rec := serve(srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decode(t, rec)["status"])

	rec = serve(srv, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	serve(srv, http.MethodGet, "/events?city=Pune", "")
	rec = serve(srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "aggregator_source_fetch_total")
}

func TestRequiredParam(t *testing.T) {
	t.Parallel()

	q := map[string][]string{"city": {" Pune "}, "dup": {"a", "b"}, "blank": {""}}
	v, err := requiredParam(q, "city")
	require.NoError(t, err)
	require.Equal(t, "Pune", v)

	_, err = requiredParam(q, "dup")
	require.ErrorContains(t, err, "single string")
	_, err = requiredParam(q, "blank")
	require.ErrorContains(t, err, "required")
	_, err = requiredParam(q, "missing")
	require.ErrorContains(t, err, "required")
}
