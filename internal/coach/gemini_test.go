package coach

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturedRequest struct {
	path   string
	apiKey string
	body   generateRequest
}

func geminiServer(t *testing.T, status int, body string) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()
	seen := make(chan capturedRequest, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		seen <- capturedRequest{path: r.URL.Path, apiKey: r.Header.Get("x-goog-api-key"), body: req}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestGemini_Generate(t *testing.T) {
	t.Parallel()

	srv, seen := geminiServer(t, http.StatusOK,
		`{"candidates":[{"content":{"parts":[{"text":"  Try box breathing.  "}]}}]}`)
	endpoints := NewGeminiEndpoints(GeminiConfig{
		BaseURL:         srv.URL + "/",
		APIKey:          "secret",
		Models:          []string{"gemini-2.0-flash"},
		Temperature:     0.7,
		MaxOutputTokens: 256,
		Timeout:         time.Second,
	}, nil)
	require.Len(t, endpoints, 1)
	require.Equal(t, "gemini-2.0-flash", endpoints[0].Name())

	text, err := endpoints[0].Generate(context.Background(), "How do I calm down?")
	require.NoError(t, err)
	require.Equal(t, "Try box breathing.", text)

	got := <-seen
	require.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", got.path)
	require.Equal(t, "secret", got.apiKey)
	require.Len(t, got.body.Contents, 1)
	require.Contains(t, got.body.Contents[0].Parts[0].Text, "Question: How do I calm down?")
	require.InDelta(t, 0.7, got.body.GenerationConfig.Temperature, 1e-9)
	require.Equal(t, 256, got.body.GenerationConfig.MaxOutputTokens)
}

func TestGemini_StatusError(t *testing.T) {
	t.Parallel()

	srv, _ := geminiServer(t, http.StatusTooManyRequests, `{"error":{"code":429}}`)
	ep := NewGeminiEndpoints(GeminiConfig{BaseURL: srv.URL, APIKey: "k", Models: []string{"m"}}, srv.Client())[0]

	_, err := ep.Generate(context.Background(), "q")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusTooManyRequests, se.Code)
	require.True(t, isRateLimited(err))
}

func TestGemini_MalformedBodies(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`not json`, `{"candidates":[]}`, `{"candidates":[{"content":{"parts":[]}}]}`} {
		srv, _ := geminiServer(t, http.StatusOK, body)
		ep := NewGeminiEndpoints(GeminiConfig{BaseURL: srv.URL, APIKey: "k", Models: []string{"m"}}, srv.Client())[0]
		_, err := ep.Generate(context.Background(), "q")
		require.Error(t, err, body)
		require.False(t, isRateLimited(err))
	}
}

func TestGemini_DefaultModels(t *testing.T) {
	t.Parallel()

	endpoints := NewGeminiEndpoints(GeminiConfig{APIKey: "k"}, nil)
	names := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		names = append(names, e.Name())
	}
	require.Equal(t, DefaultModels, names)
}

func TestChain_WithGeminiFallsThroughToSecondModel(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1beta/models/first:generateContent", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/v1beta/models/second:generateContent", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Walk outside for ten minutes."}]}}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	endpoints := NewGeminiEndpoints(GeminiConfig{BaseURL: srv.URL, APIKey: "k", Models: []string{"first", "second"}}, srv.Client())
	ans, err := NewChain(Config{Credential: "k"}, endpoints, zap.NewNop()).Answer(context.Background(), "q")
	require.NoError(t, err)
	require.Equal(t, "Walk outside for ten minutes.", ans.Text)
	require.Equal(t, "second", ans.Endpoint)
}
