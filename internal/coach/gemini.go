package coach

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public Generative Language API origin.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// DefaultModels lists model variants most capable first, most compatible last.
var DefaultModels = []string{
	"gemini-2.0-flash",
	"gemini-1.5-flash",
	"gemini-1.5-pro",
	"gemini-pro",
}

const maxResponseBytes = 1 << 20

// GeminiConfig configures the generateContent endpoints.
type GeminiConfig struct {
	BaseURL         string
	APIKey          string
	Models          []string
	Temperature     float64
	MaxOutputTokens int
	Timeout         time.Duration
}

// Gemini calls generateContent on one model.
type Gemini struct {
	model    string
	endpoint string
	apiKey   string
	genCfg   generationConfig
	client   *http.Client
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// NewGeminiEndpoints builds one endpoint per configured model, in order.
// A nil client gets a dedicated transport with cfg.Timeout.
func NewGeminiEndpoints(cfg GeminiConfig, client *http.Client) []Endpoint {
	if client == nil {
		client = newHTTPClient(cfg.Timeout)
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	models := cfg.Models
	if len(models) == 0 {
		models = DefaultModels
	}
	endpoints := make([]Endpoint, 0, len(models))
	for _, m := range models {
		endpoints = append(endpoints, &Gemini{
			model:    m,
			endpoint: fmt.Sprintf("%s/v1beta/models/%s:generateContent", base, url.PathEscape(m)),
			apiKey:   strings.TrimSpace(cfg.APIKey),
			genCfg: generationConfig{
				Temperature:     cfg.Temperature,
				MaxOutputTokens: cfg.MaxOutputTokens,
			},
			client: client,
		})
	}
	return endpoints
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 60 * time.Second,
			}).DialContext,
			MaxIdleConns:        20,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
		},
	}
}

// Name returns the model identifier.
func (g *Gemini) Name() string { return g.model }

// Generate asks the model to answer question as a wellness coach. Non-2xx
// responses are returned as *StatusError.
func (g *Gemini) Generate(ctx context.Context, question string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: Prompt(question)}}}},
		GenerationConfig: g.genCfg,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", g.model, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return "", &StatusError{Endpoint: g.model, Code: resp.StatusCode}
	}

	var out generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", g.model, err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", errors.New(g.model + ": response has no candidates")
	}
	return strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text), nil
}

// Prompt wraps a user question in the coaching instructions.
func Prompt(question string) string {
	return "You are a calm, supportive wellness and meditation coach. " +
		"Answer the question below in one or two short paragraphs of practical, " +
		"compassionate guidance. Do not give medical diagnoses.\n\n" +
		"Question: " + strings.TrimSpace(question)
}
