// Package main hosts the wellness aggregation service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes GET /events, GET /places and POST /coach with permissive CORS, plus
//     /healthz, /readyz and /metrics. Query parameters are validated before any upstream work starts.
//   - Sources: internal/source adapters build a per-upstream URL, fetch it through the Colly-based fetcher, reject
//     captcha and consent pages with the heuristic detector, extract candidates with goquery selector tables and drop
//     off-topic events with the relevance filter.
//   - Aggregation: internal/aggregator runs every adapter for a request at once, logs and counts adapter failures,
//     and returns the merged, title-deduplicated records. Upstream trouble never fails a request.
//   - Coach: internal/coach tries each configured Gemini model in order, retries a rate-limited model once after a
//     fixed pause, and falls back to keyword-matched canned answers. A missing API key is the one reported error.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported via the metrics middleware and /metrics handler.
//
// Quick checklist:
//   - Configure env vars: AGGREGATOR_SERVER_PORT or PORT, GEMINI_API_KEY (or AGGREGATOR_COACH_API_KEY),
//     AGGREGATOR_SOURCES_<NAME>_ENABLED, AGGREGATOR_FETCH_RATE_LIMIT_RPS.
//   - Run locally: go run ./cmd/aggregator -config config.yaml (or rely solely on env overrides).
//   - The process is stateless and shuts down cleanly on SIGTERM.
package main
