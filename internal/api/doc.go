// Package api hosts the HTTP server, middleware, and handlers. Routes:
//   - GET /events?city= merges wellness events from every enabled source.
//   - GET /places?city=&locality=&category= searches nearby places.
//   - POST /coach answers a wellness question, degrading to canned text.
//   - GET /healthz and /readyz for probes, GET /metrics for Prometheus.
//
// The three public routes allow any origin and answer OPTIONS directly.
package api
