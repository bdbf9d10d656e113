// Package api hosts the query HTTP server. Notable routes:
//   - POST /api/query and GET /api/query?q= for ranked search.
//   - GET /health, /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
package api
