// Package api hosts the operational HTTP server. Routes:
//   - GET /healthz and /readyz for health checks; readyz pings the event store.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs?days=N triggers a run and returns its summary.
//   - GET /v1/sources lists the enabled sources.
package api
