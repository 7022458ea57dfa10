// Package api hosts the HTTP server, middleware wiring, and REST handlers
// for operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/v1/cache and /api/v1/cache/{key} for the citation view that
//     page templates consume.
//   - GET /api/v1/runs and /api/v1/runs/latest for refresh run history via
//     the RunView interface.
package api
