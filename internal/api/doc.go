// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/launches/{job}/{launch}/scan to start an asynchronous run.
//   - GET /v1/runs and /v1/runs/{run_id} for run history via the
//     RunRepository interface.
//   - GET /v1/availability to resolve a capture against the wayback index.
package api
