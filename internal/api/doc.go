// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access to the archive. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/artifacts/{id} streams a stored PDF as an attachment.
//   - GET /v1/records?limit=N lists archive records, newest first.
package api
