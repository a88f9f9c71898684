// Package api hosts the HTTP server, middleware, and handlers for operator
// access. Notable routes:
//   - GET /healthz for probes and GET /metrics for Prometheus scraping.
//   - /admin/scheduler/... to inspect and steer the collection scheduler.
//   - GET /admin/runs for recent collection runs from the run ledger.
//   - POST /internal/fetch/article/job and GET /internal/fetch/article/job/{job_id}
//     to start and poll asynchronous article collection.
//
// Everything except /healthz and /metrics is guarded by the X-Internal-Secret
// header.
package api
