// Package server exposes a workspace over HTTP.
//
// Routes are mounted on a chi router:
//
//   - GET  /v1/rules                   list rules
//   - GET  /v1/rules/{slug}            rule metadata and table structure
//   - POST /v1/rules/{slug}/solve      solve one request
//   - POST /v1/rules/{slug}/bulk       solve a batch of requests
//   - POST /v1/rules/{slug}/test       run the rule's tests
//   - POST /v1/rules/{slug}/publish    publish the current table
//   - GET  /v1/rules/{slug}/versions   list published versions
//   - GET  /v1/decisions               query the decision log (json, csv, text)
//   - GET  /v1/values                  list Dynamic Values
//   - PUT|GET|DELETE /v1/values/{name} manage one Dynamic Value
//   - GET  /health/live, /health/ready probes
//   - GET  /metrics                    Prometheus exposition
//   - GET  /version                    build information
//
// Errors use one JSON envelope:
//
//	{"error": {"code": "rule_not_found", "message": "..."}}
//
// # Security
//
// With server.auth enabled, publish and value writes need an API key sent as
// "Authorization: Bearer <key>" or X-API-Key; protect_reads extends this to
// every /v1 route. server.rate_limit answers 429 once a caller exhausts its
// bucket. server.tls serves HTTPS and picks up renewed certificate files.
//
// # Graceful Shutdown
//
// Start blocks until its context is cancelled, Shutdown is called or the
// listener fails. Shutdown stops accepting connections and waits for active
// requests up to server.shutdown_timeout.
package server
