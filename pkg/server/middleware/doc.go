// Package middleware provides the HTTP middleware of the verdict server.
//
// Requests pass through the following middleware, outermost first:
//  1. RequestID: accepts or assigns X-Request-ID and adds it to the log context
//  2. Logging: logs method, path, status and latency
//  3. Recovery: turns panics into a 500 JSON error
//  4. MaxBytes: caps request bodies
//
// Routes under /v1 can add Authenticate and RequireCaller for API keys and
// RateLimit for a token bucket per caller.
//
// Each middleware has the func(http.Handler) http.Handler shape so it can be
// mounted with chi's Router.Use.
package middleware
