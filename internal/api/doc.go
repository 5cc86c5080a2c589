// Package api exposes the session registry, run events and history over
// HTTP.
//
// Routes are mounted on a chi router. Everything under /api requires a
// bearer token when one is configured and is rate limited per client IP;
// /healthz and /metrics stay open for probes and scrapers. Handlers translate
// services error markers into HTTP status codes so clients can tell a
// missing session from a conflicting request.
package api
