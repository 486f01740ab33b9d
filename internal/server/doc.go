// Package server hosts the chapelcast media API behind a single HTTP server.
//
// The server builds a consistent middleware chain of logging, request IDs,
// audit, metrics, rate limiting, CORS, and security headers so handlers all
// share common protections and instrumentation.
package server
