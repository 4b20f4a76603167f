/*
Package httpserver implements the safesync HTTP server.

The server exposes pool computation and database sync over a single storage
provider (see package api for the routes), plus health and drain endpoints:

	GET /livez     liveness
	GET /readyz    readiness, 503 while draining
	GET /drain     mark not ready
	GET /undrain   mark ready

Every request is logged through the go-utils slog middleware. Prometheus
metrics are served on a separate listener when MetricsAddr is set, and pprof
is mounted under /debug when EnablePprof is set.

Domain errors map to status codes: invalid references and malformed
documents give 400, missing content 404, a signed-out provider 401, a
read-only provider 403 and an unreachable provider 503. A failed sign-out
returns 502 with the provider's error.
*/
package httpserver
