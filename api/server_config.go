package api

import (
	"log/slog"
	"time"
)

// HTTPServerConfig configures the safesync HTTP server.
type HTTPServerConfig struct {
	ListenAddr string

	// MetricsAddr serves Prometheus metrics. Empty disables the metrics listener.
	MetricsAddr string

	// EnablePprof mounts net/http/pprof under /debug.
	EnablePprof bool

	Log *slog.Logger

	// DrainDuration is how long /drain keeps reporting not ready before the
	// drain is considered complete.
	DrainDuration time.Duration

	// GracefulShutdownDuration bounds in-flight requests, including running
	// pushes, on shutdown.
	GracefulShutdownDuration time.Duration

	// ReadTimeout and WriteTimeout bound a whole request and response. Both
	// must leave room for uploading and downloading large database documents.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}
