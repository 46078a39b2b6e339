package cacheproxy

import "go.uber.org/zap"

// NewLogger builds the process-wide structured logger. Production mode
// (JSON, Info level) is the default; PROXY_DEBUG=1 switches to the
// human-readable development encoder at Debug level, matching the
// dev/prod split caddyserver-caddy's own logger setup makes.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
