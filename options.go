package imamcp

import (
	"log/slog"
	"net/http"
)

// options collects the cross-cutting settings shared by New, the one-shot
// helpers, WithClient and Serve.
type options struct {
	logger     *slog.Logger
	httpClient *http.Client
	config     *Config
}

// Option configures a client using the functional options pattern.
type Option func(*options)

// applyOptions applies functional options to a fresh options struct.
func applyOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// WithLogger sets the logger for operational output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithHTTPClient replaces the HTTP transport. The proxy and timeout settings
// derived from the configuration do not apply to a supplied client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithConfig supplies the configuration directly instead of reading the
// environment. It applies to the one-shot helpers, WithClient and Serve;
// New takes its configuration as an argument.
func WithConfig(cfg *Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}
