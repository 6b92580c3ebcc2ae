package shardindex

import (
	"log/slog"

	"github.com/Aman-CERP/shardex/internal/composite"
	"github.com/Aman-CERP/shardex/internal/engine"
)

// Option configures Open.
type Option func(*options)

type options struct {
	logger *slog.Logger
	opener engine.Opener
	route  composite.RouteFunc
}

// WithLogger sets the logger handed to the composite writer and every shard.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithOpener replaces the shard engine. The default opens bleve shards.
func WithOpener(open engine.Opener) Option {
	return func(o *options) {
		o.opener = open
	}
}

// WithRouter replaces the configured field router.
func WithRouter(route composite.RouteFunc) Option {
	return func(o *options) {
		o.route = route
	}
}
