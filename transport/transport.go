// Package transport defines the core interfaces and types for RPC serving
// surfaces. Each transport implementation (http, bus, nats) should be in its
// own sub-package and register itself with the transport registry.
package transport

import (
	"context"
	"time"

	"github.com/mefengl/note-orpc/internal/runtime/codec"
	"github.com/mefengl/note-orpc/internal/runtime/logging"
)

// Handler is the core pipeline a transport drives. Handle reports
// matched=false when the request falls outside the RPC convention so the
// transport can fall through to its own handling.
type Handler interface {
	Handle(ctx context.Context, req *codec.Request) (*codec.Response, bool)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *codec.Request) (*codec.Response, bool)

func (f HandlerFunc) Handle(ctx context.Context, req *codec.Request) (*codec.Response, bool) {
	return f(ctx, req)
}

// Server is a running serving surface. Serve blocks until ctx is cancelled
// or the surface fails; Close releases resources and is safe to call twice.
type Server interface {
	Serve(ctx context.Context) error
	Close() error
}

// Transport wraps the server produced by a factory.
type Transport struct {
	Server Server
}

// Builder is the function signature for creating a transport from config.
// Each transport package should provide a Builder function that can be registered.
type Builder func(ctx context.Context, cfg Config, handler Handler, logger logging.ServiceLogger) (Transport, error)

// Config provides the configuration values needed by transports.
// This interface allows transports to access only the config they need
// without depending on the full config package.
type Config interface {
	// GetTransport returns the transport type name.
	GetTransport() string

	// Wire convention.
	GetPrefix() string
	GetMaxBodyBytes() int64

	// Streaming.
	GetStreamKeepAlive() time.Duration

	// Bus
	GetBusRequestTopic() string
	GetBusReplyTopic() string

	// NATS
	GetNATSURL() string
	GetNATSSubjectPrefix() string

	// HTTP
	GetHTTPServerAddress() string
}

// CapabilitiesProvider is implemented by transports that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}
