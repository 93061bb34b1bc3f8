// Package orpc is a transport-agnostic RPC layer: procedures are plain Go
// handlers mounted on a nested router, invoked through a codec that speaks a
// simple POST-plus-JSON convention, and served over any registered transport.
// It reads the target transport (HTTP, Watermill Go channels, or NATS) from
// Config, builds the server through the transport registry, and runs every
// call through the default interceptor chain for panic recovery, correlation
// IDs, logging, OpenTelemetry tracing, and Prometheus metrics.
//
// Service hosts the router and the call pipeline: NewProcedure and
// TypedProcedure attach input and output contracts, per-procedure middleware,
// and a declared error map, while Service.Handle decodes a request, resolves
// the procedure, and encodes the result or a wire-safe error. A minimal setup
// therefore involves filling Config, building a Router, creating a Service,
// and calling Start; see README.md for a copy/paste quick start snippet.
//
// # Transports
//
// Three transports are registered out of the box, each importable as a blank
// package under transport/:
//   - http: POST convention with server-sent event streaming and resume
//   - bus: Watermill Go channel request/reply for in-process wiring and tests
//   - nats: subject-per-procedure request/reply with buffered streams
//
// # Interceptors
//
// The default interceptor chain includes panic recovery, correlation ID
// injection, structured call logging, OpenTelemetry tracing, and Prometheus
// metrics. Custom interceptors can be added via
// ServiceDependencies.Interceptors.
//
// # Streaming
//
// A handler returns an *Iterator to stream events instead of a single value.
// Over HTTP the iterator is pumped as server-sent events with keep-alive
// comments and Last-Event-ID resume; the client side exposes the same
// Iterator through Client.Stream.
//
// # Errors
//
// Handlers fail with typed errors carrying a stable code, an HTTP status, and
// optional structured data. Errors declared in a procedure's error map pass
// through to callers as-is; anything undeclared is sanitized to
// INTERNAL_SERVER_ERROR unless Config.VerboseErrors is set.
package orpc
