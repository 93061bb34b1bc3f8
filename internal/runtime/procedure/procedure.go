// Package procedure defines the immutable callable unit of the runtime:
// contracts, error map, middleware list and handler. Definitions are built
// once, owned by the router, and shared read-only across concurrent calls.
package procedure

import (
	"context"

	"github.com/mefengl/note-orpc/internal/runtime/contract"
	"github.com/mefengl/note-orpc/internal/runtime/interceptor"
	"github.com/mefengl/note-orpc/internal/runtime/meta"
	"github.com/mefengl/note-orpc/internal/runtime/rpcerrors"
)

// ErrorDef declares a procedure-level error code: its wire status and the
// contract its data payload must satisfy to be preserved across the wire.
type ErrorDef struct {
	Status int
	Data   contract.Contract
}

// ErrorMap maps error codes to their definitions. An error whose code
// appears here is "defined" and passes through to the client unaltered.
type ErrorMap map[string]ErrorDef

// Call is the handler's view of an invocation. The abort signal travels on
// the ctx passed alongside it.
type Call struct {
	Meta        meta.Meta
	Input       any
	Path        []string
	LastEventID string

	errors ErrorMap
}

// Error constructs an error using the procedure's error map: a declared
// status override applies automatically, so handlers only name the code.
func (c *Call) Error(code, message string, opts ...rpcerrors.Option) *rpcerrors.Error {
	e := rpcerrors.New(code, message, opts...)
	if def, ok := c.errors[code]; ok && def.Status > 0 {
		e.Status = def.Status
	}
	return e
}

// Handler is the terminal step of a procedure's middleware chain.
type Handler func(ctx context.Context, call *Call) (any, error)

// MiddlewareRequest carries the call state through the middleware chain.
// Instances are never mutated; continuing with extra meta derives a new one.
type MiddlewareRequest struct {
	Meta        meta.Meta
	Path        []string
	Procedure   *Procedure
	Input       any
	LastEventID string
}

func (r *MiddlewareRequest) withMeta(m meta.Meta) *MiddlewareRequest {
	derived := *r
	derived.Meta = m
	return &derived
}

// Next continues the chain. The extra bag is merged into the incoming
// context (later keys win); pass nil to continue unchanged.
type Next func(ctx context.Context, extra meta.Meta) (any, error)

// Middleware is one context-transforming step. It either calls next to
// continue, or returns a value without calling next to short-circuit the
// remaining steps and the handler.
type Middleware func(ctx context.Context, req *MiddlewareRequest, next Next) (any, error)

// InputMapper transforms the raw input before contract validation. Ordinary
// middleware always sees the validated value; mappers are the one flavor
// permitted to run earlier.
type InputMapper func(ctx context.Context, raw any) (any, error)

// Procedure is the immutable definition of a single endpoint.
type Procedure struct {
	Input        contract.Contract
	Output       contract.Contract
	Errors       ErrorMap
	Meta         meta.Meta
	InputMappers []InputMapper
	Middlewares  []Middleware
	Handler      Handler
}

// Option customises a Procedure under construction.
type Option func(*Procedure)

// WithInput sets the input contract. Nil means accept anything.
func WithInput(c contract.Contract) Option {
	return func(p *Procedure) { p.Input = c }
}

// WithOutput sets the output contract. Nil means pass anything through.
func WithOutput(c contract.Contract) Option {
	return func(p *Procedure) { p.Output = c }
}

// WithErrors declares the procedure's error map.
func WithErrors(m ErrorMap) Option {
	return func(p *Procedure) { p.Errors = m }
}

// WithMeta attaches static metadata, merged into each call's context bag.
func WithMeta(m meta.Meta) Option {
	return func(p *Procedure) { p.Meta = m }
}

// WithMiddleware appends ordinary middleware in registration order.
func WithMiddleware(mw ...Middleware) Option {
	return func(p *Procedure) { p.Middlewares = append(p.Middlewares, mw...) }
}

// WithInputMapper appends input-mapping middleware in registration order.
func WithInputMapper(mappers ...InputMapper) Option {
	return func(p *Procedure) { p.InputMappers = append(p.InputMappers, mappers...) }
}

// New builds a Procedure around handler. The handler is required; contracts
// left nil accept any value.
func New(handler Handler, opts ...Option) *Procedure {
	if handler == nil {
		panic(rpcerrors.ErrHandlerRequired)
	}
	p := &Procedure{Handler: handler}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BuildChain composes the procedure's middleware around its handler using
// the interceptor primitive: registration order on the way in, reverse order
// on the way out.
func BuildChain(p *Procedure) interceptor.Next[*MiddlewareRequest, any] {
	fns := make([]interceptor.Func[*MiddlewareRequest, any], 0, len(p.Middlewares))
	for _, mw := range p.Middlewares {
		mw := mw
		fns = append(fns, func(ctx context.Context, req *MiddlewareRequest, next interceptor.Next[*MiddlewareRequest, any]) (any, error) {
			return mw(ctx, req, func(ctx context.Context, extra meta.Meta) (any, error) {
				if len(extra) == 0 {
					return next(ctx, req)
				}
				return next(ctx, req.withMeta(req.Meta.WithAll(extra)))
			})
		})
	}

	terminal := func(ctx context.Context, req *MiddlewareRequest) (any, error) {
		return p.Handler(ctx, &Call{
			Meta:        req.Meta,
			Input:       req.Input,
			Path:        req.Path,
			LastEventID: req.LastEventID,
			errors:      p.Errors,
		})
	}

	return interceptor.Chain(fns, terminal)
}
