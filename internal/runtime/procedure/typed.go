package procedure

import (
	"context"
	"fmt"

	"github.com/mefengl/note-orpc/internal/runtime/contract"
	"github.com/mefengl/note-orpc/internal/runtime/jsoncodec"
	"github.com/mefengl/note-orpc/internal/runtime/meta"
	"github.com/mefengl/note-orpc/internal/runtime/rpcerrors"
)

// TypedCall is the typed handler's view of an invocation.
type TypedCall[In any] struct {
	Meta        meta.Meta
	Input       In
	LastEventID string

	call *Call
}

// Error delegates to the untyped call's error-map-aware constructor.
func (c TypedCall[In]) Error(code, message string, opts ...rpcerrors.Option) *rpcerrors.Error {
	return c.call.Error(code, message, opts...)
}

// TypedHandler processes a validated input of type In and returns an Out.
type TypedHandler[In, Out any] func(ctx context.Context, call TypedCall[In]) (Out, error)

// Typed wraps a typed handler into a Procedure. The input contract defaults
// to a JSON coercion into In and the output contract to one into Out, unless
// options override them.
func Typed[In, Out any](handler TypedHandler[In, Out], opts ...Option) *Procedure {
	if handler == nil {
		panic(rpcerrors.ErrHandlerRequired)
	}

	p := New(func(ctx context.Context, call *Call) (any, error) {
		typed, ok := call.Input.(In)
		if !ok {
			// A custom input contract may emit a looser type; coerce it.
			if err := jsoncodec.Roundtrip(call.Input, &typed); err != nil {
				return nil, fmt.Errorf("orpc: input %T does not coerce to handler type: %w", call.Input, err)
			}
		}
		return handler(ctx, TypedCall[In]{
			Meta:        call.Meta,
			Input:       typed,
			LastEventID: call.LastEventID,
			call:        call,
		})
	}, opts...)

	if p.Input == nil {
		p.Input = contract.JSON[In]()
	}
	if p.Output == nil {
		p.Output = contract.JSON[Out]()
	}
	return p
}
