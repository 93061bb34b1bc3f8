// Package interceptor provides the generic ordered-composition primitive the
// rest of the runtime is built on: the middleware chain, the stock call
// interceptors and the transports all compose through Chain.
package interceptor

import (
	"context"
	"errors"
)

// ErrNextCalledTwice is returned when an interceptor invokes its next
// callback more than once. Re-entrant continuation is not supported.
var ErrNextCalledTwice = errors.New("orpc: interceptor called next more than once")

// Next invokes the remainder of a chain: the interceptors registered after
// the current one, then the terminal.
type Next[I, O any] func(ctx context.Context, in I) (O, error)

// Func is a single interceptor. It may call next zero or one times, replace
// the input passed to next, transform the result on the way out, or
// short-circuit by returning without calling next. Errors from next propagate
// unless the interceptor handles them.
type Func[I, O any] func(ctx context.Context, in I, next Next[I, O]) (O, error)

// Chain composes the interceptors, in registration order, around terminal.
// The returned function has the terminal's signature: interceptors run
// first-to-last on the way in and unwind last-to-first on the way out.
func Chain[I, O any](interceptors []Func[I, O], terminal Next[I, O]) Next[I, O] {
	if terminal == nil {
		panic("orpc: interceptor chain requires a terminal function")
	}

	next := terminal
	for i := len(interceptors) - 1; i >= 0; i-- {
		fn := interceptors[i]
		if fn == nil {
			continue
		}
		next = wrap(fn, next)
	}
	return next
}

func wrap[I, O any](fn Func[I, O], inner Next[I, O]) Next[I, O] {
	return func(ctx context.Context, in I) (O, error) {
		called := false
		return fn(ctx, in, func(ctx context.Context, in I) (O, error) {
			if called {
				var zero O
				return zero, ErrNextCalledTwice
			}
			called = true
			return inner(ctx, in)
		})
	}
}
