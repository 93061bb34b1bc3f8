// Package contract is the pluggable validation seam. The executor never
// implements validation logic itself; it calls whatever Contract a procedure
// declares for its input, output and error payloads.
package contract

import (
	"context"
	"fmt"
	"reflect"

	"github.com/mefengl/note-orpc/internal/runtime/jsoncodec"
	"github.com/mefengl/note-orpc/internal/runtime/rpcerrors"
)

// Contract validates a decoded wire value and returns the value the rest of
// the pipeline should see. A non-empty issue list means the value failed the
// contract; err reports infrastructure failure inside the validator itself.
type Contract interface {
	Validate(ctx context.Context, value any) (any, []rpcerrors.Issue, error)
}

// Func adapts a plain function to the Contract interface.
type Func func(ctx context.Context, value any) (any, []rpcerrors.Issue, error)

func (f Func) Validate(ctx context.Context, value any) (any, []rpcerrors.Issue, error) {
	return f(ctx, value)
}

// Any returns a passthrough contract accepting every value unchanged.
func Any() Contract {
	return Func(func(ctx context.Context, value any) (any, []rpcerrors.Issue, error) {
		return value, nil, nil
	})
}

// JSON returns a contract that coerces the decoded wire value into T via a
// JSON round trip. Type mismatches surface as issues, not errors, so they
// reach the client as a BAD_REQUEST with diagnostic detail.
func JSON[T any]() Contract {
	return Func(func(ctx context.Context, value any) (any, []rpcerrors.Issue, error) {
		var typed T
		if err := jsoncodec.Roundtrip(value, &typed); err != nil {
			return nil, []rpcerrors.Issue{{
				Code:    "invalid_type",
				Message: err.Error(),
			}}, nil
		}
		return typed, nil, nil
	})
}

// prototypeFactory builds fresh pointer values of T, so a contract never
// hands the same instance to two concurrent calls.
func prototypeFactory[T any]() (func() T, error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil {
		return nil, fmt.Errorf("orpc: contract type must be concrete")
	}
	if typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("orpc: contract type %s must be a pointer", typ)
	}
	elem := typ.Elem()
	return func() T {
		return reflect.New(elem).Interface().(T)
	}, nil
}
