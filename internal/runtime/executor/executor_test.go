package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/mefengl/note-orpc/internal/runtime/contract"
	"github.com/mefengl/note-orpc/internal/runtime/logging"
	"github.com/mefengl/note-orpc/internal/runtime/meta"
	"github.com/mefengl/note-orpc/internal/runtime/procedure"
	"github.com/mefengl/note-orpc/internal/runtime/rpcerrors"
	"github.com/mefengl/note-orpc/internal/runtime/stream"
)

type userOutput struct {
	ID   float64 `json:"id"`
	Name string  `json:"name"`
}

func userGetProcedure() *procedure.Procedure {
	type userInput struct {
		ID float64 `json:"id"`
	}
	return procedure.Typed(func(ctx context.Context, call procedure.TypedCall[userInput]) (userOutput, error) {
		return userOutput{ID: call.Input.ID, Name: "alice"}, nil
	})
}

func TestExecuteHappyPath(t *testing.T) {
	out, err := Execute(context.Background(), userGetProcedure(), &CallDescription{
		Path:  []string{"users", "get"},
		Input: map[string]any{"id": float64(1)},
	}, Options{})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	typed, ok := out.(userOutput)
	if !ok {
		t.Fatalf("expected typed output, got %T", out)
	}
	if typed.ID != 1 || typed.Name != "alice" {
		t.Fatalf("unexpected output %#v", typed)
	}
}

func TestExecuteInputValidationFailure(t *testing.T) {
	_, err := Execute(context.Background(), userGetProcedure(), &CallDescription{
		Path:  []string{"users", "get"},
		Input: map[string]any{"id": "x"},
	}, Options{})

	var rpcErr *rpcerrors.Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected typed error, got %v", err)
	}
	if rpcErr.Code != rpcerrors.CodeBadRequest || rpcErr.Status != 400 {
		t.Fatalf("expected BAD_REQUEST/400, got %s/%d", rpcErr.Code, rpcErr.Status)
	}
	data, ok := rpcErr.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected issue payload, got %T", rpcErr.Data)
	}
	issues, ok := data["issues"].([]rpcerrors.Issue)
	if !ok || len(issues) == 0 || issues[0].Message == "" {
		t.Fatalf("expected issues describing the mismatch, got %v", data["issues"])
	}
}

func TestExecuteInputMapperRunsBeforeValidation(t *testing.T) {
	p := userGetProcedure()
	p.InputMappers = []procedure.InputMapper{
		func(ctx context.Context, raw any) (any, error) {
			// Accept the legacy {user_id} shape by rewriting it pre-contract.
			m, ok := raw.(map[string]any)
			if !ok {
				return raw, nil
			}
			if id, ok := m["user_id"]; ok {
				return map[string]any{"id": id}, nil
			}
			return raw, nil
		},
	}

	out, err := Execute(context.Background(), p, &CallDescription{
		Input: map[string]any{"user_id": float64(7)},
	}, Options{})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if out.(userOutput).ID != 7 {
		t.Fatalf("expected mapped input, got %#v", out)
	}
}

func TestExecuteMergesProcedureMetaUnderCallMeta(t *testing.T) {
	var seen meta.Meta
	p := procedure.New(func(ctx context.Context, call *procedure.Call) (any, error) {
		seen = call.Meta
		return nil, nil
	}, procedure.WithMeta(meta.New("tier", "static", "source", "procedure")))

	_, err := Execute(context.Background(), p, &CallDescription{
		Meta: meta.New("source", "adapter"),
	}, Options{})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if v, _ := seen.Get("tier"); v != "static" {
		t.Fatalf("expected static meta, got %v", seen)
	}
	if v, _ := seen.Get("source"); v != "adapter" {
		t.Fatalf("expected adapter meta to win, got %v", seen)
	}
}

func TestExecuteDefinedErrorPassesThrough(t *testing.T) {
	p := procedure.New(func(ctx context.Context, call *procedure.Call) (any, error) {
		return nil, call.Error("OUT_OF_STOCK", "no more left", rpcerrors.WithData(map[string]any{"restock": "tomorrow"}))
	}, procedure.WithErrors(procedure.ErrorMap{
		"OUT_OF_STOCK": {Status: 409},
	}))

	_, err := Execute(context.Background(), p, &CallDescription{}, Options{})

	var rpcErr *rpcerrors.Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected typed error, got %v", err)
	}
	if rpcErr.Code != "OUT_OF_STOCK" || rpcErr.Status != 409 || rpcErr.Message != "no more left" {
		t.Fatalf("expected defined error to pass through, got %+v", rpcErr)
	}
	if rpcErr.Data == nil {
		t.Fatal("expected defined error data to be preserved")
	}
}

func TestExecuteDefinedErrorDataDroppedWhenContractFails(t *testing.T) {
	type restock struct {
		Restock string `json:"restock"`
	}
	p := procedure.New(func(ctx context.Context, call *procedure.Call) (any, error) {
		return nil, call.Error("OUT_OF_STOCK", "no more left", rpcerrors.WithData("not-a-struct-shape"))
	}, procedure.WithErrors(procedure.ErrorMap{
		"OUT_OF_STOCK": {Status: 409, Data: contract.JSON[restock]()},
	}))

	_, err := Execute(context.Background(), p, &CallDescription{}, Options{})

	var rpcErr *rpcerrors.Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected typed error, got %v", err)
	}
	if rpcErr.Code != "OUT_OF_STOCK" {
		t.Fatalf("expected error to stay defined, got %q", rpcErr.Code)
	}
	if rpcErr.Data != nil {
		t.Fatalf("expected non-conforming data to be dropped, got %v", rpcErr.Data)
	}
}

func TestExecuteUndefinedErrorIsSanitized(t *testing.T) {
	p := procedure.New(func(ctx context.Context, call *procedure.Call) (any, error) {
		return nil, rpcerrors.New("SECRET_STATE", "dsn leaked", rpcerrors.WithData(map[string]any{"dsn": "postgres://"}))
	})

	_, err := Execute(context.Background(), p, &CallDescription{Path: []string{"users", "get"}}, Options{})

	var rpcErr *rpcerrors.Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected typed error, got %v", err)
	}
	if rpcErr.Code != rpcerrors.CodeInternalServerError {
		t.Fatalf("expected sanitized internal error, got %q", rpcErr.Code)
	}
	if rpcErr.Data != nil || rpcErr.Message != "internal server error" {
		t.Fatalf("expected message and data discarded, got %+v", rpcErr)
	}
}

func TestExecuteVerboseExposesUndefinedErrors(t *testing.T) {
	p := procedure.New(func(ctx context.Context, call *procedure.Call) (any, error) {
		return nil, rpcerrors.New("DEBUG_ONLY", "diagnostic detail")
	})

	_, err := Execute(context.Background(), p, &CallDescription{}, Options{Verbose: true})

	var rpcErr *rpcerrors.Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != "DEBUG_ONLY" {
		t.Fatalf("expected verbose passthrough, got %v", err)
	}
}

func TestExecutePanicIsClassifiedInternal(t *testing.T) {
	p := procedure.New(func(ctx context.Context, call *procedure.Call) (any, error) {
		panic("handler defect")
	})

	_, err := Execute(context.Background(), p, &CallDescription{}, Options{Logger: logging.Nop()})

	var rpcErr *rpcerrors.Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != rpcerrors.CodeInternalServerError {
		t.Fatalf("expected internal classification of panic, got %v", err)
	}
}

func TestExecuteOutputContractViolationIsInternal(t *testing.T) {
	p := procedure.New(func(ctx context.Context, call *procedure.Call) (any, error) {
		return "not a user", nil
	}, procedure.WithOutput(contract.Func(func(ctx context.Context, value any) (any, []rpcerrors.Issue, error) {
		return nil, []rpcerrors.Issue{{Code: "invalid_type", Message: "expected object"}}, nil
	})))

	_, err := Execute(context.Background(), p, &CallDescription{}, Options{})

	var rpcErr *rpcerrors.Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected typed error, got %v", err)
	}
	if rpcErr.Code != rpcerrors.CodeInternalServerError || rpcErr.Status != 500 {
		t.Fatalf("expected internal classification, got %s/%d", rpcErr.Code, rpcErr.Status)
	}
	if rpcErr.Data != nil {
		t.Fatal("expected no diagnostic detail without verbose mode")
	}
}

func TestExecuteStreamingOutputBypassesOutputContract(t *testing.T) {
	p := procedure.New(func(ctx context.Context, call *procedure.Call) (any, error) {
		return stream.FromSlice([]stream.Event{{Data: 1}}), nil
	}, procedure.WithOutput(contract.Func(func(ctx context.Context, value any) (any, []rpcerrors.Issue, error) {
		t.Fatal("output contract must not see an iterator")
		return nil, nil, nil
	})))

	out, err := Execute(context.Background(), p, &CallDescription{}, Options{})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if _, ok := out.(*stream.Iterator); !ok {
		t.Fatalf("expected iterator output, got %T", out)
	}
}

func TestExecuteStreamErrorsAreClassified(t *testing.T) {
	p := procedure.New(func(ctx context.Context, call *procedure.Call) (any, error) {
		return stream.New(func(ctx context.Context) (stream.Event, error) {
			return stream.Event{}, rpcerrors.New("SECRET_STATE", "internal detail")
		}), nil
	})

	out, err := Execute(context.Background(), p, &CallDescription{}, Options{})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	it := out.(*stream.Iterator)
	_, streamErr := it.Next(context.Background())

	var rpcErr *rpcerrors.Error
	if !errors.As(streamErr, &rpcErr) || rpcErr.Code != rpcerrors.CodeInternalServerError {
		t.Fatalf("expected sanitized stream error, got %v", streamErr)
	}
}
