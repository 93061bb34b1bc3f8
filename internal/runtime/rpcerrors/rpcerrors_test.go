package rpcerrors

import (
	"errors"
	"testing"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{CodeBadRequest, 400},
		{CodeUnauthorized, 401},
		{CodeNotFound, 404},
		{CodePayloadTooLarge, 413},
		{CodeClientClosedRequest, 499},
		{CodeInternalServerError, 500},
		{"SOMETHING_CUSTOM", 500},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := StatusFor(tt.code); got != tt.want {
				t.Fatalf("StatusFor(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestNewAppliesOptions(t *testing.T) {
	cause := errors.New("boom")
	e := New(CodeConflict, "already exists", WithStatus(418), WithData("payload"), WithCause(cause))

	if e.Status != 418 {
		t.Fatalf("expected status override 418, got %d", e.Status)
	}
	if e.Data != "payload" {
		t.Fatalf("expected data to be attached, got %v", e.Data)
	}
	if !errors.Is(e, cause) {
		t.Fatal("expected errors.Is to reach the cause")
	}
	if e.Error() != "CONFLICT: already exists" {
		t.Fatalf("unexpected Error() output %q", e.Error())
	}
}

func TestClassifyPassesThroughTypedErrors(t *testing.T) {
	typed := New(CodeNotFound, "missing user")
	wrapped := errors.Join(errors.New("outer"), typed)

	if got := Classify(typed); got != typed {
		t.Fatalf("expected identity passthrough, got %v", got)
	}
	if got := Classify(wrapped); got != typed {
		t.Fatalf("expected wrap-chain extraction, got %v", got)
	}
}

func TestClassifyWrapsForeignErrors(t *testing.T) {
	cause := errors.New("database down")
	got := Classify(cause)

	if got.Code != CodeInternalServerError {
		t.Fatalf("expected internal classification, got %q", got.Code)
	}
	if !errors.Is(got, cause) {
		t.Fatal("expected the original to remain reachable via Unwrap")
	}
}

func TestSanitizedDropsDataAndMessage(t *testing.T) {
	original := New("SECRET_STATE", "db password is hunter2", WithData(map[string]any{"dsn": "leaky"}))
	clean := original.Sanitized()

	if clean.Code != CodeInternalServerError {
		t.Fatalf("expected generic code, got %q", clean.Code)
	}
	if clean.Data != nil {
		t.Fatalf("expected data to be discarded, got %v", clean.Data)
	}
	if clean.Message != "internal server error" {
		t.Fatalf("expected generic message, got %q", clean.Message)
	}
	if !errors.Is(clean, original) {
		t.Fatal("expected the original to stay reachable for host logging")
	}
}

func TestValidationCarriesIssues(t *testing.T) {
	issues := []Issue{{Path: []string{"id"}, Code: "invalid_type", Message: "expected number"}}
	e := Validation("input validation failed", issues)

	if e.Code != CodeBadRequest || e.Status != 400 {
		t.Fatalf("expected BAD_REQUEST/400, got %s/%d", e.Code, e.Status)
	}
	data, ok := e.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected issue map payload, got %T", e.Data)
	}
	if got, ok := data["issues"].([]Issue); !ok || len(got) != 1 {
		t.Fatalf("expected one issue, got %v", data["issues"])
	}
}
