// Package rpcerrors defines the wire-safe error model shared by the
// executor, the codec and the transports.
package rpcerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Well-known error codes. Procedures may declare additional codes in their
// error map; anything else thrown at runtime is classified as undefined and
// sanitized before it crosses the wire.
const (
	CodeBadRequest           = "BAD_REQUEST"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
	CodeMethodNotSupported   = "METHOD_NOT_SUPPORTED"
	CodeTimeout              = "TIMEOUT"
	CodeConflict             = "CONFLICT"
	CodePreconditionFailed   = "PRECONDITION_FAILED"
	CodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodeUnprocessableContent = "UNPROCESSABLE_CONTENT"
	CodeTooManyRequests      = "TOO_MANY_REQUESTS"
	CodeClientClosedRequest  = "CLIENT_CLOSED_REQUEST"
	CodeInternalServerError  = "INTERNAL_SERVER_ERROR"
	CodeNotImplemented       = "NOT_IMPLEMENTED"
	CodeBadGateway           = "BAD_GATEWAY"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
	CodeGatewayTimeout       = "GATEWAY_TIMEOUT"
)

var statusByCode = map[string]int{
	CodeBadRequest:           http.StatusBadRequest,
	CodeUnauthorized:         http.StatusUnauthorized,
	CodeForbidden:            http.StatusForbidden,
	CodeNotFound:             http.StatusNotFound,
	CodeMethodNotSupported:   http.StatusMethodNotAllowed,
	CodeTimeout:              http.StatusRequestTimeout,
	CodeConflict:             http.StatusConflict,
	CodePreconditionFailed:   http.StatusPreconditionFailed,
	CodePayloadTooLarge:      http.StatusRequestEntityTooLarge,
	CodeUnsupportedMediaType: http.StatusUnsupportedMediaType,
	CodeUnprocessableContent: http.StatusUnprocessableEntity,
	CodeTooManyRequests:      http.StatusTooManyRequests,
	CodeClientClosedRequest:  499,
	CodeInternalServerError:  http.StatusInternalServerError,
	CodeNotImplemented:       http.StatusNotImplemented,
	CodeBadGateway:           http.StatusBadGateway,
	CodeServiceUnavailable:   http.StatusServiceUnavailable,
	CodeGatewayTimeout:       http.StatusGatewayTimeout,
}

// StatusFor returns the default HTTP-style status for a code. Unknown codes
// map to 500 so an undeclared code never turns into a success status.
func StatusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Issue describes a single validation failure inside a structured input.
type Issue struct {
	Path    []string `json:"path,omitempty"`
	Code    string   `json:"code,omitempty"`
	Message string   `json:"message"`
}

// Error is the typed, wire-safe error carried across the pipeline. Data is
// only preserved on encode when the invoking procedure declares the code in
// its error map and the payload passes the declared contract.
type Error struct {
	Code    string `json:"code"`
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`

	cause error
}

// Option customises an Error under construction.
type Option func(*Error)

// WithStatus overrides the code-derived default status.
func WithStatus(status int) Option {
	return func(e *Error) { e.Status = status }
}

// WithData attaches a structured payload for programmatic recovery.
func WithData(data any) Option {
	return func(e *Error) { e.Data = data }
}

// WithCause records the underlying error for errors.Is/As chains. The cause
// never crosses the wire.
func WithCause(err error) Option {
	return func(e *Error) { e.cause = err }
}

// New constructs an Error with the code-derived default status.
func New(code, message string, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Status:  StatusFor(code),
		Message: message,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the recorded cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Clone returns a shallow copy. Data is shared, which is safe because
// payloads are treated as read-only once attached.
func (e *Error) Clone() *Error {
	cloned := *e
	return &cloned
}

// Validation builds the BAD_REQUEST-class error carrying a validator's
// structured issue list.
func Validation(message string, issues []Issue) *Error {
	return New(CodeBadRequest, message, WithData(map[string]any{"issues": issues}))
}

// Classify coerces any thrown value into an *Error. A value that already is
// an *Error (anywhere in its wrap chain) passes through unchanged; anything
// else becomes an internal error wrapping the original.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return New(CodeInternalServerError, "internal server error", WithCause(err))
}

// Sanitized returns the generic replacement sent for undefined errors when
// verbose mode is off. The original stays available to the host via Unwrap.
func (e *Error) Sanitized() *Error {
	return New(CodeInternalServerError, "internal server error", WithCause(e))
}

// Construction-time sentinels, surfaced by TryNewService and the builders.
var (
	ErrConfigRequired    = errors.New("orpc: configuration is required")
	ErrLoggerRequired    = errors.New("orpc: logger is required")
	ErrRouterRequired    = errors.New("orpc: router is required")
	ErrHandlerRequired   = errors.New("orpc: handler function is required")
	ErrProcedureRequired = errors.New("orpc: procedure is required")
)
