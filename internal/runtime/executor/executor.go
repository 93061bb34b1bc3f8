// Package executor runs a resolved procedure against a call description:
// input mapping, input validation, the middleware chain, the handler, and
// output validation, classifying everything thrown along the way. The
// executor performs no I/O of its own.
package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/mefengl/note-orpc/internal/runtime/logging"
	"github.com/mefengl/note-orpc/internal/runtime/meta"
	"github.com/mefengl/note-orpc/internal/runtime/procedure"
	"github.com/mefengl/note-orpc/internal/runtime/rpcerrors"
	"github.com/mefengl/note-orpc/internal/runtime/stream"
)

// CallDescription is the per-invocation record a codec decodes from the
// wire. It is created per call and discarded once the response is produced.
type CallDescription struct {
	Path        []string
	Input       any
	Meta        meta.Meta
	LastEventID string
}

// JoinedPath renders the path segments as a single slash-separated string
// for logs, metrics labels, and span attributes.
func (c *CallDescription) JoinedPath() string {
	return strings.Join(c.Path, "/")
}

// Options tunes error exposure and host reporting.
type Options struct {
	// Verbose passes undefined error details through to the wire instead of
	// sanitizing them. Leave off outside development.
	Verbose bool
	Logger  logging.ServiceLogger
}

// Execute runs the pipeline. On failure the returned error is always an
// *rpcerrors.Error that is safe to encode: undefined errors have already
// been reported to the logger and sanitized according to Options.
func Execute(ctx context.Context, p *procedure.Procedure, call *CallDescription, opts Options) (out any, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	defer func() {
		if r := recover(); r != nil {
			recovered, ok := r.(error)
			if !ok {
				recovered = fmt.Errorf("panic: %v", r)
			}
			out = nil
			err = finalizeError(ctx, p, call, recovered, opts, logger)
		}
	}()

	raw := call.Input
	for _, mapper := range p.InputMappers {
		mapped, mapErr := mapper(ctx, raw)
		if mapErr != nil {
			return nil, finalizeError(ctx, p, call, mapErr, opts, logger)
		}
		raw = mapped
	}

	input := raw
	if p.Input != nil {
		validated, issues, valErr := p.Input.Validate(ctx, raw)
		if valErr != nil {
			return nil, finalizeError(ctx, p, call, valErr, opts, logger)
		}
		if len(issues) > 0 {
			// Deliberate, defined-shape outcome: passes through unaltered.
			return nil, rpcerrors.Validation("input validation failed", issues)
		}
		input = validated
	}

	base := p.Meta.WithAll(call.Meta)
	req := &procedure.MiddlewareRequest{
		Meta:        base,
		Path:        call.Path,
		Procedure:   p,
		Input:       input,
		LastEventID: call.LastEventID,
	}

	out, chainErr := procedure.BuildChain(p)(ctx, req)
	if chainErr != nil {
		return nil, finalizeError(ctx, p, call, chainErr, opts, logger)
	}

	if it, ok := out.(*stream.Iterator); ok {
		// Errors surfacing later on the stream go through the same
		// classification before they reach the wire.
		return stream.MapError(it, func(streamErr error) error {
			return finalizeError(ctx, p, call, streamErr, opts, logger)
		}), nil
	}

	if p.Output != nil {
		validated, issues, valErr := p.Output.Validate(ctx, out)
		if valErr != nil || len(issues) > 0 {
			return nil, outputDefect(call, issues, valErr, opts, logger)
		}
		out = validated
	}
	return out, nil
}

// finalizeError classifies a thrown value against the procedure's error map.
// Defined errors pass through (data kept only when it satisfies the declared
// contract); undefined errors are reported to the host and sanitized unless
// verbose mode is on.
func finalizeError(ctx context.Context, p *procedure.Procedure, call *CallDescription, err error, opts Options, logger logging.ServiceLogger) *rpcerrors.Error {
	rpcErr := rpcerrors.Classify(err)

	if def, defined := p.Errors[rpcErr.Code]; defined {
		finalized := rpcErr.Clone()
		if def.Status > 0 {
			finalized.Status = def.Status
		}
		if def.Data != nil && finalized.Data != nil {
			validated, issues, valErr := def.Data.Validate(ctx, finalized.Data)
			if valErr != nil || len(issues) > 0 {
				finalized.Data = nil
			} else {
				finalized.Data = validated
			}
		}
		return finalized
	}

	logger.Error("undefined error in call", rpcErr, logging.LogFields{
		"path": strings.Join(call.Path, "/"),
		"code": rpcErr.Code,
	})
	if opts.Verbose {
		return rpcErr
	}
	return rpcErr.Sanitized()
}

// outputDefect handles an output-contract violation: always internal, never
// attributed to the client. Diagnostic detail crosses the wire only in
// verbose mode.
func outputDefect(call *CallDescription, issues []rpcerrors.Issue, valErr error, opts Options, logger logging.ServiceLogger) *rpcerrors.Error {
	logger.Error("output contract violation", valErr, logging.LogFields{
		"path":   strings.Join(call.Path, "/"),
		"issues": issues,
	})
	if opts.Verbose {
		return rpcerrors.New(
			rpcerrors.CodeInternalServerError,
			"output validation failed",
			rpcerrors.WithData(map[string]any{"issues": issues}),
			rpcerrors.WithCause(valErr),
		)
	}
	return rpcerrors.New(rpcerrors.CodeInternalServerError, "internal server error", rpcerrors.WithCause(valErr))
}
