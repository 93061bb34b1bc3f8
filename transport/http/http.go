// Package http provides a net/http transport for the RPC service. The
// adapter translates HTTP requests into the abstract request shape, drives
// the core handler, and renders unary responses as JSON and streaming
// responses as server-sent events.
package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/mefengl/note-orpc/internal/runtime/codec"
	"github.com/mefengl/note-orpc/internal/runtime/logging"
	"github.com/mefengl/note-orpc/internal/runtime/stream"
	"github.com/mefengl/note-orpc/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "http"

const shutdownGrace = 5 * time.Second

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.HTTPCapabilities)
}

// Handler adapts the core RPC handler to nethttp.Handler. Requests outside
// the RPC convention fall through to Fallback.
type Handler struct {
	Core      transport.Handler
	KeepAlive time.Duration
	Logger    logging.ServiceLogger

	// Fallback serves requests the core reports as unmatched. Defaults to
	// nethttp.NotFoundHandler.
	Fallback nethttp.Handler
}

// NewHandler wraps core for serving over HTTP.
func NewHandler(core transport.Handler, keepAlive time.Duration, logger logging.ServiceLogger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{Core: core, KeepAlive: keepAlive, Logger: logger}
}

func (h *Handler) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	req := &codec.Request{
		Method: r.Method,
		URL:    r.URL,
		Header: r.Header,
		Body:   r.Body,
	}

	resp, matched := h.Core.Handle(r.Context(), req)
	if !matched {
		fallback := h.Fallback
		if fallback == nil {
			fallback = nethttp.NotFoundHandler()
		}
		fallback.ServeHTTP(w, r)
		return
	}

	if resp.Stream != nil {
		h.serveStream(w, r, resp)
		return
	}

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		if _, err := w.Write(resp.Body); err != nil {
			h.Logger.Error("failed to write response body", err, nil)
		}
	}
}

func (h *Handler) serveStream(w nethttp.ResponseWriter, r *nethttp.Request, resp *codec.Response) {
	flusher, ok := w.(nethttp.Flusher)
	if !ok {
		resp.Stream.Close()
		nethttp.Error(w, "streaming unsupported", nethttp.StatusInternalServerError)
		return
	}

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(resp.Status)
	flusher.Flush()

	enc := stream.NewEncoder(w)
	if err := stream.Pump(r.Context(), resp.Stream, enc, flusher.Flush, h.KeepAlive); err != nil && !errors.Is(err, context.Canceled) {
		h.Logger.Error("event stream aborted", err, nil)
	}
}

type server struct {
	httpServer *nethttp.Server
	logger     logging.ServiceLogger
	closeOnce  sync.Once
	closeErr   error
}

// Serve runs the HTTP server until ctx is cancelled or the listener fails.
func (s *server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP shutdown did not finish cleanly", err, nil)
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *server) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.httpServer.Close()
	})
	return s.closeErr
}

// Build creates a new HTTP transport.
func Build(ctx context.Context, cfg transport.Config, handler transport.Handler, logger logging.ServiceLogger) (transport.Transport, error) {
	addr := cfg.GetHTTPServerAddress()
	if addr == "" {
		addr = ":8080"
	}

	httpServer := &nethttp.Server{
		Addr:    addr,
		Handler: NewHandler(handler, cfg.GetStreamKeepAlive(), logger),
	}

	return transport.Transport{
		Server: &server{httpServer: httpServer, logger: logger},
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.HTTPCapabilities
}
