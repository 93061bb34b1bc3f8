// Package runtime wires the RPC pipeline together: codec, router,
// interceptors, and executor behind a single transport-facing handler.
package runtime

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	codecpkg "github.com/mefengl/note-orpc/internal/runtime/codec"
	configpkg "github.com/mefengl/note-orpc/internal/runtime/config"
	"github.com/mefengl/note-orpc/internal/runtime/executor"
	"github.com/mefengl/note-orpc/internal/runtime/interceptor"
	loggingpkg "github.com/mefengl/note-orpc/internal/runtime/logging"
	routerpkg "github.com/mefengl/note-orpc/internal/runtime/router"
	"github.com/mefengl/note-orpc/internal/runtime/rpcerrors"
	transportpkg "github.com/mefengl/note-orpc/transport"
)

// ServiceDependencies holds the optional collaborators that the Service can use.
// Leave fields nil to use the defaults.
type ServiceDependencies struct {
	Interceptors               []InterceptorRegistration // Appended after the default interceptor chain.
	DisableDefaultInterceptors bool                      // Skips registering the default interceptor chain when true.
	Registerer                 prometheus.Registerer     // Metrics registry; DefaultRegisterer when nil.
	TransportRegistry          *transportpkg.Registry    // Transport lookup; DefaultRegistry when nil.
}

// Service binds a procedure router to the wire codec and the interceptor
// chain. It is the Handler every transport drives.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	router *routerpkg.Router
	codec  *codecpkg.RPCCodec

	interceptors []CallInterceptor
	registerer   prometheus.Registerer

	transportRegistry *transportpkg.Registry
}

// NewService constructs a Service for the supplied configuration, panicking
// on invalid setup. Use TryNewService to handle errors instead.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, router *routerpkg.Router, deps ServiceDependencies) *Service {
	s, err := TryNewService(conf, log, router, deps)
	if err != nil {
		panic(err)
	}
	return s
}

// TryNewService constructs a Service for the supplied configuration.
func TryNewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, router *routerpkg.Router, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, rpcerrors.ErrConfigRequired
	}
	if log == nil {
		return nil, rpcerrors.ErrLoggerRequired
	}
	if router == nil {
		return nil, rpcerrors.ErrRouterRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log.Info("Creating RPC service", loggingpkg.LogFields{
		"transport": conf.Transport,
		"config":    conf,
	})

	s := &Service{
		Conf:              conf,
		Logger:            log,
		router:            router,
		codec:             codecpkg.New(conf.Prefix, conf.MaxBodyBytes),
		registerer:        deps.Registerer,
		transportRegistry: deps.TransportRegistry,
	}

	if err := s.registerConfiguredInterceptors(deps); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) registerConfiguredInterceptors(deps ServiceDependencies) error {
	var defaults []InterceptorRegistration
	if !deps.DisableDefaultInterceptors {
		defaults = DefaultInterceptors()
	}
	registrations := make([]InterceptorRegistration, 0, len(defaults)+len(deps.Interceptors))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Interceptors...)

	for _, reg := range registrations {
		if err := s.RegisterInterceptor(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_interceptor"
			}
			return fmt.Errorf("failed to register interceptor %s: %w", name, err)
		}
	}
	return nil
}

// Handle decodes, routes, and executes a single request. It reports
// matched=false when the request is not an RPC call for this service so the
// caller can fall through to other handling; in that case the response is nil.
func (s *Service) Handle(ctx context.Context, req *codecpkg.Request) (*codecpkg.Response, bool) {
	call, matched, err := s.codec.Decode(req)
	if !matched {
		return nil, false
	}
	if err != nil {
		return s.codec.EncodeError(err), true
	}

	proc, found, err := s.router.Find(call.Path)
	if err != nil {
		s.Logger.Error("router failed to resolve path", err, loggingpkg.LogFields{
			"path": call.JoinedPath(),
		})
		return s.codec.EncodeError(err), true
	}
	if !found {
		return nil, false
	}

	out, err := s.Call(ctx, &CallRequest{Description: call, Procedure: proc})
	if err != nil {
		return s.codec.EncodeError(err), true
	}

	resp, err := s.codec.EncodeResponse(out)
	if err != nil {
		s.Logger.Error("failed to encode response", err, loggingpkg.LogFields{
			"path": call.JoinedPath(),
		})
		return s.codec.EncodeError(rpcerrors.Classify(err).Sanitized()), true
	}
	return resp, true
}

// Call runs a matched call through the interceptor chain and the executor.
// Transports that bypass the codec (tests, in-process callers) can use it
// directly.
func (s *Service) Call(ctx context.Context, req *CallRequest) (any, error) {
	terminal := func(ctx context.Context, req *CallRequest) (any, error) {
		return executor.Execute(ctx, req.Procedure, req.Description, executor.Options{
			Verbose: s.Conf.VerboseErrors,
			Logger:  s.Logger,
		})
	}
	return interceptor.Chain(s.interceptors, terminal)(ctx, req)
}

// Procedures lists the service's visible routes in lexical order.
func (s *Service) Procedures() []routerpkg.Route {
	return s.router.List()
}

// Start builds the configured transport and serves until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	registry := s.transportRegistry
	if registry == nil {
		registry = transportpkg.DefaultRegistry
	}

	tr, err := registry.Build(ctx, s.Conf, s, s.Logger)
	if err != nil {
		return fmt.Errorf("failed to build transport: %w", err)
	}
	defer tr.Server.Close()

	s.Logger.Info("Serving RPC", loggingpkg.LogFields{
		"transport": s.Conf.GetTransport(),
	})
	return tr.Server.Serve(ctx)
}
