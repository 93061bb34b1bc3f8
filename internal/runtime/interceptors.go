package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mefengl/note-orpc/internal/runtime/executor"
	idspkg "github.com/mefengl/note-orpc/internal/runtime/ids"
	"github.com/mefengl/note-orpc/internal/runtime/interceptor"
	loggingpkg "github.com/mefengl/note-orpc/internal/runtime/logging"
	"github.com/mefengl/note-orpc/internal/runtime/procedure"
	"github.com/mefengl/note-orpc/internal/runtime/rpcerrors"
)

// MetaCorrelationID is the meta key carrying the per-call correlation
// identifier injected by the correlation interceptor.
const MetaCorrelationID = "correlation_id"

// CallRequest is the unit of work flowing through service interceptors. It
// wraps the decoded call together with the procedure the router matched.
type CallRequest struct {
	Description *executor.CallDescription
	Procedure   *procedure.Procedure
}

// CallInterceptor wraps whole-call execution, outside the procedure's own
// middleware chain. Interceptors see every matched call on the service.
type CallInterceptor = interceptor.Func[*CallRequest, any]

// InterceptorBuilder constructs a call interceptor using the provided service instance.
type InterceptorBuilder func(*Service) (CallInterceptor, error)

// InterceptorRegistration captures how an interceptor should be registered on a Service.
type InterceptorRegistration struct {
	Name        string
	Interceptor CallInterceptor
	Builder     InterceptorBuilder
}

// DefaultInterceptors returns the standard interceptor chain used by the Service constructor.
func DefaultInterceptors() []InterceptorRegistration {
	return []InterceptorRegistration{
		RecovererInterceptor(),
		CorrelationIDInterceptor(),
		LogCallsInterceptor(nil),
		TracerInterceptor(),
		MetricsInterceptor(),
	}
}

func correlationID(req *CallRequest) string {
	id, _ := req.Description.Meta.GetString(MetaCorrelationID)
	return id
}

// RecovererInterceptor converts panics raised by later interceptors into call errors.
func RecovererInterceptor() InterceptorRegistration {
	return InterceptorRegistration{
		Name: "recoverer",
		Interceptor: func(ctx context.Context, req *CallRequest, next interceptor.Next[*CallRequest, any]) (out any, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = rpcerrors.New(
						rpcerrors.CodeInternalServerError,
						"internal server error",
						rpcerrors.WithCause(fmt.Errorf("panic: %v", r)),
					)
				}
			}()
			return next(ctx, req)
		},
	}
}

// CorrelationIDInterceptor ensures each call carries a correlation identifier.
func CorrelationIDInterceptor() InterceptorRegistration {
	return InterceptorRegistration{
		Name: "correlation_id",
		Interceptor: func(ctx context.Context, req *CallRequest, next interceptor.Next[*CallRequest, any]) (any, error) {
			if _, ok := req.Description.Meta[MetaCorrelationID]; !ok {
				req.Description.Meta = req.Description.Meta.With(MetaCorrelationID, idspkg.CreateULID())
			}
			return next(ctx, req)
		},
	}
}

// LogCallsInterceptor logs every matched call with its path and outcome.
func LogCallsInterceptor(logger loggingpkg.ServiceLogger) InterceptorRegistration {
	return InterceptorRegistration{
		Name: "log_calls",
		Builder: func(s *Service) (CallInterceptor, error) {
			l := logger
			if l == nil {
				l = s.Logger
			}
			if l == nil {
				return nil, errors.New("log calls interceptor requires a logger")
			}
			return func(ctx context.Context, req *CallRequest, next interceptor.Next[*CallRequest, any]) (any, error) {
				start := time.Now()
				l.Debug("Handling call", loggingpkg.LogFields{
					"path":           req.Description.JoinedPath(),
					"correlation_id": correlationID(req),
				})

				out, err := next(ctx, req)

				fields := loggingpkg.LogFields{
					"path":           req.Description.JoinedPath(),
					"correlation_id": correlationID(req),
					"duration":       time.Since(start).String(),
				}
				if err != nil {
					l.Error("Call failed", err, fields)
				} else {
					l.Debug("Call completed", fields)
				}
				return out, err
			}, nil
		},
	}
}

// TracerInterceptor wraps call execution in an OpenTelemetry span.
func TracerInterceptor() InterceptorRegistration {
	return InterceptorRegistration{
		Name: "tracer",
		Interceptor: func(ctx context.Context, req *CallRequest, next interceptor.Next[*CallRequest, any]) (any, error) {
			tracer := otel.Tracer("rpc-service-tracer")
			ctx, span := tracer.Start(ctx, "HandleCall")
			defer span.End()

			span.SetAttributes(
				attribute.String("rpc.path", req.Description.JoinedPath()),
				attribute.String("rpc.correlation_id", correlationID(req)),
			)

			out, err := next(ctx, req)
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
			}
			return out, err
		},
	}
}

// MetricsInterceptor records per-path call counts and latencies with Prometheus.
func MetricsInterceptor() InterceptorRegistration {
	return InterceptorRegistration{
		Name: "metrics",
		Builder: func(s *Service) (CallInterceptor, error) {
			if !s.Conf.MetricsEnabled {
				return nil, nil
			}

			calls := prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rpc_calls_total",
				Help: "Total number of handled RPC calls.",
			}, []string{"path", "outcome"})
			duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "rpc_call_duration_seconds",
				Help:    "RPC call handling latency.",
				Buckets: prometheus.DefBuckets,
			}, []string{"path"})

			registerer := s.registerer
			if registerer == nil {
				registerer = prometheus.DefaultRegisterer
			}
			for _, c := range []prometheus.Collector{calls, duration} {
				if err := registerer.Register(c); err != nil {
					already := prometheus.AlreadyRegisteredError{}
					if !errors.As(err, &already) {
						return nil, err
					}
				}
			}

			return func(ctx context.Context, req *CallRequest, next interceptor.Next[*CallRequest, any]) (any, error) {
				start := time.Now()
				out, err := next(ctx, req)

				path := req.Description.JoinedPath()
				outcome := "ok"
				if err != nil {
					outcome = rpcerrors.Classify(err).Code
				}
				calls.WithLabelValues(path, outcome).Inc()
				duration.WithLabelValues(path).Observe(time.Since(start).Seconds())
				return out, err
			}, nil
		},
	}
}

// RegisterInterceptor attaches the supplied interceptor to the service chain.
func (s *Service) RegisterInterceptor(cfg InterceptorRegistration) error {
	var ic CallInterceptor
	switch {
	case cfg.Interceptor != nil:
		ic = cfg.Interceptor
	case cfg.Builder != nil:
		var err error
		ic, err = cfg.Builder(s)
		if err != nil {
			return err
		}
	default:
		return errors.New("interceptor registration requires Interceptor or Builder")
	}

	if ic == nil {
		return nil
	}

	s.interceptors = append(s.interceptors, ic)
	return nil
}
