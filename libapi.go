package orpc

import (
	clientpkg "github.com/mefengl/note-orpc/client"
	runtimepkg "github.com/mefengl/note-orpc/internal/runtime"
	codecpkg "github.com/mefengl/note-orpc/internal/runtime/codec"
	configpkg "github.com/mefengl/note-orpc/internal/runtime/config"
	contractpkg "github.com/mefengl/note-orpc/internal/runtime/contract"
	executorpkg "github.com/mefengl/note-orpc/internal/runtime/executor"
	idspkg "github.com/mefengl/note-orpc/internal/runtime/ids"
	jsoncodec "github.com/mefengl/note-orpc/internal/runtime/jsoncodec"
	loggingpkg "github.com/mefengl/note-orpc/internal/runtime/logging"
	metapkg "github.com/mefengl/note-orpc/internal/runtime/meta"
	procedurepkg "github.com/mefengl/note-orpc/internal/runtime/procedure"
	routerpkg "github.com/mefengl/note-orpc/internal/runtime/router"
	errspkg "github.com/mefengl/note-orpc/internal/runtime/rpcerrors"
	streampkg "github.com/mefengl/note-orpc/internal/runtime/stream"
	transportpkg "github.com/mefengl/note-orpc/transport"
	"google.golang.org/protobuf/proto"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies

	Procedure         = procedurepkg.Procedure
	ProcedureOption   = procedurepkg.Option
	Handler           = procedurepkg.Handler
	Call              = procedurepkg.Call
	TypedCall[In any] = procedurepkg.TypedCall[In]

	TypedHandler[In, Out any] = procedurepkg.TypedHandler[In, Out]

	Middleware        = procedurepkg.Middleware
	MiddlewareRequest = procedurepkg.MiddlewareRequest
	Next              = procedurepkg.Next
	InputMapper       = procedurepkg.InputMapper
	ErrorDef          = procedurepkg.ErrorDef
	ErrorMap          = procedurepkg.ErrorMap

	Router       = routerpkg.Router
	RouterLoader = routerpkg.Loader
	Route        = routerpkg.Route
	EntryOption  = routerpkg.EntryOption

	Contract     = contractpkg.Contract
	ContractFunc = contractpkg.Func

	Error       = errspkg.Error
	ErrorOption = errspkg.Option
	Issue       = errspkg.Issue

	Meta = metapkg.Meta

	Event        = streampkg.Event
	Iterator     = streampkg.Iterator
	NextFunc     = streampkg.NextFunc
	StreamOption = streampkg.Option
	SSEEncoder   = streampkg.Encoder
	SSEDecoder   = streampkg.Decoder

	CallRequest             = runtimepkg.CallRequest
	CallInterceptor         = runtimepkg.CallInterceptor
	InterceptorBuilder      = runtimepkg.InterceptorBuilder
	InterceptorRegistration = runtimepkg.InterceptorRegistration
	CallDescription         = executorpkg.CallDescription

	Request  = codecpkg.Request
	Response = codecpkg.Response
	File     = codecpkg.File

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	// Modular transport types
	Transport             = transportpkg.Transport
	TransportServer       = transportpkg.Server
	TransportHandler      = transportpkg.Handler
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities

	Client     = clientpkg.Client
	Link       = clientpkg.Link
	HTTPLink   = clientpkg.HTTPLink
	CallOption = clientpkg.CallOption
)

var (
	NewService     = runtimepkg.NewService
	TryNewService  = runtimepkg.TryNewService
	ValidateConfig = configpkg.ValidateConfig

	NewProcedure    = procedurepkg.New
	WithInput       = procedurepkg.WithInput
	WithOutput      = procedurepkg.WithOutput
	WithErrors      = procedurepkg.WithErrors
	WithMeta        = procedurepkg.WithMeta
	WithMiddleware  = procedurepkg.WithMiddleware
	WithInputMapper = procedurepkg.WithInputMapper

	NewRouter = routerpkg.New
	Hidden    = routerpkg.Hidden

	DefaultInterceptors      = runtimepkg.DefaultInterceptors
	RecovererInterceptor     = runtimepkg.RecovererInterceptor
	CorrelationIDInterceptor = runtimepkg.CorrelationIDInterceptor
	LogCallsInterceptor      = runtimepkg.LogCallsInterceptor
	TracerInterceptor        = runtimepkg.TracerInterceptor
	MetricsInterceptor       = runtimepkg.MetricsInterceptor

	NewError        = errspkg.New
	ValidationError = errspkg.Validation
	ClassifyError   = errspkg.Classify
	StatusForCode   = errspkg.StatusFor
	WithStatus      = errspkg.WithStatus
	WithData        = errspkg.WithData
	WithCause       = errspkg.WithCause

	NewMeta = metapkg.New

	AnyContract = contractpkg.Any

	NewStream         = streampkg.New
	StreamFromSlice   = streampkg.FromSlice
	StreamFromChannel = streampkg.FromChannel
	StreamMapError    = streampkg.MapError
	WithStreamClose   = streampkg.WithClose
	NewSSEEncoder     = streampkg.NewEncoder
	NewSSEDecoder     = streampkg.NewDecoder
	StreamFromDecoder = streampkg.FromDecoder
	PumpStream        = streampkg.Pump

	// StreamDone is the terminal marker returned by Iterator.Next when a
	// stream has completed normally.
	StreamDone = streampkg.Done

	// Modular transport registry. Import individual transports via:
	// _ "github.com/mefengl/note-orpc/transport/http"
	DefaultTransportRegistry = transportpkg.DefaultRegistry
	RegisterTransport        = transportpkg.Register
	BuildTransport           = transportpkg.Build
	GetCapabilities          = transportpkg.GetCapabilities

	NewClient   = clientpkg.New
	NewHTTPLink = clientpkg.NewHTTPLink

	WithLastEventID = clientpkg.WithLastEventID
	WithHeader      = clientpkg.WithHeader

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrConfigRequired    = errspkg.ErrConfigRequired
	ErrLoggerRequired    = errspkg.ErrLoggerRequired
	ErrRouterRequired    = errspkg.ErrRouterRequired
	ErrHandlerRequired   = errspkg.ErrHandlerRequired
	ErrProcedureRequired = errspkg.ErrProcedureRequired

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewWatermillAdapter  = loggingpkg.NewWatermillAdapter
	NopLogger            = loggingpkg.Nop

	CreateULID = idspkg.CreateULID
)

// TypedProcedure builds a procedure from a handler with concrete input and
// output types. The input and output contracts default to JSON coercions
// into In and Out unless overridden with WithInput or WithOutput.
func TypedProcedure[In, Out any](handler TypedHandler[In, Out], opts ...ProcedureOption) *Procedure {
	return procedurepkg.Typed(handler, opts...)
}

// JSONContract validates and normalizes a value by round-tripping it through
// JSON into T.
func JSONContract[T any]() Contract {
	return contractpkg.JSON[T]()
}

// ProtoContract validates a value against the protobuf message type T using
// protojson decoding.
func ProtoContract[T proto.Message]() Contract {
	return contractpkg.Proto[T]()
}

// Error codes carried on the wire. StatusForCode maps each to its HTTP status.
const (
	CodeBadRequest           = errspkg.CodeBadRequest
	CodeUnauthorized         = errspkg.CodeUnauthorized
	CodeForbidden            = errspkg.CodeForbidden
	CodeNotFound             = errspkg.CodeNotFound
	CodeMethodNotSupported   = errspkg.CodeMethodNotSupported
	CodeTimeout              = errspkg.CodeTimeout
	CodeConflict             = errspkg.CodeConflict
	CodePreconditionFailed   = errspkg.CodePreconditionFailed
	CodePayloadTooLarge      = errspkg.CodePayloadTooLarge
	CodeUnsupportedMediaType = errspkg.CodeUnsupportedMediaType
	CodeUnprocessableContent = errspkg.CodeUnprocessableContent
	CodeTooManyRequests      = errspkg.CodeTooManyRequests
	CodeClientClosedRequest  = errspkg.CodeClientClosedRequest
	CodeInternalServerError  = errspkg.CodeInternalServerError
	CodeNotImplemented       = errspkg.CodeNotImplemented
	CodeBadGateway           = errspkg.CodeBadGateway
	CodeServiceUnavailable   = errspkg.CodeServiceUnavailable
	CodeGatewayTimeout       = errspkg.CodeGatewayTimeout
)

// Meta keys populated by the default interceptors.
const (
	MetaCorrelationID = runtimepkg.MetaCorrelationID
)
