package transport

// Capabilities describes the features supported by a transport backend.
// Use this to introspect what operations are available at runtime.
type Capabilities struct {
	// SupportsStreaming indicates the transport can deliver event stream
	// responses incrementally. When false, streaming procedures fail on
	// this transport.
	SupportsStreaming bool

	// SupportsResume indicates the transport carries the last-event-id
	// cursor so clients can resume interrupted streams.
	SupportsResume bool

	// SupportsKeepAlive indicates the transport can emit keep-alive
	// signals on idle streams.
	SupportsKeepAlive bool

	// SupportsBinaryInput indicates the transport accepts multipart
	// requests with binary file parts.
	SupportsBinaryInput bool

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64

	// Name is the human-readable name of the transport.
	Name string

	// Version is the transport/driver version.
	Version string
}

// RequiresStreamBuffering returns true if streaming procedures must be
// collected into a single response because the transport cannot deliver
// events incrementally.
func (c Capabilities) RequiresStreamBuffering() bool {
	return !c.SupportsStreaming
}

// Predefined capability sets for the built-in transports.
var (
	// HTTPCapabilities for the net/http server transport.
	HTTPCapabilities = Capabilities{
		Name:                "http",
		SupportsStreaming:   true,
		SupportsResume:      true,
		SupportsKeepAlive:   true,
		SupportsBinaryInput: true,
	}

	// BusCapabilities for the in-process Watermill request/reply transport.
	BusCapabilities = Capabilities{
		Name:              "bus",
		SupportsStreaming: true,
		SupportsResume:    true,
		SupportsKeepAlive: false,
	}

	// NATSCapabilities for the NATS request/reply transport.
	NATSCapabilities = Capabilities{
		Name:              "nats",
		SupportsStreaming: false,
		SupportsResume:    false,
		SupportsKeepAlive: false,
		MaxMessageSize:    1 << 20,
	}
)
