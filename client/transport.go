package client

// Lifecycle events a Transport reports through its Sink, in addition to the
// application events received from the relay.
const (
	transportConnect      = "connect"
	transportConnectError = "connect_error"
	transportDisconnect   = "disconnect"
)

// Sink receives every event a transport produces, in the order the
// transport produced them. It may be called from any goroutine.
type Sink func(event string, args ...any)

// Transport is one persistent bidirectional connection attempt. A Transport
// is opened at most once and never reused after Close.
type Transport interface {
	// Open starts connecting and returns immediately. Outcomes are reported
	// to sink as "connect", "connect_error" or "disconnect" events.
	Open(sink Sink) error

	// Emit hands an event to the transport for one-way delivery.
	Emit(event string, payload any) error

	// Close releases the connection. Safe to call more than once.
	Close() error
}

// Dialer creates a fresh Transport for each connection attempt.
type Dialer func() (Transport, error)
