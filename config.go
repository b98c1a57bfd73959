package websocket

import (
	"net/http"
	"time"
)

// AutoPingSetup controls the idle-ping scheduler described in spec.md §3.
type AutoPingSetup struct {
	Enabled bool
	Period  time.Duration
}

// ProxyConfig describes how to reach an HTTP CONNECT (or future SOCKS)
// proxy before starting the WebSocket handshake.
type ProxyConfig struct {
	// URL is the proxy's address, e.g. "http://localhost:8081". Only the
	// host:port is used; scheme selects transport but TLS setup itself
	// is the caller's responsibility (out of scope per spec.md §1).
	URL string

	// Headers are included on the CONNECT request.
	Headers http.Header

	// HandshakeTimeout bounds how long the CONNECT tunnel establishment
	// may take before ReasonProxyHandshakeTimeout is returned.
	HandshakeTimeout time.Duration
}

// Config is the configuration surface of spec.md §6.
type Config struct {
	// MaxFrameSize rejects inbound frames larger than this many bytes.
	// Zero means DefaultMaxFrameSize.
	MaxFrameSize int

	// MaxMessageSize bounds the total reassembled size of a message
	// across all its fragments (spec.md §4.5). Zero means
	// DefaultMaxMessageSize.
	MaxMessageSize int

	// AdditionalHeaders are merged into the Upgrade request. Headers
	// that collide with a mandated handshake header are ignored.
	AdditionalHeaders http.Header

	// Extensions are tried in order during negotiation and form the
	// ExtensionPipeline for the lifetime of the connection.
	Extensions []ClientExtension

	// CloseTimeout bounds how long the writer waits for the peer's
	// close echo before forcing the transport closed. Zero means
	// DefaultCloseTimeout.
	CloseTimeout time.Duration

	// AutoPing configures the state machine's ping bookkeeping (period
	// and ping rate limit). Conn does not schedule automatic pings, so
	// enabling it sends no pings by itself.
	AutoPing AutoPingSetup

	// ValidateUTF8 enables UTF-8 validation of reassembled text
	// messages.
	ValidateUTF8 bool

	// SNIHostname overrides the hostname presented in TLS SNI. It is
	// informational only here: TLS setup itself happens outside this
	// module (spec.md §1), and nothing in this package reads it; a caller
	// wiring up the net.Conn/tls.Conn can read it back off Config.
	SNIHostname string

	// Proxy configures an HTTP CONNECT proxy to tunnel through before
	// the Upgrade request. Nil disables proxying unless
	// ReadProxyEnvironmentVariables resolves one from the environment.
	Proxy *ProxyConfig

	// ReadProxyEnvironmentVariables honors http_proxy/https_proxy/
	// no_proxy the way spec.md §6 and §9 describe.
	ReadProxyEnvironmentVariables bool

	// NKeySeed, if set, authenticates the handshake by signing the
	// Sec-WebSocket-Key nonce and attaching the signature as
	// X-Nkey-Signature (see SPEC_FULL.md §4's domain stack). Optional;
	// most servers never look at this header.
	NKeySeed string

	// Logger receives diagnostic lines. Defaults to a no-op logger.
	Logger Logger
}

const (
	DefaultMaxFrameSize   = 16384
	DefaultMaxMessageSize = 16 * 1024 * 1024
	DefaultCloseTimeout   = 15 * time.Second
)

// withDefaults returns a copy of cfg with zero-valued fields replaced by
// their documented defaults, the way the teacher's validateWebsocketOptions
// / wsSetOriginOptions apply defaults before the listener starts.
func (cfg Config) withDefaults() Config {
	out := cfg
	if out.MaxFrameSize <= 0 {
		out.MaxFrameSize = DefaultMaxFrameSize
	}
	if out.MaxMessageSize <= 0 {
		out.MaxMessageSize = DefaultMaxMessageSize
	}
	if out.CloseTimeout <= 0 {
		out.CloseTimeout = DefaultCloseTimeout
	}
	if out.AdditionalHeaders == nil {
		out.AdditionalHeaders = http.Header{}
	}
	if out.Logger == nil {
		out.Logger = nopLogger{}
	}
	return out
}
