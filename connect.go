package websocket

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/url"

	"github.com/pkg/errors"
)

// Handler receives the established connection. Connect returns once
// handler returns, after driving the close handshake described on Conn.Close.
type Handler func(ctx context.Context, conn *Conn)

// Dialer opens the underlying byte stream. Callers supply one that wraps
// net.Dial/tls.Dial with whatever timeout and DNS policy they need; TCP/TLS
// setup is out of scope for this module (spec.md §1).
type Dialer func(ctx context.Context, network, addr string) (net.Conn, error)

// defaultDialer is a plain net.Dialer, used when Connect is called without
// a caller-supplied Dialer.
func defaultDialer(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, network, addr)
}

// Connect performs the full client bootstrap of spec.md §4.8: resolve an
// optional proxy, dial (via dial, or a plain TCP dialer if nil), run the
// HTTP CONNECT tunnel if a proxy applies, perform the WebSocket Upgrade
// handshake, and hand the resulting Conn to handler. It returns once
// handler returns and the close handshake has settled, or if any step
// before that fails.
func Connect(ctx context.Context, rawURL string, cfg Config, dial Dialer, handler Handler) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &HandshakeError{Reason: ReasonInvalidURL, Cause: err}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return &HandshakeError{Reason: ReasonInvalidURL, Cause: errors.Errorf("unsupported scheme %q", u.Scheme)}
	}

	cfgv := cfg.withDefaults()
	if dial == nil {
		dial = defaultDialer
	}

	hostPort := u.Host
	if u.Port() == "" {
		if u.Scheme == "wss" {
			hostPort = net.JoinHostPort(u.Hostname(), "443")
		} else {
			hostPort = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	proxyURL := resolveProxy(u, &cfgv)

	var dialAddr = hostPort
	if proxyURL != "" {
		if pu, err := url.Parse(proxyURL); err == nil && pu.Host != "" {
			dialAddr = pu.Host
		}
	}

	conn, err := dial(ctx, "tcp", dialAddr)
	if err != nil {
		return &HandshakeError{Reason: ReasonRemoteConnectionClosed, Cause: err}
	}

	if proxyURL != "" {
		pc := cfgv.Proxy
		if pc == nil {
			pc = &ProxyConfig{}
		}
		hs := NewHTTPProxyHandshake()
		if err := hs.Run(conn, hostPort, pc); err != nil {
			conn.Close()
			return err
		}
	}

	if err := runHandshakeAndServe(conn, u, &cfgv, handler, ctx); err != nil {
		conn.Close()
		return err
	}
	return nil
}

// runHandshakeAndServe is split out from Connect so the proxy-tunneled conn
// and a direct conn share the same post-dial path: build the Upgrade
// request, validate the response, construct the Conn and hand it to the
// handler.
func runHandshakeAndServe(conn net.Conn, u *url.URL, cfg *Config, handler Handler, parentCtx context.Context) error {
	hb, err := NewHandshakeBuilder(u, cfg)
	if err != nil {
		return err
	}
	if err := hb.Build(conn); err != nil {
		return err
	}

	br := bufio.NewReader(conn)
	extensions, err := hb.Validate(br)
	if err != nil {
		return err
	}
	if br.Buffered() > 0 {
		// The server is not allowed to pipeline frame bytes ahead of the
		// 101 response terminator; surface whatever it buffered as the
		// first read instead of silently dropping it.
		conn = &prebufferedConn{Conn: conn, pre: mustDrain(br)}
	}

	wsConn := newConn(conn, extensions, cfg)

	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()
	go wsConn.run(ctx)

	handler(ctx, wsConn)

	if wsConn.sm.State() == StateOpen {
		wsConn.Close()
	} else {
		wsConn.Shutdown()
	}
	return nil
}

// resolveProxy picks the explicit cfg.Proxy.URL if set, otherwise consults
// the environment when cfg.ReadProxyEnvironmentVariables is set, per
// spec.md §6.
func resolveProxy(u *url.URL, cfg *Config) string {
	if cfg.Proxy != nil && cfg.Proxy.URL != "" {
		return cfg.Proxy.URL
	}
	if cfg.ReadProxyEnvironmentVariables {
		return resolveProxyURL(u)
	}
	return ""
}

func mustDrain(br *bufio.Reader) []byte {
	n := br.Buffered()
	b := make([]byte, n)
	io.ReadFull(br, b)
	return b
}

// prebufferedConn prepends pre to the first reads off the wrapped conn,
// for the rare case the server's 101 response and TCP segment containing
// the first WebSocket frame arrived together.
type prebufferedConn struct {
	net.Conn
	pre []byte
}

func (p *prebufferedConn) Read(b []byte) (int, error) {
	if len(p.pre) > 0 {
		n := copy(b, p.pre)
		p.pre = p.pre[n:]
		return n, nil
	}
	return p.Conn.Read(b)
}
