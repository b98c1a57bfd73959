package websocket

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// proxyState names the states of the HTTP CONNECT handshake FSM in
// spec.md §4.6.
type proxyState int

const (
	proxyInitialized proxyState = iota
	proxyConnectSent
	proxyHeadReceived
	proxyCompleted
	proxyFailed
)

// HTTPProxyHandshake drives an HTTP CONNECT tunnel through a proxy before
// the WebSocket Upgrade request is sent on the same byte stream.
type HTTPProxyHandshake struct {
	state   proxyState
	failure error
}

// NewHTTPProxyHandshake returns a handshake in the initialized state.
func NewHTTPProxyHandshake() *HTTPProxyHandshake {
	return &HTTPProxyHandshake{state: proxyInitialized}
}

// Run performs the full CONNECT exchange over conn for targetHostPort,
// honoring cfg's headers and deadline. On success conn is ready for the
// WebSocket Upgrade request; on failure the returned error is a
// *HandshakeError whose Reason is ReasonProxyAuthenticationRequired,
// ReasonInvalidProxyResponseHead, ReasonInvalidProxyResponse,
// ReasonProxyHandshakeTimeout or ReasonRemoteConnectionClosed.
func (h *HTTPProxyHandshake) Run(conn net.Conn, targetHostPort string, cfg *ProxyConfig) error {
	deadline := cfg.HandshakeTimeout
	if deadline <= 0 {
		deadline = 15 * time.Second
	}
	if err := conn.SetDeadline(time.Now().Add(deadline)); err != nil {
		return h.fail(&HandshakeError{Reason: ReasonProxyHandshakeTimeout, Cause: err})
	}
	defer conn.SetDeadline(time.Time{})

	if err := h.sendConnect(conn, targetHostPort, cfg); err != nil {
		return err
	}
	if err := h.readResponse(conn); err != nil {
		return err
	}
	h.state = proxyCompleted
	return nil
}

func (h *HTTPProxyHandshake) sendConnect(conn net.Conn, targetHostPort string, cfg *ProxyConfig) error {
	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\n", targetHostPort)
	for name, values := range cfg.Headers {
		for _, v := range values {
			req += fmt.Sprintf("%s: %s\r\n", name, v)
		}
	}
	req += "\r\n"

	if _, err := conn.Write([]byte(req)); err != nil {
		return h.fail(&HandshakeError{Reason: ReasonRemoteConnectionClosed, Cause: err})
	}
	h.state = proxyConnectSent
	return nil
}

func (h *HTTPProxyHandshake) readResponse(conn net.Conn) error {
	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		return h.fail(&HandshakeError{Reason: ReasonRemoteConnectionClosed, Cause: err})
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusProxyAuthRequired:
		return h.fail(&HandshakeError{Reason: ReasonProxyAuthenticationRequired,
			Cause: errors.Errorf("proxy returned %d", resp.StatusCode)})
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return h.fail(&HandshakeError{Reason: ReasonInvalidProxyResponseHead,
			Cause: errors.Errorf("proxy returned %d %s", resp.StatusCode, resp.Status)})
	}
	h.state = proxyHeadReceived

	if br.Buffered() > 0 {
		return h.fail(&HandshakeError{Reason: ReasonInvalidProxyResponse,
			Cause: errors.New("proxy sent body bytes before tunnel was established")})
	}
	return nil
}

func (h *HTTPProxyHandshake) fail(err *HandshakeError) error {
	// An I/O error caused by the handshake deadline is reported as a
	// timeout, whichever step it interrupted.
	if ne, ok := err.Cause.(net.Error); ok && ne.Timeout() {
		err.Reason = ReasonProxyHandshakeTimeout
	}
	h.state = proxyFailed
	h.failure = err
	return err
}
