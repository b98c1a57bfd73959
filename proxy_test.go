package websocket

import (
	"net"
	"strings"
	"testing"
	"time"
)

func serveConnectResponse(t *testing.T, server net.Conn, status string, extra string) {
	t.Helper()
	go func() {
		buf := make([]byte, 4096)
		n, err := server.Read(buf)
		if err != nil {
			return
		}
		req := string(buf[:n])
		if !strings.HasPrefix(req, "CONNECT ") {
			return
		}
		server.Write([]byte("HTTP/1.1 " + status + "\r\n" + extra + "\r\n"))
	}()
}

func TestHTTPProxyHandshakeSuccess(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	serveConnectResponse(t, server, "200 Connection Established", "")

	h := NewHTTPProxyHandshake()
	err := h.Run(client, "example.com:443", &ProxyConfig{HandshakeTimeout: time.Second})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.state != proxyCompleted {
		t.Fatalf("expected proxyCompleted, got %v", h.state)
	}
}

func TestHTTPProxyHandshakeAuthRequired(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	serveConnectResponse(t, server, "407 Proxy Authentication Required", "Proxy-Authenticate: Basic\r\n")

	h := NewHTTPProxyHandshake()
	err := h.Run(client, "example.com:443", &ProxyConfig{HandshakeTimeout: time.Second})
	if err == nil {
		t.Fatal("expected error for 407 response")
	}
	herr, ok := err.(*HandshakeError)
	if !ok || herr.Reason != ReasonProxyAuthenticationRequired {
		t.Fatalf("expected ReasonProxyAuthenticationRequired, got %v", err)
	}
}

func TestHTTPProxyHandshakeBadStatus(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	serveConnectResponse(t, server, "400 Bad Request", "")

	h := NewHTTPProxyHandshake()
	err := h.Run(client, "example.com:443", &ProxyConfig{HandshakeTimeout: time.Second})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	herr, ok := err.(*HandshakeError)
	if !ok || herr.Reason != ReasonInvalidProxyResponseHead {
		t.Fatalf("expected ReasonInvalidProxyResponseHead, got %v", err)
	}
}

func TestHTTPProxyHandshakeSendsTargetAndHeaders(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	received := make(chan string, 1)
	go func() {
		buf := make([]byte, 4096)
		n, err := server.Read(buf)
		if err != nil {
			return
		}
		received <- string(buf[:n])
		server.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n"))
	}()

	h := NewHTTPProxyHandshake()
	cfg := &ProxyConfig{
		HandshakeTimeout: time.Second,
		Headers:          map[string][]string{"Proxy-Authorization": {"Basic dGVzdDp0ZXN0"}},
	}
	if err := h.Run(client, "echo.websocket.org:443", cfg); err != nil {
		t.Fatalf("Run: %v", err)
	}

	req := <-received
	if !strings.HasPrefix(req, "CONNECT echo.websocket.org:443 HTTP/1.1\r\n") {
		t.Fatalf("unexpected CONNECT request line: %q", req)
	}
	if !strings.Contains(req, "Proxy-Authorization: Basic dGVzdDp0ZXN0\r\n") {
		t.Fatalf("expected Proxy-Authorization header in request: %q", req)
	}
}
