// Package websocket implements an RFC 6455 WebSocket client, including the
// permessage-deflate extension (RFC 7692).
//
// The package covers the protocol core only: frame encoding/decoding, the
// open/closing/closed state machine, message reassembly and UTF-8
// validation, extension negotiation, and the client handshake. TCP/TLS
// connection establishment, DNS resolution and the outer event loop are the
// caller's responsibility; Connect takes a Dialer returning a net.Conn and
// falls back to a plain TCP dialer when none is given.
package websocket
