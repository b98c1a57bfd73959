package websocket

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// CloseCode is the 16-bit status carried in a close frame's payload.
// From https://tools.ietf.org/html/rfc6455#section-7.4.1
type CloseCode uint16

const (
	CloseNormalClosure          CloseCode = 1000
	CloseGoingAway              CloseCode = 1001
	CloseProtocolError          CloseCode = 1002
	CloseUnacceptableData       CloseCode = 1003
	CloseNoStatusReceived       CloseCode = 1005 // never sent, observed only
	CloseAbnormalClosure        CloseCode = 1006 // never sent, observed only
	CloseDataInconsistent       CloseCode = 1007
	ClosePolicyViolation        CloseCode = 1008
	CloseMessageTooLarge        CloseCode = 1009
	CloseExtensionFailed        CloseCode = 1010
	CloseUnexpectedServerError  CloseCode = 1011
	CloseTLSHandshake           CloseCode = 1015 // never sent, observed only
)

// sendable reports whether code is legal to put on the wire in an outgoing
// close frame. Codes below 1000 and the reserved {1004,1005,1006,1015} set
// are observation-only per RFC 6455 §7.4.1.
func (c CloseCode) sendable() bool {
	switch c {
	case 1004, CloseNoStatusReceived, CloseAbnormalClosure, CloseTLSHandshake:
		return false
	}
	return c >= 1000
}

// CloseFrame is the decoded payload of a close control frame.
type CloseFrame struct {
	Code   CloseCode
	Reason string
}

// EncodeCloseFrame builds the payload for an outgoing close frame: a
// 2-byte big-endian code followed by an optional UTF-8 reason. Passing an
// unsendable code is a programming error in the caller (the state machine
// never does this); it returns an error instead of panicking.
func EncodeCloseFrame(cf CloseFrame) ([]byte, error) {
	if !cf.Code.sendable() {
		return nil, errors.Errorf("close code %d must not be sent on the wire", cf.Code)
	}
	if !utf8.ValidString(cf.Reason) {
		return nil, errors.New("close reason is not valid UTF-8")
	}
	// A close frame is a control frame: reason must fit within
	// maxControlPayload - 2 bytes for the code.
	reason := cf.Reason
	if len(reason) > maxControlPayload-2 {
		reason = reason[:maxControlPayload-2]
	}
	buf := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(buf, uint16(cf.Code))
	copy(buf[2:], reason)
	return buf, nil
}

// DecodeCloseFrame parses an inbound close frame payload. An empty payload
// decodes to CloseNoStatusReceived per RFC 6455 §7.1.5.
func DecodeCloseFrame(payload []byte) (CloseFrame, error) {
	if len(payload) == 0 {
		return CloseFrame{Code: CloseNoStatusReceived}, nil
	}
	if len(payload) == 1 {
		return CloseFrame{}, newProtocolError("close frame payload of 1 byte")
	}
	code := CloseCode(binary.BigEndian.Uint16(payload))
	reason := string(payload[2:])
	if reason != "" && !utf8.ValidString(reason) {
		return CloseFrame{}, &CloseError{Code: CloseDataInconsistent, Reason: "invalid utf-8 in close reason"}
	}
	if code < 1000 {
		return CloseFrame{}, newProtocolError(fmt.Sprintf("close code %d out of range", code))
	}
	return CloseFrame{Code: code, Reason: reason}, nil
}
