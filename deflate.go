package websocket

import (
	"bytes"
	"compress/flate"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// deflateTrailer is the 4-byte sequence RFC 7692 §7.2.2 says a compressor
// must strip from the end of its output, and a decompressor must re-append
// before inflating.
var deflateTrailer = []byte{0x00, 0x00, 0xFF, 0xFF}

// PermessageDeflateParams holds the negotiated parameters for one
// connection's permessage-deflate extension, per spec.md §3.
type PermessageDeflateParams struct {
	ClientMaxWindowBits     int // 9..15
	ServerMaxWindowBits     int // 9..15
	ClientNoContextTakeover bool
	ServerNoContextTakeover bool
	MaxDecompressedFrameSize int
}

// DefaultPermessageDeflateParams returns the parameters this module offers
// by default: full 32KB windows, context takeover enabled on both sides,
// and a generous decompression ceiling.
func DefaultPermessageDeflateParams() PermessageDeflateParams {
	return PermessageDeflateParams{
		ClientMaxWindowBits:      15,
		ServerMaxWindowBits:      15,
		ClientNoContextTakeover:  false,
		ServerNoContextTakeover:  false,
		MaxDecompressedFrameSize: 16 * 1024 * 1024,
	}
}

// permessageDeflate implements ClientExtension for RFC 7692. It owns
// RSV1. Note: compress/flate always operates over its full 32KB sliding
// window; the *_max_window_bits parameters are negotiated and reported for
// protocol compliance but do not shrink the actual DEFLATE window, which
// matches the pragmatic behavior of most Go WebSocket implementations
// (compress/flate has no API to bound the window below 32KB).
type permessageDeflate struct {
	want PermessageDeflateParams

	mu         sync.Mutex
	negotiated bool
	params     PermessageDeflateParams

	compressor   *flate.Writer
	decompressor io.ReadCloser

	// messageCompressed tracks whether the message currently being
	// reassembled on read was compressed, since only the first frame
	// carries RSV1.
	messageCompressed bool
	decodeBuf         []byte
}

// NewPermessageDeflate constructs the extension with the offer parameters
// this client proposes. Pass DefaultPermessageDeflateParams() for the
// common case.
func NewPermessageDeflate(want PermessageDeflateParams) ClientExtension {
	return &permessageDeflate{want: want}
}

func (d *permessageDeflate) Name() string { return "permessage-deflate" }

func (d *permessageDeflate) Offer() string {
	s := "permessage-deflate"
	if d.want.ClientMaxWindowBits > 0 && d.want.ClientMaxWindowBits < 15 {
		s += "; client_max_window_bits=" + itoa(d.want.ClientMaxWindowBits)
	} else {
		s += "; client_max_window_bits"
	}
	if d.want.ClientNoContextTakeover {
		s += "; client_no_context_takeover"
	}
	return s
}

func (d *permessageDeflate) Negotiate(entry ExtensionOffer) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.negotiated {
		// First accepted entry wins; subsequent Negotiate calls for an
		// already-accepted extension are ignored, per spec.md §4.1.
		return false, nil
	}

	p := d.want
	if v, ok := entry.Params["server_max_window_bits"]; ok {
		bits, err := parseWindowBits(v)
		if err != nil {
			return false, err
		}
		p.ServerMaxWindowBits = bits
	}
	if v, ok := entry.Params["client_max_window_bits"]; ok && v != "" {
		bits, err := parseWindowBits(v)
		if err != nil {
			return false, err
		}
		p.ClientMaxWindowBits = bits
	}
	if entry.HasParam("server_no_context_takeover") {
		p.ServerNoContextTakeover = true
	}
	if entry.HasParam("client_no_context_takeover") {
		p.ClientNoContextTakeover = true
	}

	d.params = p
	d.negotiated = true
	return true, nil
}

func parseWindowBits(v string) (int, error) {
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return 0, errors.Errorf("invalid window bits value %q", v)
		}
		n = n*10 + int(c-'0')
	}
	if n < 9 || n > 15 {
		return 0, errors.Errorf("window bits %d out of range [9,15]", n)
	}
	return n, nil
}

func (d *permessageDeflate) RSVBits() byte { return rsv1Bit }

// ProcessReceivedFrame implements the 5-step inflate procedure of spec.md
// §4.3.1. Control frames are never compressed and pass through untouched;
// RSV1 on a continuation frame is a protocol error.
func (d *permessageDeflate) ProcessReceivedFrame(f *Frame, firstFrameOfMessage bool) error {
	if f.Opcode.IsControl() {
		return nil
	}
	if f.Opcode == OpContinuation {
		if f.RSV1 {
			return newProtocolError("RSV1 set on continuation frame")
		}
		if d.messageCompressed {
			d.decodeBuf = append(d.decodeBuf, f.Payload...)
			if f.Fin {
				return d.finishInflate(f)
			}
			f.Payload = nil
		}
		return nil
	}

	// First frame of a new message.
	d.messageCompressed = f.RSV1
	if !f.RSV1 {
		return nil
	}
	d.decodeBuf = append([]byte(nil), f.Payload...)
	f.RSV1 = false
	if f.Fin {
		return d.finishInflate(f)
	}
	f.Payload = nil
	return nil
}

func (d *permessageDeflate) finishInflate(f *Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// After the re-appended trailer, an empty final stored block ends the
	// DEFLATE stream, so the reader reports io.EOF rather than
	// io.ErrUnexpectedEOF once the message is fully inflated.
	src := append(d.decodeBuf, deflateTrailer...)
	src = append(src, 0x01, 0x00, 0x00, 0xFF, 0xFF)
	br := bytes.NewReader(src)
	if d.decompressor == nil {
		d.decompressor = flate.NewReader(br)
	} else {
		d.decompressor.(flate.Resetter).Reset(br, nil)
	}
	out, err := io.ReadAll(io.LimitReader(d.decompressor, int64(d.limit())+1))
	if err != nil {
		return &CloseError{Code: CloseExtensionFailed, Reason: "permessage-deflate inflate failed: " + err.Error()}
	}
	if len(out) > d.limit() {
		return &CloseError{Code: CloseMessageTooLarge, Reason: "decompressed frame exceeds configured maximum"}
	}
	if d.params.ServerNoContextTakeover {
		d.decompressor = nil
	}
	d.decodeBuf = nil
	f.Payload = out
	f.RSV1 = false
	return nil
}

func (d *permessageDeflate) limit() int {
	if d.params.MaxDecompressedFrameSize > 0 {
		return d.params.MaxDecompressedFrameSize
	}
	return DefaultPermessageDeflateParams().MaxDecompressedFrameSize
}

// ProcessOutgoingFrame compresses the full message payload on the first
// frame and strips the RFC 7692 trailer, setting RSV1 only on that first
// frame (spec.md §4.3.1's "On send" procedure). Because this module
// fragments only the already-compressed stream (spec.md §4.8), by the time
// this is called the caller has already decided message boundaries: it
// must invoke this once per *message* with the whole payload in the first
// call (firstFrameOfMessage=true), not per wire fragment.
func (d *permessageDeflate) ProcessOutgoingFrame(f *Frame, firstFrameOfMessage, lastFrameOfMessage bool) error {
	if f.Opcode.IsControl() || !firstFrameOfMessage {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var buf bytes.Buffer
	if d.compressor == nil {
		w, err := flate.NewWriter(&buf, flate.BestSpeed)
		if err != nil {
			return errors.Wrap(err, "creating deflate writer")
		}
		d.compressor = w
	} else {
		d.compressor.Reset(&buf)
	}
	if _, err := d.compressor.Write(f.Payload); err != nil {
		return errors.Wrap(err, "compressing message")
	}
	if err := d.compressor.Flush(); err != nil {
		return errors.Wrap(err, "flushing deflate writer")
	}

	out := buf.Bytes()
	out = bytes.TrimSuffix(out, deflateTrailer)
	f.Payload = out
	f.RSV1 = true

	if d.params.ClientNoContextTakeover {
		d.compressor = nil
	}
	return nil
}

func (d *permessageDeflate) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.compressor = nil
	d.decompressor = nil
	d.decodeBuf = nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b [4]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}
