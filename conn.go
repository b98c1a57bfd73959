package websocket

import (
	"bufio"
	"context"
	"io"
	"sync"
	"time"

	"github.com/nats-io/nuid"
	"github.com/pkg/errors"
)

// Conn binds the frame codec, extension pipeline, state machine and
// message reassembler to an already-upgraded duplex byte stream, per
// spec.md §4.7. It exposes a lazy inbound message stream and an outbound
// writer to user code; ConnectionCore's responsibilities live here.
type Conn struct {
	id string

	rwc    io.ReadWriteCloser
	reader *FrameReader
	writer *bufio.Writer

	ext *ExtensionPipeline
	sm  *StateMachine
	re  *MessageReassembler

	cfg *Config
	log Logger

	writeMu sync.Mutex
	closed  bool

	inbox chan Message
	errCh chan error

	closeTimeout time.Duration
}

// newConn constructs a Conn around an already-upgraded rwc. extensions is
// the result of handshake negotiation.
func newConn(rwc io.ReadWriteCloser, extensions []ClientExtension, cfg *Config) *Conn {
	c := &Conn{
		id:           nuid.Next(),
		rwc:          rwc,
		reader:       NewFrameReader(rwc, cfg.MaxFrameSize),
		writer:       bufio.NewWriter(rwc),
		ext:          NewExtensionPipeline(extensions),
		sm:           NewStateMachine(cfg.AutoPing),
		re:           NewMessageReassembler(cfg.MaxMessageSize, cfg.ValidateUTF8),
		cfg:          cfg,
		log:          cfg.Logger,
		inbox:        make(chan Message, 16),
		errCh:        make(chan error, 1),
		closeTimeout: cfg.CloseTimeout,
	}
	return c
}

// ID returns the per-connection correlation id used in log lines.
func (c *Conn) ID() string { return c.id }

// Inbound returns the single-consumer stream of whole messages. It closes
// when the connection reaches Closed (spec.md §3's "ownership/lifetime"
// rule).
func (c *Conn) Inbound() <-chan Message { return c.inbox }

// run is the reader task of spec.md §4.7/§5: it parses frames, routes
// control frames to the state machine and data frames to the reassembler,
// and emits whole messages on c.inbox until the connection closes.
func (c *Conn) run(ctx context.Context) {
	defer close(c.inbox)

	for {
		select {
		case <-ctx.Done():
			c.errCh <- ctx.Err()
			return
		default:
		}

		f, err := c.reader.ReadFrame()
		if err != nil {
			c.handleReadError(err)
			return
		}

		firstOfMessage := f.Opcode != OpContinuation
		if err := c.ext.ProcessReceived(f, firstOfMessage); err != nil {
			c.handleProtocolError(err)
			return
		}

		if f.Masked {
			c.handleProtocolError(newProtocolError("received masked frame from server"))
			return
		}

		if f.Opcode.IsControl() {
			if c.handleControlFrame(f) {
				return
			}
			continue
		}

		// A continuation frame that an extension fully buffered (e.g.
		// compressed, not yet FIN) carries no payload to hand to the
		// reassembler until the final frame arrives.
		if f.Opcode == OpContinuation && f.Payload == nil && !f.Fin {
			continue
		}

		msg, done, err := c.re.AddFrame(f)
		if err != nil {
			c.handleProtocolError(err)
			return
		}
		if done {
			select {
			case c.inbox <- msg:
			case <-ctx.Done():
				return
			}
		}

		if c.sm.State() == StateClosed {
			return
		}
	}
}

// handleControlFrame routes close/ping/pong to the state machine and
// executes the resulting action. It returns true if the reader loop
// should stop (the connection reached Closed).
func (c *Conn) handleControlFrame(f *Frame) bool {
	switch f.Opcode {
	case OpClose:
		cf, err := DecodeCloseFrame(f.Payload)
		if err != nil {
			c.handleProtocolError(err)
			return true
		}
		action := c.sm.ReceivedClose(cf)
		c.execute(action)
		return c.sm.State() == StateClosed
	case OpPing:
		action := c.sm.ReceivedPing(f.Payload)
		c.execute(action)
	case OpPong:
		c.sm.ReceivedPong(f.Payload)
	}
	return false
}

func (c *Conn) handleReadError(err error) {
	if cerr, ok := err.(*CloseError); ok {
		c.execute(c.sm.ForceClose(cerr.Code, cerr.Reason))
		c.errCh <- cerr
		return
	}
	// Transport error: remote closed without a close frame, or I/O
	// failure. No close frame is emitted. The wrapped error is stored on
	// c.errCh only: no exported method reads that channel, and Connect
	// returns nil once the handler has returned, so the error is not
	// surfaced to the caller.
	c.errCh <- errors.Wrap(err, "reading from transport")
}

func (c *Conn) handleProtocolError(err error) {
	cerr, ok := err.(*CloseError)
	if !ok {
		cerr = newProtocolError(err.Error())
	}
	action := c.sm.ForceClose(cerr.Code, cerr.Reason)
	c.execute(action)
	c.errCh <- cerr
}

// execute carries out an Action by writing the corresponding frame. It is
// safe to call concurrently with user writes; writeMu serializes access to
// the underlying writer (spec.md §5's "per-connection mutex guards the
// state machine" fallback, generalized to guard the writer too).
func (c *Conn) execute(a Action) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.executeLocked(a)
}

// executeLocked is execute's body for callers that already hold writeMu
// (Close drives the local-initiated close this way, since it must hold the
// lock across sm.Close and the resulting write).
func (c *Conn) executeLocked(a Action) {
	switch a.Kind {
	case ActionSendClose:
		payload, err := EncodeCloseFrame(a.CloseFrame)
		if err != nil {
			// Encoding can only fail for an unsendable code/invalid
			// UTF-8 reason; fall back to a bare normal closure rather
			// than silently dropping the close frame.
			payload, _ = EncodeCloseFrame(CloseFrame{Code: CloseNormalClosure})
		}
		c.writeFrameLocked(OpClose, payload, true, true)
	case ActionSendPing:
		c.writeFrameLocked(OpPing, a.Payload, true, true)
	case ActionSendPong:
		c.writeFrameLocked(OpPong, a.Payload, true, true)
	case ActionCloseConnection:
		c.writeFrameLocked(OpClose, mustEncodeClose(a.CloseFrame), true, true)
		c.rwc.Close()
	}
}

func mustEncodeClose(cf CloseFrame) []byte {
	b, err := EncodeCloseFrame(cf)
	if err != nil {
		b, _ = EncodeCloseFrame(CloseFrame{Code: CloseNormalClosure})
	}
	return b
}

// WriteText sends a text message. Rejected once a local close has been
// initiated, per spec.md §5's ordering guarantee.
func (c *Conn) WriteText(s string) error {
	return c.writeMessage(OpText, []byte(s))
}

// WriteBinary sends a binary message.
func (c *Conn) WriteBinary(b []byte) error {
	return c.writeMessage(OpBinary, b)
}

func (c *Conn) writeMessage(op OpCode, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.sm.State() != StateOpen {
		return errors.New("websocket: write after close initiated")
	}
	return c.writeFrameLocked(op, payload, true, true)
}

// writeFrameLocked builds, extension-encodes, masks and writes a single
// complete (possibly outbound-fragmented, spec.md §4.8) message. Caller
// holds writeMu.
func (c *Conn) writeFrameLocked(op OpCode, payload []byte, first, final bool) error {
	f := &Frame{Fin: final, Opcode: op, Masked: true, Payload: payload}

	if !op.IsControl() {
		if err := c.ext.ProcessOutgoing(f, first, final); err != nil {
			return errors.Wrap(err, "extension encode")
		}
	}

	if key, err := NewMaskingKey(); err != nil {
		return err
	} else {
		f.MaskKey = key
	}

	if err := c.writeFragmented(f); err != nil {
		return err
	}
	return c.writer.Flush()
}

// writeFragmented splits f.Payload across multiple wire frames if it
// exceeds cfg.MaxFrameSize, per spec.md §4.8: fragment boundaries respect
// the already extension-encoded payload, so permessage-deflate's whole-
// message compression still happens exactly once, upstream of this split.
func (c *Conn) writeFragmented(f *Frame) error {
	maxFrame := c.cfg.MaxFrameSize
	if maxFrame <= 0 || len(f.Payload) <= maxFrame {
		enc, err := f.Encode()
		if err != nil {
			return err
		}
		_, err = c.writer.Write(enc)
		return errors.Wrap(err, "writing frame")
	}

	remaining := f.Payload
	opcode := f.Opcode
	for len(remaining) > 0 {
		chunk := remaining
		final := true
		if len(chunk) > maxFrame {
			chunk = chunk[:maxFrame]
			final = false
		}
		remaining = remaining[len(chunk):]

		part := &Frame{
			Fin:     final,
			RSV1:    f.RSV1 && opcode == f.Opcode,
			Opcode:  opcode,
			Masked:  true,
			MaskKey: f.MaskKey,
			Payload: chunk,
		}
		enc, err := part.Encode()
		if err != nil {
			return err
		}
		if _, err := c.writer.Write(enc); err != nil {
			return errors.Wrap(err, "writing frame fragment")
		}
		opcode = OpContinuation
	}
	return nil
}

// Close initiates the local close handshake (spec.md §4.4/§4.7): it sends
// a close frame with CloseNormalClosure and waits up to cfg.CloseTimeout
// for the peer's echo, after which it force-closes the transport and
// returns whatever close frame was actually observed.
func (c *Conn) Close() *CloseFrame {
	c.writeMu.Lock()
	action := c.sm.Close(CloseNormalClosure, "")
	c.executeLocked(action)
	c.writeMu.Unlock()

	timer := time.NewTimer(c.closeTimeout)
	defer timer.Stop()
	// Discard inbound messages until the reader task closes c.inbox or the
	// timeout fires, whichever comes first.
wait:
	for {
		select {
		case _, ok := <-c.inbox:
			if !ok {
				break wait
			}
		case <-timer.C:
			break wait
		}
	}
	c.rwc.Close()
	return c.sm.ObservedClose()
}

// Shutdown releases the extension pipeline (flushing/freeing deflate
// windows) and closes the transport, per spec.md §5's cancellation model.
func (c *Conn) Shutdown() {
	c.ext.Shutdown()
	c.rwc.Close()
}
