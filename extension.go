package websocket

import "github.com/pkg/errors"

// ExtensionOffer is one parsed comma-separated entry of a
// Sec-WebSocket-Extensions header: a name plus its ';'-separated
// parameters. ParamOrder preserves the order parameters appeared in, since
// some extensions (permessage-deflate) treat the presence-without-value
// form differently from an explicit value.
type ExtensionOffer struct {
	Name       string
	Params     map[string]string
	ParamOrder []string
}

// HasParam reports whether name was present in the offer, even with an
// empty/flag value (e.g. "client_max_window_bits" with no "=value").
func (o ExtensionOffer) HasParam(name string) bool {
	_, ok := o.Params[name]
	return ok
}

// ClientExtension is the pluggable unit of the ExtensionPipeline (spec.md
// §4.3, §9's "sealed set of variants with a shared transform operation, or
// a small dyn-dispatched interface"). permessage-deflate is the one
// concrete negotiated extension. Non-negotiated extensions also implement
// the unexported nonNegotiated interface with alwaysOn() returning true,
// and negotiateExtensions activates them without calling Negotiate; only
// types inside this package can implement nonNegotiated.
type ClientExtension interface {
	// Name is the extension token, e.g. "permessage-deflate".
	Name() string

	// Offer returns the Sec-WebSocket-Extensions value to send in the
	// client request, or "" to not offer this extension at all.
	Offer() string

	// Negotiate is called once per handshake with every parsed offer
	// entry whose Name matches this extension's Name(), in the order
	// they appeared in the response. The first call that returns
	// accepted=true wins; Negotiate must not mutate shared state when
	// accepted is false.
	Negotiate(entry ExtensionOffer) (accepted bool, err error)

	// RSVBits returns the RSV bits (rsv1Bit|rsv2Bit|rsv3Bit) this
	// extension owns once negotiated. Frames with an RSV bit set that no
	// extension owns are a protocol error.
	RSVBits() byte

	// ProcessReceivedFrame is invoked in pipeline order as a frame
	// arrives from the wire, after unmasking. It may clear the RSV bits
	// it owns and rewrite Payload.
	ProcessReceivedFrame(f *Frame, firstFrameOfMessage bool) error

	// ProcessOutgoingFrame is invoked in reverse pipeline order before a
	// frame is masked and written. It may set the RSV bits it owns and
	// rewrite Payload.
	ProcessOutgoingFrame(f *Frame, firstFrameOfMessage, lastFrameOfMessage bool) error

	// Shutdown releases any resources (e.g. deflate windows) held by
	// this extension. Called once when the ConnectionCore is released.
	Shutdown()
}

// ExtensionPipeline is the ordered list of negotiated (and always-on
// non-negotiated) extensions bound to one connection.
type ExtensionPipeline struct {
	exts []ClientExtension
}

// NewExtensionPipeline builds a pipeline from the extensions that survived
// negotiation, in the order they were configured.
func NewExtensionPipeline(exts []ClientExtension) *ExtensionPipeline {
	return &ExtensionPipeline{exts: exts}
}

// ownedRSVBits is the bitwise-OR of every RSV bit claimed by a negotiated
// extension; used to detect a protocol error when an unclaimed RSV bit is
// set on an inbound frame.
func (p *ExtensionPipeline) ownedRSVBits() byte {
	var bits byte
	for _, e := range p.exts {
		bits |= e.RSVBits()
	}
	return bits
}

// rsvByte packs a frame's three RSV bits into the same bit positions used
// by ownedRSVBits/RSVBits, for a single masked comparison.
func rsvByte(f *Frame) byte {
	var b byte
	if f.RSV1 {
		b |= rsv1Bit
	}
	if f.RSV2 {
		b |= rsv2Bit
	}
	if f.RSV3 {
		b |= rsv3Bit
	}
	return b
}

// ProcessReceived runs every extension's ProcessReceivedFrame in pipeline
// order, first rejecting any RSV bit no extension owns.
func (p *ExtensionPipeline) ProcessReceived(f *Frame, firstFrameOfMessage bool) error {
	if rsvByte(f)&^p.ownedRSVBits() != 0 {
		return newProtocolError("RSV bit set without a negotiated extension")
	}
	for _, e := range p.exts {
		if err := e.ProcessReceivedFrame(f, firstFrameOfMessage); err != nil {
			return err
		}
	}
	return nil
}

// ProcessOutgoing runs every extension's ProcessOutgoingFrame in reverse
// pipeline order (the first configured extension gets final say on RSV
// bits, matching spec.md §4.3).
func (p *ExtensionPipeline) ProcessOutgoing(f *Frame, firstFrameOfMessage, lastFrameOfMessage bool) error {
	for i := len(p.exts) - 1; i >= 0; i-- {
		if err := p.exts[i].ProcessOutgoingFrame(f, firstFrameOfMessage, lastFrameOfMessage); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown releases resources held by every extension in the pipeline.
func (p *ExtensionPipeline) Shutdown() {
	for _, e := range p.exts {
		e.Shutdown()
	}
}

// negotiateExtensions drives handshake extension selection (spec.md
// §4.1): for each registered extension builder, the first matching parsed
// response entry drives construction of the active extension.
// Non-negotiated extensions (those implementing nonNegotiated with
// alwaysOn() returning true) are always included regardless of the
// response.
var defaultNegotiationCache = newNegotiationCache()

func negotiateExtensions(builders []ClientExtension, responseHeaderValues []string) ([]ClientExtension, error) {
	offers, err := defaultNegotiationCache.parsedOffers(responseHeaderValues)
	if err != nil {
		return nil, err
	}

	var active []ClientExtension
	for _, builder := range builders {
		nn, isNonNegotiated := builder.(nonNegotiated)
		if isNonNegotiated && nn.alwaysOn() {
			active = append(active, builder)
			continue
		}
		accepted := false
		for _, entry := range offers {
			if entry.Name != builder.Name() {
				continue
			}
			ok, err := builder.Negotiate(entry)
			if err != nil {
				return nil, errors.Wrapf(err, "negotiating extension %q", builder.Name())
			}
			if ok {
				accepted = true
				break
			}
		}
		if accepted {
			active = append(active, builder)
		}
	}
	return active, nil
}

// nonNegotiated marks a ClientExtension that is always instantiated
// irrespective of what the server's Sec-WebSocket-Extensions response
// contains, per spec.md §4.1's "Non-negotiated extensions are always
// instantiated."
type nonNegotiated interface {
	alwaysOn() bool
}
