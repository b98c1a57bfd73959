package websocket

import "testing"

func TestExtensionPipelineRejectsUnclaimedRSVBit(t *testing.T) {
	p := NewExtensionPipeline(nil)
	f := &Frame{Fin: true, Opcode: OpBinary, RSV1: true, Payload: []byte("x")}
	err := p.ProcessReceived(f, true)
	if err == nil {
		t.Fatal("expected protocol error for RSV1 with no negotiated extension")
	}
}

func TestExtensionPipelineAllowsOwnedRSVBit(t *testing.T) {
	deflate := NewPermessageDeflate(DefaultPermessageDeflateParams())
	deflate.(*permessageDeflate).negotiated = true

	p := NewExtensionPipeline([]ClientExtension{deflate})
	payload := []byte("hello")

	f := &Frame{Fin: true, Opcode: OpText, Payload: payload}
	if err := p.ProcessOutgoing(f, true, true); err != nil {
		t.Fatalf("ProcessOutgoing: %v", err)
	}
	if !f.RSV1 {
		t.Fatal("expected RSV1 set by negotiated permessage-deflate")
	}
	if err := p.ProcessReceived(f, true); err != nil {
		t.Fatalf("ProcessReceived: %v", err)
	}
	if string(f.Payload) != "hello" {
		t.Fatalf("got %q, want %q", f.Payload, "hello")
	}
}

func TestNegotiateExtensionsFirstMatchWins(t *testing.T) {
	ext := NewPermessageDeflate(DefaultPermessageDeflateParams())
	active, err := negotiateExtensions([]ClientExtension{ext}, []string{
		"permessage-deflate; server_no_context_takeover",
	})
	if err != nil {
		t.Fatalf("negotiateExtensions: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active extension, got %d", len(active))
	}
}

func TestNegotiateExtensionsNoMatchingOffer(t *testing.T) {
	ext := NewPermessageDeflate(DefaultPermessageDeflateParams())
	active, err := negotiateExtensions([]ClientExtension{ext}, []string{"x-other-extension"})
	if err != nil {
		t.Fatalf("negotiateExtensions: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active extensions, got %d", len(active))
	}
}
