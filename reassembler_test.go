package websocket

import (
	"bytes"
	"testing"
)

func TestMessageReassemblerSingleFrame(t *testing.T) {
	r := NewMessageReassembler(0, true)
	msg, done, err := r.AddFrame(&Frame{Fin: true, Opcode: OpText, Payload: []byte("hello")})
	if err != nil {
		t.Fatalf("AddFrame: %v", err)
	}
	if !done {
		t.Fatal("expected done=true for a FIN frame")
	}
	if msg.Kind != MessageText || msg.Text() != "hello" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestMessageReassemblerMultipleContinuations(t *testing.T) {
	r := NewMessageReassembler(0, true)

	_, done, err := r.AddFrame(&Frame{Fin: false, Opcode: OpBinary, Payload: []byte("a")})
	if err != nil || done {
		t.Fatalf("first frame: done=%v err=%v", done, err)
	}
	_, done, err = r.AddFrame(&Frame{Fin: false, Opcode: OpContinuation, Payload: []byte("b")})
	if err != nil || done {
		t.Fatalf("second frame: done=%v err=%v", done, err)
	}
	msg, done, err := r.AddFrame(&Frame{Fin: true, Opcode: OpContinuation, Payload: []byte("c")})
	if err != nil {
		t.Fatalf("final frame: %v", err)
	}
	if !done || !bytes.Equal(msg.Data, []byte("abc")) {
		t.Fatalf("unexpected final message: done=%v data=%q", done, msg.Data)
	}
	if msg.Kind != MessageBinary {
		t.Fatalf("expected MessageBinary, got %v", msg.Kind)
	}
}

func TestMessageReassemblerContinuationWithoutStart(t *testing.T) {
	r := NewMessageReassembler(0, false)
	_, _, err := r.AddFrame(&Frame{Fin: true, Opcode: OpContinuation, Payload: []byte("x")})
	if err == nil {
		t.Fatal("expected error for continuation without an open sequence")
	}
}

func TestMessageReassemblerNewMessageBeforeFin(t *testing.T) {
	r := NewMessageReassembler(0, false)
	_, _, err := r.AddFrame(&Frame{Fin: false, Opcode: OpText, Payload: []byte("a")})
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	_, _, err = r.AddFrame(&Frame{Fin: true, Opcode: OpBinary, Payload: []byte("b")})
	if err == nil {
		t.Fatal("expected error starting a new message before the previous one finished")
	}
}

func TestMessageReassemblerEnforcesMaxSize(t *testing.T) {
	r := NewMessageReassembler(4, false)
	_, _, err := r.AddFrame(&Frame{Fin: true, Opcode: OpBinary, Payload: []byte("12345")})
	if err == nil {
		t.Fatal("expected error exceeding max size")
	}
	cerr, ok := err.(*CloseError)
	if !ok || cerr.Code != CloseMessageTooLarge {
		t.Fatalf("expected CloseMessageTooLarge, got %v", err)
	}
}

func TestMessageReassemblerValidatesUTF8(t *testing.T) {
	r := NewMessageReassembler(0, true)
	_, _, err := r.AddFrame(&Frame{Fin: true, Opcode: OpText, Payload: []byte{0xFF, 0xFE}})
	if err == nil {
		t.Fatal("expected error for invalid UTF-8 in text message")
	}
}

func TestMessageReassemblerSkipsUTF8ValidationForBinary(t *testing.T) {
	r := NewMessageReassembler(0, true)
	_, _, err := r.AddFrame(&Frame{Fin: true, Opcode: OpBinary, Payload: []byte{0xFF, 0xFE}})
	if err != nil {
		t.Fatalf("binary message should not be UTF-8 validated: %v", err)
	}
}
