package websocket

import (
	"bytes"
	"testing"
)

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	for _, test := range []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"short", []byte("hello")},
		{"exactly125", bytes.Repeat([]byte("a"), 125)},
		{"needs16bit", bytes.Repeat([]byte("b"), 126)},
		{"needs16bitMax", bytes.Repeat([]byte("c"), 65535)},
		{"needs64bit", bytes.Repeat([]byte("d"), 65536)},
	} {
		t.Run(test.name, func(t *testing.T) {
			key, err := NewMaskingKey()
			if err != nil {
				t.Fatalf("NewMaskingKey: %v", err)
			}
			f := &Frame{Fin: true, Opcode: OpBinary, Masked: true, MaskKey: key, Payload: append([]byte(nil), test.payload...)}
			enc, err := f.Encode()
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			got, err := NewFrameReader(bytes.NewReader(enc), 0).ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			if !bytes.Equal(got.Payload, test.payload) {
				t.Fatalf("round trip mismatch: got %v want %v", got.Payload, test.payload)
			}
			if got.Opcode != OpBinary || !got.Fin {
				t.Fatalf("unexpected header: %+v", got)
			}
		})
	}
}

func TestFrameReaderRejectsFragmentedControlFrame(t *testing.T) {
	b := []byte{0x09, 0x00} // FIN=0, opcode=ping, len=0
	_, err := NewFrameReader(bytes.NewReader(b), 0).ReadFrame()
	if err == nil {
		t.Fatal("expected error for fragmented control frame")
	}
	cerr, ok := err.(*CloseError)
	if !ok || cerr.Code != CloseProtocolError {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestFrameReaderRejectsOversizeControlFrame(t *testing.T) {
	header := []byte{0x89, 126, 0x00, 0x7E} // FIN+ping, len=126 (extended), exceeds 125
	_, err := NewFrameReader(bytes.NewReader(header), 0).ReadFrame()
	if err == nil {
		t.Fatal("expected error for oversize control frame")
	}
}

func TestFrameReaderEnforcesMaxFrameSize(t *testing.T) {
	key, _ := NewMaskingKey()
	f := &Frame{Fin: true, Opcode: OpBinary, Masked: true, MaskKey: key, Payload: bytes.Repeat([]byte("x"), 1000)}
	enc, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	_, err = NewFrameReader(bytes.NewReader(enc), 100).ReadFrame()
	if err == nil {
		t.Fatal("expected error exceeding maxFrame")
	}
	cerr, ok := err.(*CloseError)
	if !ok || cerr.Code != CloseMessageTooLarge {
		t.Fatalf("expected CloseMessageTooLarge, got %v", err)
	}
}

func TestFrameReaderRejectsUnknownOpcode(t *testing.T) {
	b := []byte{0x83, 0x00} // FIN=1, opcode=3 (reserved), len=0
	_, err := NewFrameReader(bytes.NewReader(b), 0).ReadFrame()
	if err == nil {
		t.Fatal("expected error for unknown opcode")
	}
}

func TestOpCodeIsControl(t *testing.T) {
	for _, op := range []OpCode{OpClose, OpPing, OpPong} {
		if !op.IsControl() {
			t.Errorf("%v should be a control opcode", op)
		}
	}
	for _, op := range []OpCode{OpContinuation, OpText, OpBinary} {
		if op.IsControl() {
			t.Errorf("%v should not be a control opcode", op)
		}
	}
}
