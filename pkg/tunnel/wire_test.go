package tunnel

import (
	"bytes"
	"testing"
)

func TestAxHeaderEncodeDecode(t *testing.T) {
	h := axHeader{Ns: 7, PNs: 3}
	for i := range h.DHRPub {
		h.DHRPub[i] = byte(i)
	}

	encoded := h.encode()
	if len(encoded) != axHeaderSize {
		t.Fatalf("encode length = %d, want %d", len(encoded), axHeaderSize)
	}

	decoded, err := decodeAxHeader(encoded)
	if err != nil {
		t.Fatalf("decodeAxHeader: %v", err)
	}
	if decoded != h {
		t.Fatalf("decoded = %+v, want %+v", decoded, h)
	}
}

func TestDecodeAxHeaderTooShort(t *testing.T) {
	if _, err := decodeAxHeader(make([]byte, axHeaderSize-1)); err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestFrameEncodeDecode(t *testing.T) {
	f := Frame{
		HeaderCipher:  bytes.Repeat([]byte{0xAB}, axHeaderSize),
		PayloadCipher: []byte("ciphertext payload"),
	}
	for i := range f.MAC {
		f.MAC[i] = byte(i)
	}

	wire := f.Encode()
	decoded, err := DecodeFrame(wire)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if decoded.MAC != f.MAC {
		t.Fatalf("MAC = %v, want %v", decoded.MAC, f.MAC)
	}
	if !bytes.Equal(decoded.HeaderCipher, f.HeaderCipher) {
		t.Fatalf("HeaderCipher mismatch")
	}
	if !bytes.Equal(decoded.PayloadCipher, f.PayloadCipher) {
		t.Fatalf("PayloadCipher mismatch")
	}
}

func TestDecodeFrameTooShort(t *testing.T) {
	if _, err := DecodeFrame(make([]byte, frameMinSize-1)); err != ErrFrameTooShort {
		t.Fatalf("err = %v, want %v", err, ErrFrameTooShort)
	}
}
