package mux

import "testing"

func TestDetectMsgWaitsForHeader(t *testing.T) {
	r := newRing(64)
	r.write([]byte{1, 2}) // only 2 bytes, need 4 for a header
	_, ok, err := detectMsg(r)
	if err != nil || ok {
		t.Fatalf("detectMsg with partial header: ok=%v err=%v", ok, err)
	}
}

func TestDetectMsgWaitsForBody(t *testing.T) {
	r := newRing(64)
	var buf [chanWindowSize]byte
	msg := encodeChannelWindow(buf[:], 2, 10)
	r.write(msg[:headerSize+2]) // full header, body only partially present
	_, ok, err := detectMsg(r)
	if err != nil || ok {
		t.Fatalf("detectMsg with partial body: ok=%v err=%v", ok, err)
	}
}

func TestDetectMsgComplete(t *testing.T) {
	r := newRing(64)
	var buf [chanWindowSize]byte
	msg := encodeChannelWindow(buf[:], 3, 99)
	r.write(msg)

	h, ok, err := detectMsg(r)
	if err != nil || !ok {
		t.Fatalf("detectMsg: ok=%v err=%v", ok, err)
	}
	if h.typ != MsgChannelWindow || int(h.size) != chanWindowSize {
		t.Fatalf("unexpected header %+v", h)
	}
	// detectMsg must not consume.
	if r.size() != chanWindowSize {
		t.Fatalf("detectMsg consumed bytes: size=%d", r.size())
	}
}

func TestDetectMsgImpossibleSize(t *testing.T) {
	r := newRing(8) // tiny ring: capacity 8
	var hb [headerSize]byte
	putHeader(hb[:], MsgChannelData, 1000) // declares a message far bigger than the ring
	r.write(hb[:])

	_, _, err := detectMsg(r)
	if err == nil {
		t.Fatalf("expected protocol error for impossible message size")
	}
	if _, ok := err.(*ProtocolError); !ok {
		t.Fatalf("expected *ProtocolError, got %T", err)
	}
}

func TestReadCmdMsgSizeMismatch(t *testing.T) {
	r := newRing(64)
	var buf [chanCloseSize]byte
	msg := encodeChannelClose(buf[:], 5)
	r.write(msg)

	h, ok, err := detectMsg(r)
	if err != nil || !ok {
		t.Fatalf("detectMsg: ok=%v err=%v", ok, err)
	}

	var out [chanWindowSize]byte // wrong expected size on purpose
	if err := readCmdMsg(r, h, chanWindowSize, out[:]); err == nil {
		t.Fatalf("expected size-mismatch error")
	}
}

func TestHandshakeRoundTrip(t *testing.T) {
	msg := EncodeHandshake([]byte(`{"cmd":"/bin/sh"}`))
	payload, err := DecodeHandshake(msg)
	if err != nil {
		t.Fatalf("DecodeHandshake: %v", err)
	}
	if string(payload) != `{"cmd":"/bin/sh"}` {
		t.Fatalf("payload = %q", payload)
	}
}

func TestDecodeHandshakeRejectsWrongType(t *testing.T) {
	var buf [chanCloseSize]byte
	msg := encodeChannelClose(buf[:], 2)
	if _, err := DecodeHandshake(msg); err == nil {
		t.Fatalf("expected error decoding non-handshake message as handshake")
	}
}

func TestEncodeChannelDataHeader(t *testing.T) {
	var buf [chanDataHdrSize]byte
	h := encodeChannelDataHeader(buf[:], 7, chanDataHdrSize+3)
	hdr := decodeHeader(h)
	if hdr.typ != MsgChannelData || hdr.size != chanDataHdrSize+3 {
		t.Fatalf("unexpected header %+v", hdr)
	}
}
