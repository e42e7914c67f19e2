package mux

import (
	"testing"
)

// newTestSession builds a 3-channel session (special x2 + one user
// channel) with no real fds bound, for exercising pump logic directly.
// The special channels are marked open with a placeholder fd (-1), since
// they stay open for the life of a session; the user channel starts with
// no fd, i.e. closed locally, unless a test marks it open itself.
func newTestSession(dir Direction, maxOutgoingMsg uint32) (*Session, *Channel) {
	fromPeer := newChannel(FromFD, -1, 256, ^uint32(0))
	toPeer := newChannel(ToFD, -1, 256, 0)
	fromPeer.fd, fromPeer.hasFD = -1, true
	toPeer.fd, toPeer.hasFD = -1, true
	user := newChannel(dir, -1, 256, 64)
	s := NewSession([]*Channel{fromPeer, toPeer, user}, Config{MaxOutgoingMsg: maxOutgoingMsg})
	return s, user
}

func drainToPeer(s *Session) []byte {
	rb := s.Channel(ToPeer).rb
	out := make([]byte, rb.size())
	rb.copyOut(out, len(out))
	rb.noteRemoved(len(out))
	return out
}

// Scenario 1: single FROM_FD channel, 4 bytes "ping", then
// the source fd goes away. Expect DATA{ch=2,"ping"} then CLOSE{ch=2}.
func TestPumpEmitsDataThenEOF(t *testing.T) {
	s, user := newTestSession(FromFD, 4096)
	user.fd, user.hasFD = -1, true // source fd still open
	user.write([]byte("ping"))

	if err := s.pump(); err != nil {
		t.Fatalf("pump: %v", err)
	}
	out := drainToPeer(s)

	h := decodeHeader(out)
	if h.typ != MsgChannelData {
		t.Fatalf("first message type = %d, want DATA", h.typ)
	}
	payload := out[chanDataHdrSize:h.size]
	if string(payload) != "ping" {
		t.Fatalf("payload = %q, want ping", payload)
	}

	// Source is gone now (simulates fd EOF): channel has no fd, empty rb.
	user.close()
	if err := s.pump(); err != nil {
		t.Fatalf("pump: %v", err)
	}
	out = drainToPeer(s)
	h = decodeHeader(out)
	if h.typ != MsgChannelClose {
		t.Fatalf("second message type = %d, want CLOSE", h.typ)
	}
	if !user.sentEOF {
		t.Fatalf("sentEOF not set")
	}

	// A further pump must not re-emit CLOSE.
	if err := s.pump(); err != nil {
		t.Fatalf("pump: %v", err)
	}
	if out := drainToPeer(s); len(out) != 0 {
		t.Fatalf("unexpected extra bytes after CLOSE: %v", out)
	}
}

// Scenario 2: window = 3 gates how much a FromFD channel's
// poll(POLLIN) will read off its fd (see TestChannelPollReadHonorsWindow
// for the read-side gate itself); here we check that a grant of 7 adds to
// the exhausted window (3 + 7 = 10) without reporting overflow. The
// overflow path is covered by TestAddWindowSaturates and
// TestWindowOverflowIsFatal.
func TestWindowGrantLiftsGate(t *testing.T) {
	_, user := newTestSession(FromFD, 4096)
	user.window = 3

	if overflow := user.addWindow(7); overflow {
		t.Fatalf("unexpected overflow")
	}
	if user.window != 10 {
		t.Fatalf("window = %d, want 10", user.window)
	}
}

func TestWindowOverflowIsFatal(t *testing.T) {
	s, user := newTestSession(FromFD, 4096)
	user.fd, user.hasFD = -1, true // grants to a locally closed channel are ignored
	user.window = ^uint32(0) - 2

	var buf [chanWindowSize]byte
	msg := encodeChannelWindow(buf[:], 2, 5)
	s.Channel(FromPeer).rb.write(msg)

	err := s.pump()
	if err == nil {
		t.Fatalf("expected fatal protocol error on window overflow")
	}
	if _, ok := err.(*ProtocolError); !ok {
		t.Fatalf("expected *ProtocolError, got %T: %v", err, err)
	}
}

func TestUnknownMessageTypeConsumesAndFails(t *testing.T) {
	s, _ := newTestSession(FromFD, 4096)
	var hb [headerSize]byte
	putHeader(hb[:], 99, headerSize+2)
	s.Channel(FromPeer).rb.write(hb[:], []byte{0xAA, 0xBB})

	err := s.pump()
	if err == nil {
		t.Fatalf("expected fatal error on unknown message type")
	}
	if s.Channel(FromPeer).rb.size() != 0 {
		t.Fatalf("unknown message not fully consumed: %d bytes left", s.Channel(FromPeer).rb.size())
	}
}

func TestChannelDataDroppedWhenLocallyClosed(t *testing.T) {
	s, user := newTestSession(ToFD, 4096)
	user.close() // channel already closed locally

	payload := []byte("discarded")
	var hdr [chanDataHdrSize]byte
	h := encodeChannelDataHeader(hdr[:], 2, uint16(chanDataHdrSize+len(payload)))
	s.Channel(FromPeer).rb.write(h, payload)

	if err := s.pump(); err != nil {
		t.Fatalf("pump: %v", err)
	}
	if s.Channel(FromPeer).rb.size() != 0 {
		t.Fatalf("payload not consumed on drop")
	}
	if user.rb.size() != 0 {
		t.Fatalf("payload should have been dropped, not buffered")
	}
}

func TestChannelDataWindowDesyncIsFatal(t *testing.T) {
	s, user := newTestSession(ToFD, 4096)
	user.fd, user.hasFD = -1, true // DATA to a locally closed channel is dropped
	// Shrink room artificially below what's about to be sent.
	user.rb = newRing(8)
	payload := make([]byte, 100)
	var hdr [chanDataHdrSize]byte
	h := encodeChannelDataHeader(hdr[:], 2, uint16(chanDataHdrSize+len(payload)))
	s.Channel(FromPeer).rb = newRing(512)
	s.Channel(FromPeer).rb.write(h, payload)

	err := s.pump()
	if err == nil {
		t.Fatalf("expected window desync protocol error")
	}
}

func TestZeroByteDataFrameIsNoop(t *testing.T) {
	s, user := newTestSession(ToFD, 4096)
	user.fd, user.hasFD = -1, true // sink fd still open
	var hdr [chanDataHdrSize]byte
	h := encodeChannelDataHeader(hdr[:], 2, chanDataHdrSize)
	s.Channel(FromPeer).rb.write(h)

	if err := s.pump(); err != nil {
		t.Fatalf("pump: %v", err)
	}
	if user.rb.size() != 0 {
		t.Fatalf("zero-byte payload should leave rb empty, got %d", user.rb.size())
	}
	if user.sentEOF {
		t.Fatalf("zero-byte DATA must not be confused with EOF")
	}
}

func TestMaxOutgoingMsgEqualToHeaderBlocksData(t *testing.T) {
	s, user := newTestSession(FromFD, headerSize) // smaller than any real message
	user.write([]byte("x"))

	if err := s.pump(); err != nil {
		t.Fatalf("pump: %v", err)
	}
	if out := drainToPeer(s); len(out) != 0 {
		t.Fatalf("expected no DATA emitted when maxOutgoingMsg == header size, got %d bytes", len(out))
	}
}

func TestChannelCloseIgnoresOutOfRange(t *testing.T) {
	s, _ := newTestSession(FromFD, 4096)
	var buf [chanCloseSize]byte
	msg := encodeChannelClose(buf[:], 999)
	s.Channel(FromPeer).rb.write(msg)

	if err := s.pump(); err != nil {
		t.Fatalf("out-of-range close should be tolerated, got %v", err)
	}
}
