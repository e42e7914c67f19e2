package mux

import (
	"os"
	"testing"
	"time"
)

// newSpecialChannel builds a special (FromPeer/ToPeer) channel. FromPeer
// channels are never window-gated, so they get an unbounded window.
func newSpecialChannel(t *testing.T, dir Direction, fd *os.File) *Channel {
	t.Helper()
	window := uint32(0)
	if dir == FromFD {
		window = ^uint32(0)
	}
	c, err := NewChannel(dir, int(fd.Fd()), 65536, window)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	return c
}

// TestRoundTripOverLoopbackTransport wires two sessions back to back over
// a pair of os.Pipe transports and drives one real FromFD -> ToFD channel
// end to end: bytes written to the source fd must arrive, in order, at
// the sink fd, and the sink fd must observe EOF once the source closes.
func TestRoundTripOverLoopbackTransport(t *testing.T) {
	// transport: A writes on aToB's write end, B reads on its read end, and vice versa.
	aToB_r, aToB_w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	bToA_r, bToA_w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}

	srcR, srcW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	sinkR, sinkW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}

	const initialWindow = 1 << 20

	srcChan, err := NewChannel(FromFD, int(srcR.Fd()), 65536, initialWindow)
	if err != nil {
		t.Fatal(err)
	}
	sessionA := NewSession([]*Channel{
		newSpecialChannel(t, FromFD, bToA_r),
		newSpecialChannel(t, ToFD, aToB_w),
		srcChan,
	}, Config{MaxOutgoingMsg: 4096})

	sinkChan, err := NewChannel(ToFD, int(sinkW.Fd()), 65536, 0)
	if err != nil {
		t.Fatal(err)
	}
	sessionB := NewSession([]*Channel{
		newSpecialChannel(t, FromFD, aToB_r),
		newSpecialChannel(t, ToFD, bToA_w),
		sinkChan,
	}, Config{MaxOutgoingMsg: 4096})

	payload := []byte("the quick brown fox jumps over the lazy dog")
	go func() {
		srcW.Write(payload)
		srcW.Close()
	}()

	doneA := make(chan error, 1)
	doneB := make(chan error, 1)
	go func() { doneA <- sessionA.Run() }()
	go func() { doneB <- sessionB.Run() }()

	got := make([]byte, 0, len(payload))
	readDone := make(chan struct{})
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := sinkR.Read(buf)
			if n > 0 {
				got = append(got, buf[:n]...)
			}
			if err != nil {
				close(readDone)
				return
			}
		}
	}()

	timeout := time.After(5 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case err := <-doneA:
			if err != nil {
				t.Fatalf("session A: %v", err)
			}
			doneA = nil
		case err := <-doneB:
			if err != nil {
				t.Fatalf("session B: %v", err)
			}
			doneB = nil
		case <-timeout:
			t.Fatalf("timed out waiting for sessions to finish")
		}
	}

	select {
	case <-readDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for sink EOF")
	}

	if string(got) != string(payload) {
		t.Fatalf("round trip mismatch: got %q want %q", got, payload)
	}
}
