package transport

import (
	"io"
	"net"
	"testing"
	"time"
)

func TestBridgeCopiesBothDirections(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	b, err := NewBridge(serverConn)
	if err != nil {
		t.Fatalf("NewBridge: %v", err)
	}
	defer b.FromPeer.Close()
	defer b.ToPeer.Close()

	go func() {
		clientConn.Write([]byte("from peer"))
	}()
	got := make([]byte, len("from peer"))
	if _, err := io.ReadFull(b.FromPeer, got); err != nil {
		t.Fatalf("read FromPeer: %v", err)
	}
	if string(got) != "from peer" {
		t.Fatalf("FromPeer = %q", got)
	}

	readDone := make(chan []byte, 1)
	go func() {
		buf := make([]byte, len("to peer"))
		io.ReadFull(clientConn, buf)
		readDone <- buf
	}()
	if _, err := b.ToPeer.Write([]byte("to peer")); err != nil {
		t.Fatalf("write ToPeer: %v", err)
	}
	select {
	case buf := <-readDone:
		if string(buf) != "to peer" {
			t.Fatalf("peer received %q", buf)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for ToPeer bytes to reach the peer")
	}
}
