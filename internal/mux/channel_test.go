package mux

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func TestChannelPollReadHonorsWindow(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer pw.Close()

	c, err := NewChannel(FromFD, int(pr.Fd()), 64, 3)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := pw.Write([]byte("abcdefghij")); err != nil {
		t.Fatal(err)
	}

	_, events, want := c.requestPoll()
	if !want || events&unix.POLLIN == 0 {
		t.Fatalf("expected POLLIN request, got events=%d want=%v", events, want)
	}

	c.poll(unix.POLLIN)
	if c.rb.size() != 3 {
		t.Fatalf("rb.size() = %d, want 3 (gated by window)", c.rb.size())
	}
	if c.window != 0 {
		t.Fatalf("window = %d, want 0", c.window)
	}

	// No more room to read until window is granted, even though the pipe
	// still has bytes buffered.
	_, _, want = c.requestPoll()
	if want {
		t.Fatalf("requestPoll should not want more reads with window exhausted")
	}

	if c.addWindow(7) {
		t.Fatalf("unexpected overflow")
	}
	c.poll(unix.POLLIN)
	if c.rb.size() != 10 {
		t.Fatalf("rb.size() after window grant = %d, want 10", c.rb.size())
	}
}

func TestChannelPollReadEOF(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewChannel(FromFD, int(pr.Fd()), 64, 1024)
	if err != nil {
		t.Fatal(err)
	}

	pw.Write([]byte("x"))
	pw.Close()

	c.poll(unix.POLLIN) // reads "x"
	if c.rb.size() != 1 {
		t.Fatalf("rb.size() = %d, want 1", c.rb.size())
	}
	if !c.hasFD {
		t.Fatalf("fd released too early")
	}

	c.poll(unix.POLLIN) // reads EOF (n==0)
	if c.hasFD {
		t.Fatalf("fd should be released on EOF")
	}
}

func TestChannelPollWriteDrains(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer pr.Close()

	c, err := NewChannel(ToFD, int(pw.Fd()), 64, 0)
	if err != nil {
		t.Fatal(err)
	}
	c.write([]byte("hello"))

	_, events, want := c.requestPoll()
	if !want || events&unix.POLLOUT == 0 {
		t.Fatalf("expected POLLOUT request")
	}

	c.poll(unix.POLLOUT)
	if c.rb.size() != 0 {
		t.Fatalf("rb.size() after write = %d, want 0", c.rb.size())
	}
	if c.bytesWritten != 5 {
		t.Fatalf("bytesWritten = %d, want 5", c.bytesWritten)
	}

	got := make([]byte, 5)
	if _, err := pr.Read(got); err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("read %q, want hello", got)
	}
}

func TestAddWindowSaturates(t *testing.T) {
	c := newChannel(FromFD, -1, 64, 0)
	c.window = ^uint32(0) - 1
	if overflow := c.addWindow(5); !overflow {
		t.Fatalf("expected overflow")
	}
	// window must be left at its pre-overflow value, never silently wrapped.
	if c.window != ^uint32(0)-1 {
		t.Fatalf("window mutated on overflow: %d", c.window)
	}
}
