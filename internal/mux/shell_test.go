package mux

import (
	"os"
	"testing"
)

func TestNewShellSessionServerDirections(t *testing.T) {
	bridgeIn, _, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	_, bridgeOut, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}

	stdinR, _, _ := os.Pipe()
	_, stdoutW, _ := os.Pipe()
	_, stderrW, _ := os.Pipe()
	_, exitW, _ := os.Pipe()

	fds := ShellFDs{Stdin: int(stdinR.Fd()), Stdout: int(stdoutW.Fd()), Stderr: int(stderrW.Fd()), Exit: int(exitW.Fd())}

	// Server: stdin is written TO the child (ToFD), stdout/stderr/exit read FROM the child (FromFD).
	serverFromFD := func(ch int) bool { return ch != ChStdin }

	s, err := NewShellSession(int(bridgeIn.Fd()), int(bridgeOut.Fd()), fds, serverFromFD, Config{MaxOutgoingMsg: 4096}, 1<<20)
	if err != nil {
		t.Fatalf("NewShellSession: %v", err)
	}
	if s.NumChannels() != NumShellChannels {
		t.Fatalf("NumChannels() = %d, want %d", s.NumChannels(), NumShellChannels)
	}
	if s.Channel(ChStdin).dir != ToFD {
		t.Fatalf("stdin channel direction = %v, want ToFD", s.Channel(ChStdin).dir)
	}
	if s.Channel(ChStdout).dir != FromFD || s.Channel(ChStderr).dir != FromFD || s.Channel(ChExit).dir != FromFD {
		t.Fatalf("stdout/stderr/exit must be FromFD on the server")
	}
}
