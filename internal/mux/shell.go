// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package mux

// Fixed channel indices for the remote-shell channel set. The two special channels
// FromPeer/ToPeer occupy 0 and 1; the four shell channels start right
// after NrSpecialCh.
const (
	ChStdin  = NrSpecialCh + 1 // 2
	ChStdout = NrSpecialCh + 2 // 3
	ChStderr = NrSpecialCh + 3 // 4
	ChExit   = NrSpecialCh + 4 // 5

	NumShellChannels = ChExit + 1 // 6
)

// ShellFDs names the local fds a shell-channel session binds, from
// either the client's or the server's point of view. Which direction
// each is opened in (FROM_FD vs TO_FD) is the caller's job, since it's
// opposite on the two ends.
type ShellFDs struct {
	Stdin  int
	Stdout int
	Stderr int
	Exit   int
}

// defaultRingCapacity is the ring size of every channel in a shell
// session, the special channels included.
const defaultRingCapacity = 65536

// NewShellSession wires FromPeer/ToPeer plus the four shell channels
// into a Session. fromFD reports whether a given shell channel index
// reads from its local fd (true) or writes to it (false) on this end;
// server and client pass the inverse of each other here, matching the
// mirrored direction each end uses for the same channel index.
func NewShellSession(bridgeFromPeer, bridgeToPeer int, fds ShellFDs, fromFD func(ch int) bool, cfg Config, initialWindow uint32) (*Session, error) {
	chans := make([]*Channel, NumShellChannels)

	var err error
	chans[FromPeer], err = NewChannel(FromFD, bridgeFromPeer, defaultRingCapacity, ^uint32(0))
	if err != nil {
		return nil, err
	}
	chans[ToPeer], err = NewChannel(ToFD, bridgeToPeer, defaultRingCapacity, 0)
	if err != nil {
		return nil, err
	}

	shellFd := func(ch int) int {
		switch ch {
		case ChStdin:
			return fds.Stdin
		case ChStdout:
			return fds.Stdout
		case ChStderr:
			return fds.Stderr
		default:
			return fds.Exit
		}
	}

	for _, ch := range []int{ChStdin, ChStdout, ChStderr, ChExit} {
		dir := ToFD
		window := uint32(0)
		if fromFD(ch) {
			dir = FromFD
			window = initialWindow
		}
		chans[ch], err = NewChannel(dir, shellFd(ch), defaultRingCapacity, window)
		if err != nil {
			return nil, err
		}
	}

	return NewSession(chans, cfg), nil
}
