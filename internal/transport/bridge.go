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

package transport

import (
	"io"
	"os"
)

// Bridge adapts a transport connection (KCP or tcpraw, themselves
// optionally wrapped in a cipher, a QPP port and a compressor) onto a
// pair of real file descriptors. None of those wrappers are backed by
// an fd the mux core could poll directly, so Bridge spawns the same
// kind of copying goroutines Pipe already uses, this time copying
// into and out of an os.Pipe on each side. The core then binds its two
// special channels to FromPeer/ToPeer exactly as it would any other fd.
type Bridge struct {
	FromPeer *os.File // read end: bytes arriving from the peer
	ToPeer   *os.File // write end: bytes heading to the peer

	done chan error
}

// NewBridge starts the bridge. Close the returned Bridge's FromPeer and
// ToPeer once the owning session exits; Wait then reports the first
// non-EOF copying error, if any.
func NewBridge(conn io.ReadWriteCloser) (*Bridge, error) {
	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		inR.Close()
		inW.Close()
		return nil, err
	}

	b := &Bridge{FromPeer: inR, ToPeer: outW, done: make(chan error, 2)}

	go func() {
		_, err := Copy(inW, conn)
		inW.Close()
		b.done <- err
	}()
	go func() {
		_, err := Copy(conn, outR)
		outR.Close()
		b.done <- err
	}()

	return b, nil
}

// Wait blocks for both copying goroutines to finish and returns the
// first error that isn't io.EOF.
func (b *Bridge) Wait() error {
	var first error
	for i := 0; i < 2; i++ {
		if err := <-b.done; err != nil && err != io.EOF && first == nil {
			first = err
		}
	}
	return first
}
