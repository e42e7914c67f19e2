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

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Direction says which way bytes flow between the local fd and the peer.
type Direction int

const (
	// FromFD reads the local fd and frames the bytes outward as DATA.
	FromFD Direction = iota
	// ToFD receives DATA from the peer and writes it to the local fd.
	ToFD
)

func (d Direction) String() string {
	if d == FromFD {
		return "from-fd"
	}
	return "to-fd"
}

// Channel is one endpoint of the multiplexer: a direction, an optional
// bound file descriptor, a ring buffer and the bookkeeping needed for
// the pump.
type Channel struct {
	dir Direction

	fd    int
	hasFD bool

	rb *ring

	// window is peer-authorized send credit; meaningful for FromFD only.
	window uint32

	// bytesWritten accumulates bytes written to the fd since the last
	// WINDOW advertisement we sent; meaningful for ToFD only.
	bytesWritten uint32

	sentEOF      bool
	pendingClose bool
}

// newChannel constructs a channel bound to fd (or unbound if fd < 0),
// with a ring of the given capacity. initialWindow only matters for
// FromFD channels.
func newChannel(dir Direction, fd int, ringCapacity int, initialWindow uint32) *Channel {
	c := &Channel{
		dir: dir,
		rb:  newRing(ringCapacity),
	}
	if fd >= 0 {
		c.fd = fd
		c.hasFD = true
	}
	if dir == FromFD {
		c.window = initialWindow
	}
	return c
}

// NewChannel is the public constructor: it puts fd in non-blocking mode
// before handing back a channel
// ready to be polled. Pass fd < 0 for a channel with no local fd bound.
func NewChannel(dir Direction, fd int, ringCapacity int, initialWindow uint32) (*Channel, error) {
	if fd >= 0 {
		if err := setNonblocking(fd); err != nil {
			return nil, err
		}
	}
	return newChannel(dir, fd, ringCapacity, initialWindow), nil
}

// RequestClose asks a ToFD channel to close its fd once rb drains; for a FromFD channel whose source
// side has already gone away externally, call close directly instead.
func (c *Channel) RequestClose() {
	c.pendingClose = true
}

// requestPoll reports which events this channel wants from poll: POLLIN
// while there's room in the ring and window credit left for a FromFD
// channel, POLLOUT while
// there are bytes queued to write for a ToFD channel.
func (c *Channel) requestPoll() (fd int32, events int16, want bool) {
	if !c.hasFD {
		return 0, 0, false
	}
	switch c.dir {
	case FromFD:
		if c.rb.room() > 0 && c.window > 0 {
			return int32(c.fd), unix.POLLIN, true
		}
	case ToFD:
		if c.rb.size() > 0 {
			return int32(c.fd), unix.POLLOUT, true
		}
	}
	return int32(c.fd), 0, false
}

// poll services a ready fd: reads into rb (FromFD) or writes from rb
// (ToFD). It never blocks — the fd is already non-blocking and revents
// told us it was ready — and releases the fd on EOF or a fatal per-fd
// error (per-fd errors only close the channel, they never propagate to
// the session).
func (c *Channel) poll(revents int16) {
	if !c.hasFD {
		return
	}
	if revents&unix.POLLIN != 0 && c.dir == FromFD {
		c.pollRead()
	}
	if revents&unix.POLLOUT != 0 && c.dir == ToFD {
		c.pollWrite()
	}
	// A sink fd can report POLLHUP/POLLERR without POLLOUT once the reader
	// on the other end is gone; pollRead/pollWrite already closed the fd on
	// any EOF or error they observed, so only close here if it's still open.
	if c.hasFD && revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		c.close()
	}
}

func (c *Channel) pollRead() {
	limit := c.rb.room()
	if w := int(c.window); w < limit {
		limit = w
	}
	if limit <= 0 {
		return
	}
	for limit > 0 {
		iov := c.rb.writableIov()
		if len(iov) == 0 {
			break
		}
		seg := iov[0]
		if len(seg) > limit {
			seg = seg[:limit]
		}
		n, err := unix.Read(c.fd, seg)
		if n > 0 {
			c.rb.noteAdded(n)
			c.window -= uint32(n)
			limit -= n
		}
		if err != nil {
			if isWouldBlock(err) {
				return
			}
			c.close()
			return
		}
		if n == 0 {
			// EOF
			c.close()
			return
		}
		if n < len(seg) {
			// short read; fd drained for now
			return
		}
	}
}

func (c *Channel) pollWrite() {
	for c.rb.size() > 0 {
		iov := c.rb.readableIov(c.rb.size())
		seg := iov[0]
		n, err := unix.Write(c.fd, seg)
		if n > 0 {
			c.rb.noteRemoved(n)
			c.bytesWritten += uint32(n)
		}
		if err != nil {
			if isWouldBlock(err) {
				return
			}
			c.close()
			return
		}
		if n < len(seg) {
			return
		}
	}
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// write appends bytes to rb; caller guarantees room() >= total length.
func (c *Channel) write(bufs ...[]byte) {
	c.rb.write(bufs...)
}

// close releases the fd, leaving rb intact so buffered bytes can still
// drain (for ToFD) or be sent (for FromFD, though a FromFD close is
// normally only reached once its rb is already empty).
func (c *Channel) close() {
	if c.hasFD {
		unix.Close(c.fd)
		c.hasFD = false
	}
}

// addWindow grants additional send credit with saturating semantics:
// an overflow is reported, never silently wrapped.
func (c *Channel) addWindow(delta uint32) (overflowed bool) {
	sum := c.window + delta
	if sum < c.window {
		return true
	}
	c.window = sum
	return false
}
