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
	stderrors "errors"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// setNonblocking puts fd in non-blocking mode. Called once per bound fd
// at session construction.
func setNonblocking(fd int) error {
	return unix.SetNonblock(fd, true)
}

// doIO builds a poll vector from every channel's requestPoll, polls
// once (unless nothing is requested, in which case it returns
// immediately without blocking), and services every ready channel.
// EINTR is swallowed; any other poll error is a TransportError.
func (s *Session) doIO() error {
	polls := make([]unix.PollFd, 0, len(s.ch))
	idx := make([]int, 0, len(s.ch))
	var work int16

	for chno, c := range s.ch {
		fd, events, want := c.requestPoll()
		if !want {
			continue
		}
		polls = append(polls, unix.PollFd{Fd: fd, Events: events})
		idx = append(idx, chno)
		work |= events
	}

	if work != 0 {
		for {
			_, err := unix.Ppoll(polls, nil, s.cfg.PollMask)
			if err == nil {
				break
			}
			if stderrors.Is(err, unix.EINTR) {
				continue
			}
			return &TransportError{Op: "ppoll", Err: errors.Wrap(err, "ppoll")}
		}
	}

	for i, p := range polls {
		if p.Revents != 0 {
			s.ch[idx[i]].poll(p.Revents)
		}
	}

	return nil
}

// Run alternates doIO and pump until the session goes idle or either phase
// returns a fatal error.
func (s *Session) Run() error {
	for {
		if err := s.doIO(); err != nil {
			return err
		}
		if err := s.pump(); err != nil {
			return err
		}
		if s.Idle() {
			return nil
		}
	}
}

// QueueMessageSynch pumps (and performs I/O if pumping alone doesn't
// free room) until TO_PEER has room for the whole of msg, then writes
// it atomically — never split, never interleaved with a data frame
// mid-way, because the pump emits one frame at a time under the shared
// budget. Used by handshake/control paths outside the
// steady-state Run loop.
func (s *Session) QueueMessageSynch(msg []byte) error {
	for s.maxOutMsg() < len(msg) {
		if err := s.pump(); err != nil {
			return err
		}
		if s.maxOutMsg() >= len(msg) {
			break
		}
		if err := s.doIO(); err != nil {
			return err
		}
	}
	s.ch[ToPeer].write(msg)
	return nil
}

// ReadMsg is the synchronous handshake-phase reader: it reads one
// header via r, validates size, allocates a buffer of size bytes, reads
// the remainder, and returns it whole.
func ReadMsg(r io.Reader) ([]byte, error) {
	var hb [headerSize]byte
	if _, err := io.ReadFull(r, hb[:]); err != nil {
		return nil, &ProtocolError{Op: "read_msg", Msg: "peer disconnected"}
	}

	h := decodeHeader(hb[:])
	if int(h.size) < headerSize {
		return nil, &ProtocolError{Op: "read_msg", Msg: "impossible message"}
	}

	m := make([]byte, h.size)
	copy(m, hb[:])
	if _, err := io.ReadFull(r, m[headerSize:]); err != nil {
		return nil, &ProtocolError{Op: "read_msg", Msg: "truncated message"}
	}

	return m, nil
}
