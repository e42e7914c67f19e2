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
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// Reserved channel indices. NrSpecialCh == 1: user channels start at 2.
const (
	FromPeer   = 0
	ToPeer     = 1
	NrSpecialCh = 1
)

// MsgHandler lets a session role (client/server/stub) intercept message
// types beyond the three base kinds before falling through to the
// session's own dispatch.
type MsgHandler interface {
	// Process handles h if it recognizes the type, returning handled=true.
	// It must consume h.size bytes from the FromPeer ring itself when
	// handled is true. Returning an error is fatal to the session.
	Process(s *Session, h header) (handled bool, err error)
}

// Config bounds the session's channel set and per-message limits.
type Config struct {
	// MaxOutgoingMsg is the peer-advertised maximum message size; the
	// session hard-caps against its own TO_PEER ring room on top of this.
	MaxOutgoingMsg uint32
	// PollMask, if non-nil, is the signal mask applied during ppoll.
	PollMask *unix.Sigset_t
}

// Session holds the fixed channel array and dispatch state for one
// multiplexed connection. The channel set is fixed at construction; no
// channel can be added once the session has started.
type Session struct {
	ch  []*Channel
	cfg Config

	// handler, if set, is consulted before the base dispatch for every
	// incoming message type.
	handler MsgHandler
}

// NewSession builds a session around channels, where channels[FromPeer]
// and channels[ToPeer] are the two special channels and the rest are
// user channels starting at index NrSpecialCh+1. len(channels) must be
// >= NrSpecialCh+2.
func NewSession(channels []*Channel, cfg Config) *Session {
	if len(channels) < NrSpecialCh+2 {
		panic("mux: session requires at least one user channel")
	}
	return &Session{ch: channels, cfg: cfg}
}

// SetHandler installs a role-specific message handler overlay.
func (s *Session) SetHandler(h MsgHandler) { s.handler = h }

// NumChannels returns the total channel count, special channels included.
func (s *Session) NumChannels() int { return len(s.ch) }

// Channel returns the channel at index i (0 == FromPeer, 1 == ToPeer).
func (s *Session) Channel(i int) *Channel { return s.ch[i] }

func (s *Session) maxOutMsg() int {
	room := s.ch[ToPeer].rb.room()
	if int(s.cfg.MaxOutgoingMsg) < room {
		return int(s.cfg.MaxOutgoingMsg)
	}
	return room
}

// validChannel reports whether chno names a user channel.
func (s *Session) validChannel(chno uint32) bool {
	return chno > NrSpecialCh && int(chno) <= len(s.ch)-1
}

// processMsg drains and dispatches exactly one already-detected message
// of kind h from the FromPeer ring.
func (s *Session) processMsg(h header) error {
	if s.handler != nil {
		handled, err := s.handler.Process(s, h)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
	}

	cmdch := s.ch[FromPeer]

	switch h.typ {
	case MsgChannelData:
		if int(h.size) < chanDataHdrSize {
			return &ProtocolError{Op: "process_msg", Msg: "channel_data too small"}
		}
		var hb [chanDataHdrSize]byte
		cmdch.rb.copyOut(hb[:], chanDataHdrSize)
		cmdch.rb.noteRemoved(chanDataHdrSize)
		channel := binary.LittleEndian.Uint32(hb[4:8])
		payloadsz := int(h.size) - chanDataHdrSize
		return s.handleChannelData(channel, payloadsz)

	case MsgChannelWindow:
		var mb [chanWindowSize]byte
		if err := readCmdMsg(cmdch.rb, h, chanWindowSize, mb[:]); err != nil {
			return err
		}
		channel := binary.LittleEndian.Uint32(mb[4:8])
		delta := binary.LittleEndian.Uint32(mb[8:12])
		return s.handleChannelWindow(channel, delta)

	case MsgChannelClose:
		var mb [chanCloseSize]byte
		if err := readCmdMsg(cmdch.rb, h, chanCloseSize, mb[:]); err != nil {
			return err
		}
		channel := binary.LittleEndian.Uint32(mb[4:8])
		s.handleChannelClose(channel)
		return nil

	default:
		cmdch.rb.noteRemoved(int(h.size))
		return &ProtocolError{Op: "process_msg", Msg: "unrecognized message type"}
	}
}

func (s *Session) handleChannelData(channel uint32, payloadsz int) error {
	cmdch := s.ch[FromPeer]

	if !s.validChannel(channel) {
		return &ProtocolError{Op: "channel_data", Msg: "invalid channel"}
	}
	c := s.ch[channel]
	if c.dir == FromFD {
		return &ProtocolError{Op: "channel_data", Msg: "wrong channel direction"}
	}

	if !c.hasFD {
		// Channel already closed locally: drop the write, but still consume it.
		cmdch.rb.noteRemoved(payloadsz)
		return nil
	}

	if c.rb.room() < payloadsz {
		return &ProtocolError{Op: "channel_data", Msg: "window desync"}
	}

	iov := cmdch.rb.readableIov(payloadsz)
	c.write(iov...)
	cmdch.rb.noteRemoved(payloadsz)
	return nil
}

func (s *Session) handleChannelWindow(channel uint32, delta uint32) error {
	if !s.validChannel(channel) {
		return &ProtocolError{Op: "channel_window", Msg: "invalid channel"}
	}
	c := s.ch[channel]
	if c.dir == ToFD {
		return &ProtocolError{Op: "channel_window", Msg: "wrong channel direction"}
	}
	if !c.hasFD {
		return nil // channel already closed locally
	}
	if c.addWindow(delta) {
		return &ProtocolError{Op: "channel_window", Msg: "window overflow"}
	}
	return nil
}

func (s *Session) handleChannelClose(channel uint32) {
	if !s.validChannel(channel) {
		return // tolerate races: ignore out-of-range close
	}
	c := s.ch[channel]
	c.sentEOF = true // peer already knows we're closed

	if c.dir == ToFD {
		// Don't drop bytes already queued for this fd but not yet written:
		// request a close and let doPendingClose release the fd once rb
		// drains on a later pump pass, same as a locally-requested close
		//.
		c.pendingClose = true
		return
	}

	c.close()
}
