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

// pump drains whole messages off FromPeer and dispatches them, then
// walks the channel array in index order emitting acks, data and EOF
// frames. It never blocks: anything that doesn't fit in TO_PEER room
// this round is simply deferred to the next pump.
func (s *Session) pump() error {
	cmdch := s.ch[FromPeer]
	for {
		h, ok, err := detectMsg(cmdch.rb)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := s.processMsg(h); err != nil {
			return err
		}
	}

	for chno := range s.ch {
		if chno > NrSpecialCh {
			s.xmitAcks(s.ch[chno], uint32(chno))
		}
	}

	for chno := range s.ch {
		c := s.ch[chno]
		if chno > NrSpecialCh {
			s.xmitData(c, uint32(chno))
		}
		s.doPendingClose(c)
		s.xmitEOF(c, uint32(chno))
	}

	return nil
}

// xmitAcks emits a CHANNEL_WINDOW for bytes written to the local fd
// since the last ack, if one fits in the outgoing budget.
func (s *Session) xmitAcks(c *Channel, chno uint32) {
	maxout := s.maxOutMsg()
	if c.bytesWritten > 0 && maxout >= chanWindowSize {
		var buf [chanWindowSize]byte
		msg := encodeChannelWindow(buf[:], chno, c.bytesWritten)
		s.ch[ToPeer].write(msg)
		c.bytesWritten = 0
	}
}

// xmitData frames one CHANNEL_DATA message carrying as much of c's
// buffered bytes as fit in the outgoing budget (user channels only).
func (s *Session) xmitData(c *Channel, chno uint32) {
	if c.dir != FromFD {
		return
	}
	maxout := s.maxOutMsg()
	avail := c.rb.size()
	if maxout <= chanDataHdrSize || avail <= 0 {
		return
	}

	payloadsz := maxout - chanDataHdrSize
	if avail < payloadsz {
		payloadsz = avail
	}

	var hdr [chanDataHdrSize]byte
	totalSize := uint16(chanDataHdrSize + payloadsz)
	h := encodeChannelDataHeader(hdr[:], chno, totalSize)

	segs := c.rb.readableIov(payloadsz)
	bufs := make([][]byte, 0, 1+len(segs))
	bufs = append(bufs, h)
	bufs = append(bufs, segs...)

	s.ch[ToPeer].write(bufs...)
	c.rb.noteRemoved(payloadsz)
}

// doPendingClose closes a ToFD channel's fd once a requested close has
// fully drained its buffered bytes.
func (s *Session) doPendingClose(c *Channel) {
	if c.dir == ToFD && c.hasFD && c.rb.size() == 0 && c.pendingClose {
		c.close()
	}
}

// xmitEOF emits CHANNEL_CLOSE once a channel's fd is gone, its buffer
// has drained, and we haven't already told the peer.
func (s *Session) xmitEOF(c *Channel, chno uint32) {
	if !c.hasFD && !c.sentEOF && c.rb.size() == 0 && s.maxOutMsg() >= chanCloseSize {
		var buf [chanCloseSize]byte
		msg := encodeChannelClose(buf[:], chno)
		s.ch[ToPeer].write(msg)
		c.sentEOF = true
	}
}

// Idle reports whether the session has nothing left to do: every user
// channel's fd is released, its CHANNEL_CLOSE has been sent or received,
// and its ring is empty, and the special channels' rings are empty.
func (s *Session) Idle() bool {
	for chno, c := range s.ch {
		if chno > NrSpecialCh {
			if c.hasFD || !c.sentEOF || c.rb.size() > 0 {
				return false
			}
		} else if c.rb.size() > 0 {
			return false
		}
	}
	return true
}
