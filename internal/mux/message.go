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

import "encoding/binary"

// Message type tags. Session-establishment messages are handled above
// this package; the core only frames and dispatches these three kinds.
// MsgHandshake reuses the same header shape so ReadMsg/EncodeHandshake
// can frame the pre-session handshake (the command to run) with no
// separate wire format to maintain.
const (
	MsgHandshake     uint8 = 0
	MsgChannelData   uint8 = 1
	MsgChannelWindow uint8 = 2
	MsgChannelClose  uint8 = 3
)

// headerSize is sizeof(msg): { type:u8, _pad:u8, size:u16 }.
const headerSize = 4

// chanDataHdrSize is sizeof(msg_channel_data) minus the payload: header + channel:u32.
const chanDataHdrSize = headerSize + 4

// chanWindowSize is sizeof(msg_channel_window): header + channel:u32 + window_delta:u32.
const chanWindowSize = headerSize + 8

// chanCloseSize is sizeof(msg_channel_close): header + channel:u32.
const chanCloseSize = headerSize + 4

// MinOutgoingMsg is the smallest MaxOutgoingMsg a session can be configured
// with and still carry a CHANNEL_WINDOW or CHANNEL_CLOSE frame, the two
// control message kinds (CHANNEL_WINDOW is the larger of the two).
const MinOutgoingMsg = chanWindowSize

// header is the common 4-byte prefix of every message, little-endian.
type header struct {
	typ  uint8
	pad  uint8
	size uint16
}

func decodeHeader(b []byte) header {
	return header{
		typ:  b[0],
		pad:  b[1],
		size: binary.LittleEndian.Uint16(b[2:4]),
	}
}

func putHeader(b []byte, typ uint8, size uint16) {
	b[0] = typ
	b[1] = 0
	binary.LittleEndian.PutUint16(b[2:4], size)
}

// encodeChannelWindow lays out a CHANNEL_WINDOW message into buf (must be >= chanWindowSize).
func encodeChannelWindow(buf []byte, channel uint32, delta uint32) []byte {
	buf = buf[:chanWindowSize]
	putHeader(buf, MsgChannelWindow, chanWindowSize)
	binary.LittleEndian.PutUint32(buf[4:8], channel)
	binary.LittleEndian.PutUint32(buf[8:12], delta)
	return buf
}

// encodeChannelClose lays out a CHANNEL_CLOSE message into buf (must be >= chanCloseSize).
func encodeChannelClose(buf []byte, channel uint32) []byte {
	buf = buf[:chanCloseSize]
	putHeader(buf, MsgChannelClose, chanCloseSize)
	binary.LittleEndian.PutUint32(buf[4:8], channel)
	return buf
}

// encodeChannelDataHeader lays out just the msg_channel_data prefix (header+channel);
// the payload follows directly and is supplied separately so the ring buffer's own
// scatter segments can be appended without an extra copy.
func encodeChannelDataHeader(buf []byte, channel uint32, totalSize uint16) []byte {
	buf = buf[:chanDataHdrSize]
	putHeader(buf, MsgChannelData, totalSize)
	binary.LittleEndian.PutUint32(buf[4:8], channel)
	return buf
}

// EncodeHandshake frames payload as a MsgHandshake message for use with
// ReadMsg/io.Writer before a Session exists.
func EncodeHandshake(payload []byte) []byte {
	buf := make([]byte, headerSize+len(payload))
	putHeader(buf, MsgHandshake, uint16(len(buf)))
	copy(buf[headerSize:], payload)
	return buf
}

// DecodeHandshake validates msg (as returned by ReadMsg) as a
// MsgHandshake frame and returns its payload.
func DecodeHandshake(msg []byte) ([]byte, error) {
	if len(msg) < headerSize {
		return nil, &ProtocolError{Op: "handshake", Msg: "truncated handshake message"}
	}
	h := decodeHeader(msg)
	if h.typ != MsgHandshake {
		return nil, &ProtocolError{Op: "handshake", Msg: "expected handshake message"}
	}
	return msg[headerSize:], nil
}

// detectMsg peeks at rb's head and returns the header once a full message
// has arrived, without consuming anything. Returns ok=false if more bytes
// are needed. A message whose declared size can never fit in the ring
// even once fully buffered is a fatal protocol error (the peer is
// malformed or adversarial).
func detectMsg(rb *ring) (h header, ok bool, err error) {
	avail := rb.size()
	if avail < headerSize {
		return header{}, false, nil
	}

	var hb [headerSize]byte
	rb.copyOut(hb[:], headerSize)
	h = decodeHeader(hb[:])

	if avail < int(h.size) {
		if int(h.size)-avail > rb.room() {
			return header{}, false, &ProtocolError{
				Op:  "detect_msg",
				Msg: "impossibly large message: peer is malformed",
			}
		}
		return header{}, false, nil
	}

	return h, true, nil
}

// readCmdMsg validates header.size against expected and copies the full
// message body out of rb, advancing the head past it.
func readCmdMsg(rb *ring, h header, expected int, out []byte) error {
	if int(h.size) != expected {
		return &ProtocolError{
			Op:  "read_cmdmsg",
			Msg: "wrong message size",
		}
	}
	rb.copyOut(out[:expected], expected)
	rb.noteRemoved(expected)
	return nil
}
