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

// ring is a fixed-capacity byte FIFO supporting scatter/gather views.
// Capacity is rounded up to a power of two so head/tail wrap with a mask
// instead of a modulo. There is no internal locking: callers run inside
// the single session goroutine and provide their own discipline.
type ring struct {
	buf  []byte
	mask int
	head int // next byte to read
	tail int // next free slot to write
	n    int // bytes currently stored
}

func newRing(capacity int) *ring {
	c := nextPow2(capacity)
	return &ring{buf: make([]byte, c), mask: c - 1}
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// size returns the number of bytes currently readable.
func (r *ring) size() int { return r.n }

// room returns the number of bytes currently writable.
func (r *ring) room() int { return len(r.buf) - r.n }

// cap returns the buffer's fixed capacity.
func (r *ring) cap() int { return len(r.buf) }

// copyOut copies n bytes from the head into dst without consuming them.
// Panics if n exceeds size() or dst is too small — a programming error,
// not a runtime condition callers should expect to hit.
func (r *ring) copyOut(dst []byte, n int) {
	if n > r.n {
		panic("ring: copyOut exceeds size")
	}
	if len(dst) < n {
		panic("ring: copyOut dst too small")
	}
	first := r.mask + 1 - r.head
	if first >= n {
		copy(dst, r.buf[r.head:r.head+n])
		return
	}
	copy(dst, r.buf[r.head:])
	copy(dst[first:], r.buf[:n-first])
}

// noteRemoved advances the head by n, consuming bytes already read via copyOut.
func (r *ring) noteRemoved(n int) {
	if n > r.n {
		panic("ring: noteRemoved exceeds size")
	}
	r.head = (r.head + n) & r.mask
	r.n -= n
}

// readableIov returns up to two contiguous slices totaling n readable bytes.
func (r *ring) readableIov(n int) [][]byte {
	if n > r.n {
		panic("ring: readableIov exceeds size")
	}
	if n == 0 {
		return nil
	}
	first := r.mask + 1 - r.head
	if first >= n {
		return [][]byte{r.buf[r.head : r.head+n]}
	}
	return [][]byte{r.buf[r.head:], r.buf[:n-first]}
}

// writableIov returns up to two contiguous slices spanning all free room.
func (r *ring) writableIov() [][]byte {
	room := r.room()
	if room == 0 {
		return nil
	}
	first := r.mask + 1 - r.tail
	if first >= room {
		return [][]byte{r.buf[r.tail : r.tail+room]}
	}
	return [][]byte{r.buf[r.tail:], r.buf[:room-first]}
}

// noteAdded advances the tail by n, committing bytes already placed via writableIov.
func (r *ring) noteAdded(n int) {
	if n > r.room() {
		panic("ring: noteAdded exceeds room")
	}
	r.tail = (r.tail + n) & r.mask
	r.n += n
}

// write appends the concatenation of bufs; caller guarantees room() >= total length.
func (r *ring) write(bufs ...[]byte) {
	total := 0
	for _, b := range bufs {
		total += len(b)
	}
	if total > r.room() {
		panic("ring: write exceeds room")
	}
	for _, b := range bufs {
		for len(b) > 0 {
			iov := r.writableIov()
			n := copy(iov[0], b)
			r.noteAdded(n)
			b = b[n:]
		}
	}
}
