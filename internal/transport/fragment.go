package transport

import "time"

const (
	// DefaultChunkSize matches the minimal BLE write payload available
	// without MTU negotiation.
	DefaultChunkSize = 20

	// DefaultChunkDelay keeps the printer's receive buffer from
	// overrunning on sustained writes.
	DefaultChunkDelay = 50 * time.Millisecond
)

// Fragments splits a command buffer into transport-sized chunks. It is
// a consuming iterator: Next hands out successive windows of the buffer
// until it is drained, and the sequence is not restartable.
type Fragments struct {
	buf       []byte
	chunkSize int
}

func NewFragments(buf []byte, chunkSize int) *Fragments {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Fragments{buf: buf, chunkSize: chunkSize}
}

// Next returns the next chunk, at most chunkSize bytes. The final chunk
// may be shorter. ok is false once the buffer is drained.
func (f *Fragments) Next() (chunk []byte, ok bool) {
	if len(f.buf) == 0 {
		return nil, false
	}
	n := f.chunkSize
	if n > len(f.buf) {
		n = len(f.buf)
	}
	chunk, f.buf = f.buf[:n], f.buf[n:]
	return chunk, true
}

// Count reports how many chunks remain.
func (f *Fragments) Count() int {
	return (len(f.buf) + f.chunkSize - 1) / f.chunkSize
}
