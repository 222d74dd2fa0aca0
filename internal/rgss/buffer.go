package rgss

// DefaultBufferCapacity is the initial capacity of state machine buffers.
const DefaultBufferCapacity = 10 * 1024

// Buffer is a staging area between a transport and a state machine.
//
// Incoming bytes are written into Space and committed with Fill. Committed
// bytes are exposed by Data and released with Consume. Writers use the same
// buffer the other way around: encrypted bytes are staged with Fill and
// drained by the transport through Data and Consume.
type Buffer struct {
	buf   []byte
	start int
	end   int
}

// NewBuffer returns an empty buffer with the given capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, capacity)}
}

// Capacity returns the total size of the backing storage.
func (b *Buffer) Capacity() int {
	return len(b.buf)
}

// Data returns the committed, unconsumed bytes.
func (b *Buffer) Data() []byte {
	return b.buf[b.start:b.end]
}

// AvailableData returns len(b.Data()).
func (b *Buffer) AvailableData() int {
	return b.end - b.start
}

// Space returns the writable region after the committed bytes.
// Consumed bytes at the front are reclaimed first.
func (b *Buffer) Space() []byte {
	b.compact()
	return b.buf[b.end:]
}

// AvailableSpace returns how many bytes Space would offer.
func (b *Buffer) AvailableSpace() int {
	return len(b.buf) - b.AvailableData()
}

// Fill commits n bytes written into Space.
func (b *Buffer) Fill(n int) {
	if n < 0 || b.end+n > len(b.buf) {
		panic("rgss: buffer fill out of range")
	}
	b.end += n
}

// Consume releases the first n bytes of Data.
func (b *Buffer) Consume(n int) {
	if n < 0 || n > b.AvailableData() {
		panic("rgss: buffer consume out of range")
	}
	b.start += n
	if b.start == b.end {
		b.start, b.end = 0, 0
	}
}

// Reserve makes sure Space offers at least n bytes, growing if needed.
func (b *Buffer) Reserve(n int) {
	b.compact()
	if len(b.buf)-b.end >= n {
		return
	}
	grown := make([]byte, max(2*len(b.buf), b.end+n))
	copy(grown, b.buf[:b.end])
	b.buf = grown
}

// Reset drops all buffered bytes.
func (b *Buffer) Reset() {
	b.start, b.end = 0, 0
}

func (b *Buffer) compact() {
	if b.start == 0 {
		return
	}
	n := copy(b.buf, b.buf[b.start:b.end])
	b.start, b.end = 0, n
}
