package audio

import "sync"

// BoundedBuffer keeps the most recent maxBytes of an audio stream. Appends
// past the cap discard the oldest data, so a long call still yields its tail
// for out-of-band transcription.
type BoundedBuffer struct {
	mu       sync.Mutex
	data     []byte
	maxBytes int
}

func NewBoundedBuffer(maxBytes int) *BoundedBuffer {
	if maxBytes <= 0 {
		maxBytes = 8000 * 120 // two minutes of 8 kHz mu-law
	}
	return &BoundedBuffer{maxBytes: maxBytes}
}

// Append adds chunk, trimming from the front when over capacity.
func (b *BoundedBuffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, chunk...)
	if over := len(b.data) - b.maxBytes; over > 0 {
		b.data = append(b.data[:0:0], b.data[over:]...)
	}
}

// Bytes returns a copy of the buffered audio.
func (b *BoundedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data...)
}

// Len returns the buffered byte count.
func (b *BoundedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}
