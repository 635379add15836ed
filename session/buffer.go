package session

import (
	"errors"
	"sync"
)

// ErrBufferFull is returned when a chunk would push the buffer past its limit
var ErrBufferFull = errors.New("audio buffer full")

// AudioBuffer collects PCM chunks back to back in arrival order.
// It is only ever drained as a whole.
type AudioBuffer struct {
	mu     sync.Mutex
	data   []byte
	chunks int
	limit  int
}

// NewAudioBuffer creates a buffer holding at most limit bytes.
// A limit of zero or less means no limit.
func NewAudioBuffer(limit int) *AudioBuffer {
	return &AudioBuffer{limit: limit}
}

// Append copies chunk to the end. Empty chunks are ignored; a chunk that
// does not fit is rejected whole with ErrBufferFull.
func (b *AudioBuffer) Append(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit > 0 && len(b.data)+len(chunk) > b.limit {
		return ErrBufferFull
	}
	b.data = append(b.data, chunk...)
	b.chunks++
	return nil
}

// Flush hands over everything buffered and leaves the buffer empty.
// The caller owns the returned slice. Returns nil when empty.
func (b *AudioBuffer) Flush() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.data
	b.data = nil
	b.chunks = 0
	if len(out) == 0 {
		return nil
	}
	return out
}

// Clear drops buffered audio
func (b *AudioBuffer) Clear() {
	b.mu.Lock()
	b.data = nil
	b.chunks = 0
	b.mu.Unlock()
}

// Len is the number of buffered bytes
func (b *AudioBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Chunks is the number of chunks appended since the last drain
func (b *AudioBuffer) Chunks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chunks
}

func (b *AudioBuffer) IsEmpty() bool {
	return b.Len() == 0
}
