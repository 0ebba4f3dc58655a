package sensor

import (
	"fmt"
	"sync"
)

// RollingBuffer is a thread-safe bounded FIFO of samples. When the buffer is
// full, adding a sample evicts the oldest one.
type RollingBuffer struct {
	capacity int

	mu    sync.Mutex
	items []Sample
	head  int // index of the oldest sample
	size  int
}

// NewRollingBuffer creates a buffer holding at most capacity samples.
func NewRollingBuffer(capacity int) (*RollingBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid buffer capacity: %d", capacity)
	}
	return &RollingBuffer{
		capacity: capacity,
		items:    make([]Sample, capacity),
	}, nil
}

// Add appends samples in order, dropping the oldest ones on overflow.
func (b *RollingBuffer) Add(samples ...Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.add(samples)
}

// Replace clears the buffer and adds samples as a single operation.
func (b *RollingBuffer) Replace(samples []Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.clear()
	b.add(samples)
}

// Get returns a copy of the buffered samples, oldest first.
func (b *RollingBuffer) Get() []Sample {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Sample, b.size)
	for i := range out {
		out[i] = b.items[(b.head+i)%b.capacity]
	}
	return out
}

// Clear removes all samples from the buffer.
func (b *RollingBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.clear()
}

// Size returns the current number of samples in the buffer.
func (b *RollingBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Capacity returns the maximum number of samples the buffer holds.
func (b *RollingBuffer) Capacity() int {
	return b.capacity
}

func (b *RollingBuffer) add(samples []Sample) {
	// only the tail of an oversized batch can survive
	if len(samples) > b.capacity {
		samples = samples[len(samples)-b.capacity:]
	}

	for _, s := range samples {
		if b.size < b.capacity {
			b.items[(b.head+b.size)%b.capacity] = s
			b.size++
			continue
		}

		b.items[b.head] = s
		b.head = (b.head + 1) % b.capacity
	}
}

func (b *RollingBuffer) clear() {
	clear(b.items)
	b.head = 0
	b.size = 0
}
