package stream

import "sync"

// DefaultRingCapacity bounds the retained encoder output.
const DefaultRingCapacity = 500

// LogRing is a bounded FIFO of encoder output lines. Once full, the oldest
// lines are silently evicted; remaining lines always preserve append order.
type LogRing struct {
	mu    sync.RWMutex
	lines []string
	head  int
	count int
}

// NewLogRing allocates a ring with the given capacity (DefaultRingCapacity
// when non-positive).
func NewLogRing(capacity int) *LogRing {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &LogRing{lines: make([]string, capacity)}
}

// Append adds a line, evicting the oldest when at capacity.
func (r *LogRing) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := (r.head + r.count) % len(r.lines)
	r.lines[idx] = line
	if r.count < len(r.lines) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.lines)
	}
}

// Tail returns the most recent n lines in append order. n <= 0 or n larger
// than the retained count returns everything retained.
func (r *LogRing) Tail(n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]string, 0, n)
	start := r.count - n
	for i := start; i < r.count; i++ {
		out = append(out, r.lines[(r.head+i)%len(r.lines)])
	}
	return out
}

// Len reports how many lines are currently retained.
func (r *LogRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
