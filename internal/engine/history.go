package engine

import (
	"sync"

	"github.com/af-corp/aegis-router/internal/types"
)

// DefaultHistorySize is the routing history capacity used when none is
// configured.
const DefaultHistorySize = 1000

// History is a fixed-capacity ring of routing decisions. When full, the
// oldest decision is overwritten.
type History struct {
	mu    sync.Mutex
	buf   []types.RoutingDecision
	next  int
	size  int
	total int64
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{buf: make([]types.RoutingDecision, capacity)}
}

func (h *History) Add(d types.RoutingDecision) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = d
	h.next = (h.next + 1) % len(h.buf)
	if h.size < len(h.buf) {
		h.size++
	}
	h.total++
}

// Recent returns up to n of the most recent decisions, oldest first.
// A non-positive n returns everything retained.
func (h *History) Recent(n int) []types.RoutingDecision {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > h.size {
		n = h.size
	}
	out := make([]types.RoutingDecision, n)
	start := h.next - n
	if start < 0 {
		start += len(h.buf)
	}
	for i := range out {
		out[i] = h.buf[(start+i)%len(h.buf)]
	}
	return out
}

// Total counts every decision ever added, including evicted ones.
func (h *History) Total() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}
