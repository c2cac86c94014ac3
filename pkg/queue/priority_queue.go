package queue

import (
	"container/heap"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/auditkit/site-auditor/pkg/models"
)

// itemHeap orders work breadth-first: lower depth first, then discovery order.
type itemHeap []models.WorkItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Depth != h[j].Depth {
		return h[i].Depth < h[j].Depth
	}
	return h[i].Sequence < h[j].Sequence
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(models.WorkItem)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Frontier is the crawl frontier shared by all workers. Pop blocks until an
// item arrives or the frontier is closed and drained.
type Frontier struct {
	items  itemHeap
	mu     sync.Mutex
	cond   *sync.Cond
	closed bool
	log    *logrus.Entry
}

// NewFrontier creates an empty frontier
func NewFrontier(logger *logrus.Entry) *Frontier {
	f := &Frontier{log: logger}
	f.cond = sync.NewCond(&f.mu)
	heap.Init(&f.items)
	return f
}

// Push adds item. Returns false when the frontier is already closed.
func (f *Frontier) Push(item models.WorkItem) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		f.log.Debugf("Dropping %s: frontier closed", item.URL)
		return false
	}
	heap.Push(&f.items, item)
	f.cond.Signal()
	return true
}

// Pop returns the next item, or false once the frontier is closed and empty.
func (f *Frontier) Pop() (models.WorkItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.items) == 0 {
		if f.closed {
			return models.WorkItem{}, false
		}
		f.cond.Wait()
	}
	return heap.Pop(&f.items).(models.WorkItem), true
}

// Close stops further pushes and wakes every waiting Pop. Items already
// queued are still handed out; use Drain to discard them.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		f.cond.Broadcast()
	}
}

// Drain removes and returns every queued item.
func (f *Frontier) Drain() []models.WorkItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	drained := make([]models.WorkItem, len(f.items))
	copy(drained, f.items)
	f.items = f.items[:0]
	return drained
}

// Len returns the number of queued items
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}
