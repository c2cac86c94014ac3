package fetch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// hostSlot is the permit set of one host.
type hostSlot struct {
	sem    *semaphore.Weighted
	users  int       // holders plus waiters
	idleAt time.Time // when users last dropped to zero
}

// HostSemaphorePool caps concurrent requests per host.
type HostSemaphorePool struct {
	mu    sync.Mutex
	slots map[string]*hostSlot
	size  int64
}

// NewHostSemaphorePool allows maxPerHost concurrent requests to each host
// (2 when maxPerHost is not positive).
func NewHostSemaphorePool(maxPerHost int) *HostSemaphorePool {
	size := int64(maxPerHost)
	if size <= 0 {
		size = 2
	}
	return &HostSemaphorePool{slots: make(map[string]*hostSlot), size: size}
}

// Acquire takes one permit for host, blocking until one is free or ctx is
// done. The returned func gives the permit back; extra calls are no-ops.
func (p *HostSemaphorePool) Acquire(ctx context.Context, host string) (func(), error) {
	slot := p.join(host)
	if err := slot.sem.Acquire(ctx, 1); err != nil {
		p.leave(slot)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			slot.sem.Release(1)
			p.leave(slot)
		})
	}, nil
}

func (p *HostSemaphorePool) join(host string) *hostSlot {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot, ok := p.slots[host]
	if !ok {
		slot = &hostSlot{sem: semaphore.NewWeighted(p.size)}
		p.slots[host] = slot
	}
	slot.users++
	return slot
}

func (p *HostSemaphorePool) leave(slot *hostSlot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot.users--
	if slot.users == 0 {
		slot.idleAt = time.Now()
	}
}

// Evict forgets hosts nobody has used for at least idle and returns them.
// A later Acquire for an evicted host starts a fresh slot.
func (p *HostSemaphorePool) Evict(idle time.Duration) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	var evicted []string
	for host, slot := range p.slots {
		if slot.users == 0 && now.Sub(slot.idleAt) >= idle {
			delete(p.slots, host)
			evicted = append(evicted, host)
		}
	}
	return evicted
}
