package web

import (
	"sync"

	"hapticscan/internal/scan"
)

// Broadcaster fans scan snapshots out to any listeners (the /ws stream).
// It keeps the most recent value so new subscribers get an immediate sample.
// Publishing never blocks: a full subscriber queue drops the sample.
type Broadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan scan.Snapshot
	nextID   int
	last     scan.Snapshot
	haveLast bool
	dropped  uint64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan scan.Snapshot)}
}

func (b *Broadcaster) Subscribe(buffer int) (int, <-chan scan.Snapshot) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan scan.Snapshot, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	last, have := b.last, b.haveLast
	b.mu.Unlock()
	if have {
		select {
		case ch <- last:
		default:
		}
	}
	return id, ch
}

func (b *Broadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

// ObserveScan implements scan.Observer.
func (b *Broadcaster) ObserveScan(snap scan.Snapshot) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = snap
	b.haveLast = true
	for _, ch := range b.subs {
		select {
		case ch <- snap:
		default:
			b.dropped++
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped counts samples not delivered to a full subscriber queue.
func (b *Broadcaster) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}
