package feed

import (
	"sync"
	"sync/atomic"
)

// Broadcaster fans one upstream event stream out to every worker replica.
// Each replica gets its own buffered channel; publishing is non-blocking,
// so a replica that falls behind loses events rather than stalling the
// producer or its siblings.
type Broadcaster struct {
	mu      sync.Mutex
	subs    []chan Event
	dropped uint64 // atomic
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe registers a new consumer and returns its event channel.
func (b *Broadcaster) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers ev to every registered consumer, best-effort.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			atomic.AddUint64(&b.dropped, 1)
		}
	}
	b.mu.Unlock()
}

// Dropped returns how many per-consumer deliveries were discarded because a
// consumer's buffer was full.
func (b *Broadcaster) Dropped() uint64 {
	return atomic.LoadUint64(&b.dropped)
}
