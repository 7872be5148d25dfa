package worker

import "sync"

// MarketsShare propagates one worker's computed markets-list response to
// its sibling replicas, so metadata is fetched once per process rather than
// once per worker. First publish wins; each registered worker receives the
// value at most once per lifetime.
type MarketsShare struct {
	mu    sync.Mutex
	value string
	subs  []chan string
}

func NewMarketsShare() *MarketsShare {
	return &MarketsShare{}
}

// Register returns a channel on which the shared value is delivered at most
// once. Registering after a publish delivers immediately.
func (s *MarketsShare) Register() <-chan string {
	ch := make(chan string, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value != "" {
		ch <- s.value
		return ch
	}
	s.subs = append(s.subs, ch)
	return ch
}

// Publish sets the shared value and delivers it to every registered worker.
// Later publishes are ignored: the value is request-independent and the
// first computed copy is as good as any.
func (s *MarketsShare) Publish(v string) {
	if v == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value != "" {
		return
	}
	s.value = v
	for _, ch := range s.subs {
		ch <- v
	}
	s.subs = nil
}

// Value returns the shared value, if one has been published.
func (s *MarketsShare) Value() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.value != ""
}
