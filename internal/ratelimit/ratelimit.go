// Package ratelimit implements a fixed-window message rate limiter keyed by
// connection ID. One process-wide window counter advances every interval;
// each connection records the last window it was seen in and how many
// messages it sent within it. A burst straddling a window edge can briefly
// reach twice the limit, the accepted cost of O(1) state per connection and
// no per-connection sweep.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultLimit    = 50
	DefaultInterval = time.Second
)

type counter struct {
	window uint64
	count  int
}

type Limiter struct {
	limit    int
	interval time.Duration

	window uint64 // atomic

	mu    sync.Mutex
	conns map[string]*counter

	stop     chan struct{}
	stopOnce sync.Once
}

// New starts a limiter allowing limit messages per connection per interval.
// Non-positive arguments fall back to the defaults. Stop must be called to
// release the window ticker.
func New(limit int, interval time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	l := &Limiter{
		limit:    limit,
		interval: interval,
		conns:    make(map[string]*counter),
		stop:     make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Limiter) run() {
	t := time.NewTicker(l.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.advance()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) advance() {
	atomic.AddUint64(&l.window, 1)
}

// Allow records one message from connID and reports whether it is within
// the current window's budget. Never blocks.
func (l *Limiter) Allow(connID string) bool {
	win := atomic.LoadUint64(&l.window)
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.conns[connID]
	if !ok {
		l.conns[connID] = &counter{window: win, count: 1}
		return true
	}
	if c.window != win {
		c.window = win
		c.count = 1
		return true
	}
	c.count++
	return c.count <= l.limit
}

// Forget drops connID's counters. Called on connection teardown so the map
// does not grow with dead connections.
func (l *Limiter) Forget(connID string) {
	l.mu.Lock()
	delete(l.conns, connID)
	l.mu.Unlock()
}

func (l *Limiter) Limit() int              { return l.limit }
func (l *Limiter) Interval() time.Duration { return l.interval }

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
