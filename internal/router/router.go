// Package router tracks which connections are subscribed to which topics
// and fans payloads out to current subscribers. A topic is created lazily
// on first subscribe and removed once its last subscriber leaves; it has no
// identity beyond its subscriber set.
package router

import "sync"

// Subscriber is the router's view of a connection. Deliver hands a payload
// to the connection without blocking; false means it was not accepted
// (outbound buffer full) and the transport is dealing with the connection.
type Subscriber interface {
	ID() string
	Deliver(payload string) bool
}

type Router struct {
	mu     sync.RWMutex
	topics map[string]map[Subscriber]struct{}
	conns  map[Subscriber]map[string]struct{}
}

func New() *Router {
	return &Router{
		topics: make(map[string]map[Subscriber]struct{}),
		conns:  make(map[Subscriber]map[string]struct{}),
	}
}

// Subscribe adds sub to topic. Idempotent.
func (r *Router) Subscribe(sub Subscriber, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[topic]
	if !ok {
		t = make(map[Subscriber]struct{})
		r.topics[topic] = t
	}
	t[sub] = struct{}{}
	c, ok := r.conns[sub]
	if !ok {
		c = make(map[string]struct{})
		r.conns[sub] = c
	}
	c[topic] = struct{}{}
}

// Unsubscribe removes sub from topic. A no-op when sub was never
// subscribed.
func (r *Router) Unsubscribe(sub Subscriber, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.topics[topic]; ok {
		delete(t, sub)
		if len(t) == 0 {
			delete(r.topics, topic)
		}
	}
	if c, ok := r.conns[sub]; ok {
		delete(c, topic)
		if len(c) == 0 {
			delete(r.conns, sub)
		}
	}
}

// Publish sends payload to every current subscriber of topic, best-effort,
// at most once per subscriber. Returns how many deliveries were accepted.
func (r *Router) Publish(topic, payload string) int {
	r.mu.RLock()
	t := r.topics[topic]
	subs := make([]Subscriber, 0, len(t))
	for sub := range t {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, sub := range subs {
		if sub.Deliver(payload) {
			delivered++
		}
	}
	return delivered
}

// Drop removes sub from every topic. Required on connection teardown so
// closed connections cannot leak into subscriber sets.
func (r *Router) Drop(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for topic := range r.conns[sub] {
		t := r.topics[topic]
		delete(t, sub)
		if len(t) == 0 {
			delete(r.topics, topic)
		}
	}
	delete(r.conns, sub)
}

// Count returns the subscriber count of topic.
func (r *Router) Count(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}

// Topics returns how many topics currently have subscribers.
func (r *Router) Topics() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}
