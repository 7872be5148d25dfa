package cache

import "strings"

// tradesRing is a fixed-capacity FIFO of serialized trade payloads with a
// memoized JSON-array form. The memo is cleared on every add and rebuilt on
// the next serialized call. Callers hold the cache lock.
type tradesRing struct {
	buf   []string
	start int
	count int

	memo   string
	memoOK bool
}

func newTradesRing(capacity int) *tradesRing {
	return &tradesRing{buf: make([]string, capacity)}
}

func (r *tradesRing) add(payload string) {
	idx := (r.start + r.count) % len(r.buf)
	if r.count == len(r.buf) {
		r.start = (r.start + 1) % len(r.buf)
		r.count--
	}
	r.buf[idx] = payload
	r.count++
	r.memoOK = false
}

// items returns the buffered payloads oldest first.
func (r *tradesRing) items() []string {
	out := make([]string, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// serialized joins the pre-serialized payloads into one JSON array. The
// payloads are JSON objects already, so this is pure concatenation.
func (r *tradesRing) serialized() string {
	if r.memoOK {
		return r.memo
	}
	var b strings.Builder
	b.WriteByte('[')
	for i := 0; i < r.count; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(r.buf[(r.start+i)%len(r.buf)])
	}
	b.WriteByte(']')
	r.memo = b.String()
	r.memoOK = true
	return r.memo
}
