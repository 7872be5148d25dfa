// Package cache holds the latest serialized state per market: single-slot
// snapshots per (symbol, data type) and a bounded ring of recent trades per
// symbol. Payloads arrive pre-serialized and are stored verbatim.
package cache

import (
	"sync"

	"github.com/altonen7/dexstream/internal/feed"
)

// DefaultTradeCapacity bounds the recent-trades ring per symbol.
const DefaultTradeCapacity = 100

type snapshotKey struct {
	symbol string
	typ    feed.DataType
}

// SnapshotCache is owned by one worker replica. Writes come from the
// worker's event path; reads come from subscribe replay and the HTTP
// endpoints, so access is guarded.
type SnapshotCache struct {
	mu        sync.RWMutex
	snapshots map[snapshotKey]string
	trades    map[string]*tradesRing
	capacity  int
}

func New(tradeCapacity int) *SnapshotCache {
	if tradeCapacity <= 0 {
		tradeCapacity = DefaultTradeCapacity
	}
	return &SnapshotCache{
		snapshots: make(map[snapshotKey]string),
		trades:    make(map[string]*tradesRing),
		capacity:  tradeCapacity,
	}
}

// PutSnapshot overwrites the slot for (symbol, typ). Last write wins; there
// is no merging or reordering.
func (c *SnapshotCache) PutSnapshot(symbol string, typ feed.DataType, payload string) {
	c.mu.Lock()
	c.snapshots[snapshotKey{symbol, typ}] = payload
	c.mu.Unlock()
}

// Snapshot returns the cached payload for (symbol, typ), if any.
func (c *SnapshotCache) Snapshot(symbol string, typ feed.DataType) (string, bool) {
	c.mu.RLock()
	p, ok := c.snapshots[snapshotKey{symbol, typ}]
	c.mu.RUnlock()
	return p, ok
}

// AppendTrade records one trade payload for symbol, evicting the oldest
// entry once the ring is full, and invalidates the memoized array form.
func (c *SnapshotCache) AppendTrade(symbol, payload string) {
	c.mu.Lock()
	r, ok := c.trades[symbol]
	if !ok {
		r = newTradesRing(c.capacity)
		c.trades[symbol] = r
	}
	r.add(payload)
	c.mu.Unlock()
}

// RecentTrades returns the serialized JSON array of the symbol's recent
// trades, oldest first, rebuilding the memoized form if a trade arrived
// since the last read. Symbols with no trades yield "[]".
func (c *SnapshotCache) RecentTrades(symbol string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.trades[symbol]
	if !ok {
		return "[]"
	}
	return r.serialized()
}

// TradeCount reports how many trades are currently buffered for symbol.
func (c *SnapshotCache) TradeCount(symbol string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.trades[symbol]
	if !ok {
		return 0
	}
	return r.count
}
