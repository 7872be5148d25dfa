// Package worker implements the distribution worker: it owns the client
// connection lifecycle, the subscribe/unsubscribe control path, and the
// ingestion of upstream data events into its caches and topic router. Each
// worker replica is self-contained; replicas converge by consuming the
// identical event stream, never by talking to each other.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/altonen7/dexstream/internal/cache"
	"github.com/altonen7/dexstream/internal/feed"
	"github.com/altonen7/dexstream/internal/ratelimit"
	"github.com/altonen7/dexstream/internal/registry"
	"github.com/altonen7/dexstream/internal/router"
	"github.com/altonen7/dexstream/internal/subs"
)

// Config wires one worker replica. Zero values fall back to the defaults
// noted per field.
type Config struct {
	ID       int
	Registry *registry.Registry
	Loader   registry.Loader
	Events   <-chan feed.Event
	Markets  *MarketsShare
	Logger   *zap.Logger

	RateLimit         int           // control messages per interval, default 50
	RateLimitInterval time.Duration // default 1s
	TradeCapacity     int           // recent-trades ring size, default 100
	MaxMarkets        int           // markets per control message, default 40
	SendBuffer        int           // outbound frames per connection, default 256
	IdleTimeout       time.Duration // close after this much inbound silence, default 5m
}

type Worker struct {
	id  int
	log *zap.Logger

	reg       *registry.Registry
	loader    registry.Loader
	limiter   *ratelimit.Limiter
	validator *subs.Validator
	cache     *cache.SnapshotCache
	router    *router.Router

	events    <-chan feed.Event
	share     *MarketsShare
	marketsCh <-chan string

	marketsMu   sync.Mutex
	marketsJSON string

	connMu sync.Mutex
	conns  map[string]*Conn

	sendBuffer  int
	idleTimeout time.Duration
	upgrader    websocket.Upgrader

	eventsApplied uint64 // atomic
}

// Stats is a point-in-time view of one replica, served at /v1/stats.
type Stats struct {
	Worker        int    `json:"worker"`
	Connections   int    `json:"connections"`
	Topics        int    `json:"topics"`
	EventsApplied uint64 `json:"eventsApplied"`
}

func New(cfg Config) *Worker {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Loader == nil {
		cfg.Loader = registry.NewStaticLoader(cfg.Registry)
	}
	if cfg.Markets == nil {
		cfg.Markets = NewMarketsShare()
	}
	w := &Worker{
		id:          cfg.ID,
		log:         cfg.Logger.With(zap.Int("worker", cfg.ID)),
		reg:         cfg.Registry,
		loader:      cfg.Loader,
		limiter:     ratelimit.New(cfg.RateLimit, cfg.RateLimitInterval),
		validator:   subs.NewValidator(cfg.Registry, cfg.MaxMarkets),
		cache:       cache.New(cfg.TradeCapacity),
		router:      router.New(),
		events:      cfg.Events,
		share:       cfg.Markets,
		marketsCh:   cfg.Markets.Register(),
		conns:       make(map[string]*Conn),
		sendBuffer:  cfg.SendBuffer,
		idleTimeout: cfg.IdleTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	return w
}

// Close releases the worker's background resources (the rate-limiter window
// ticker). Run does this on exit; call Close directly when a worker is used
// without Run, as tests do. Safe to call more than once.
func (w *Worker) Close() {
	w.limiter.Stop()
}

// Run consumes upstream events until ctx is canceled. Call once per worker.
func (w *Worker) Run(ctx context.Context) {
	defer w.limiter.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-w.marketsCh:
			w.setMarketsJSON(v)
		case ev, ok := <-w.events:
			if !ok {
				return
			}
			w.apply(ev)
		}
	}
}

// OnEvent applies one upstream data event directly, bypassing the event
// channel. The in-process producer and tests use this entry point.
func (w *Worker) OnEvent(ev feed.Event) {
	w.apply(ev)
}

// apply updates the caches and fans the event out when it is flagged for
// delivery. Events for unregistered symbols are applied as-is; they can
// never fail the worker.
func (w *Worker) apply(ev feed.Event) {
	atomic.AddUint64(&w.eventsApplied, 1)
	eventsTotal.WithLabelValues(string(ev.Type)).Inc()

	if feed.Cacheable(ev.Type) {
		w.cache.PutSnapshot(ev.Symbol, ev.Type, ev.Payload)
	}
	if ev.Type == feed.TypeTrade {
		w.cache.AppendTrade(ev.Symbol, ev.Payload)
	}
	if ev.Publish {
		start := time.Now()
		n := w.router.Publish(ev.Topic(), ev.Payload)
		publishLatency.Observe(time.Since(start).Seconds())
		messagesDelivered.Add(float64(n))
	}
}

// ServeWS upgrades an HTTP request and hands the connection to this worker.
func (w *Worker) ServeWS(rw http.ResponseWriter, r *http.Request) {
	sock, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &Conn{
		id:     uuid.NewString(),
		sock:   sock,
		send:   make(chan []byte, w.sendBuffer),
		worker: w,
		log:    w.log,
		done:   make(chan struct{}),
	}
	w.connMu.Lock()
	w.conns[c.id] = c
	w.connMu.Unlock()
	wsConnections.Inc()
	w.log.Debug("connection opened", zap.String("conn", c.id))

	go c.writePump(w.idleTimeout * 9 / 10)
	go c.readPump(w.idleTimeout)
}

// dropConn tears one connection down: every topic subscription, the rate
// limiter counters, and the worker's own bookkeeping.
func (w *Worker) dropConn(c *Conn) {
	c.shutdown()
	w.router.Drop(c)
	w.limiter.Forget(c.id)
	w.connMu.Lock()
	_, present := w.conns[c.id]
	delete(w.conns, c.id)
	w.connMu.Unlock()
	if present {
		wsConnections.Dec()
		w.log.Debug("connection closed", zap.String("conn", c.id))
	}
}

// handleControl runs one control frame through the rate limiter, the
// validator, and the router. Validation failures answer on-connection and
// leave it open; an unexpected panic closes only this connection.
func (w *Worker) handleControl(c *Conn, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("control message handling failed",
				zap.Any("panic", r), zap.String("conn", c.id))
			c.closeAbnormal("internal error while processing your request")
		}
	}()

	if !w.limiter.Allow(c.id) {
		rateLimitedTotal.Inc()
		c.sendError(fmt.Sprintf("Rate limit exceeded: at most %d messages per %s allowed.",
			w.limiter.Limit(), w.limiter.Interval()))
		return
	}

	req, verr := w.validator.Validate(raw)
	if verr != nil {
		c.sendError(verr.Message)
		return
	}

	confType := "subscribed"
	if req.Op == subs.OpUnsubscribe {
		confType = "unsubscribed"
	}
	c.sendJSON(confirmation{
		Type:      confType,
		Channel:   req.Channel,
		Markets:   req.Markets,
		Timestamp: time.Now().UTC(),
	})

	for _, dt := range subs.ChannelTypes(req.Channel) {
		for _, market := range req.Markets {
			topic := feed.Topic(dt, market)
			switch req.Op {
			case subs.OpSubscribe:
				w.router.Subscribe(c, topic)
				if feed.Replayable(dt) {
					if payload, ok := w.cache.Snapshot(market, dt); ok {
						c.Deliver(payload)
					}
				}
			case subs.OpUnsubscribe:
				w.router.Unsubscribe(c, topic)
			}
		}
	}
}

// MarketsJSON returns the memoized markets-list response, invoking the
// metadata loader on first use. Loading is idempotent and safe to run
// concurrently; whichever result lands first is shared with sibling
// workers.
func (w *Worker) MarketsJSON(ctx context.Context) (string, error) {
	w.marketsMu.Lock()
	if w.marketsJSON != "" {
		v := w.marketsJSON
		w.marketsMu.Unlock()
		return v, nil
	}
	w.marketsMu.Unlock()

	if v, ok := w.share.Value(); ok {
		w.setMarketsJSON(v)
		return v, nil
	}

	markets, err := w.loader.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load market metadata: %w", err)
	}
	buf, err := json.Marshal(markets)
	if err != nil {
		return "", fmt.Errorf("encode market metadata: %w", err)
	}
	v := string(buf)
	w.setMarketsJSON(v)
	w.share.Publish(v)
	return v, nil
}

func (w *Worker) setMarketsJSON(v string) {
	w.marketsMu.Lock()
	if w.marketsJSON == "" {
		w.marketsJSON = v
	}
	w.marketsMu.Unlock()
}

// RecentTrades returns the serialized recent-trades array for symbol.
func (w *Worker) RecentTrades(symbol string) string {
	return w.cache.RecentTrades(symbol)
}

// ValidateMarket reuses the control-message market validation for HTTP.
func (w *Worker) ValidateMarket(symbol string) *subs.Error {
	return w.validator.ValidateMarket(symbol)
}

func (w *Worker) Stats() Stats {
	w.connMu.Lock()
	conns := len(w.conns)
	w.connMu.Unlock()
	return Stats{
		Worker:        w.id,
		Connections:   conns,
		Topics:        w.router.Topics(),
		EventsApplied: atomic.LoadUint64(&w.eventsApplied),
	}
}
