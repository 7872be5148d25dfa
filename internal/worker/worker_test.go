package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altonen7/dexstream/internal/feed"
	"github.com/altonen7/dexstream/internal/registry"
)

func testRegistry() *registry.Registry {
	return registry.New([]registry.Market{
		{Symbol: "BTC/USDT"},
		{Symbol: "ETH/USDT"},
	})
}

func newTestWorker(t *testing.T, cfg Config) *Worker {
	t.Helper()
	if cfg.Registry == nil {
		cfg.Registry = testRegistry()
	}
	w := New(cfg)
	t.Cleanup(w.limiter.Stop)
	return w
}

// dial connects a real websocket client to the worker.
func dial(t *testing.T, w *Worker) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(w.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func readRaw(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(raw)
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

func TestSubscribeConfirmationAndDelivery(t *testing.T) {
	w := newTestWorker(t, Config{})
	conn := dial(t, w)

	send(t, conn, `{"op":"subscribe","channel":"trades","markets":["BTC/USDT"]}`)

	conf := readFrame(t, conn)
	assert.Equal(t, "subscribed", conf["type"])
	assert.Equal(t, "trades", conf["channel"])
	assert.Equal(t, []interface{}{"BTC/USDT"}, conf["markets"])
	assert.NotEmpty(t, conf["timestamp"])

	w.OnEvent(feed.Event{
		Type: feed.TypeTrade, Symbol: "BTC/USDT",
		Payload: `{"price":"100.5","size":"2"}`, Publish: true,
	})

	assert.Equal(t, `{"price":"100.5","size":"2"}`, readRaw(t, conn),
		"data payloads are forwarded verbatim")
}

func TestSubscribeTradesNeverReplaysCachedState(t *testing.T) {
	w := newTestWorker(t, Config{})
	// Seed trade history before the client connects.
	w.OnEvent(feed.Event{Type: feed.TypeTrade, Symbol: "BTC/USDT", Payload: `{"id":1}`, Publish: false})

	conn := dial(t, w)
	send(t, conn, `{"op":"subscribe","channel":"trades","markets":["BTC/USDT"]}`)
	conf := readFrame(t, conn)
	require.Equal(t, "subscribed", conf["type"])

	// Nothing besides the confirmation may arrive.
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "no immediate push for trade subscriptions")
}

func TestSubscribeQuoteReplaysCachedSnapshot(t *testing.T) {
	w := newTestWorker(t, Config{})
	w.OnEvent(feed.Event{Type: feed.TypeQuote, Symbol: "ETH/USDT", Payload: `{"bid":"1"}`, Publish: false})

	conn := dial(t, w)
	send(t, conn, `{"op":"subscribe","channel":"quotes","markets":["ETH/USDT"]}`)

	conf := readFrame(t, conn)
	require.Equal(t, "subscribed", conf["type"])
	assert.Equal(t, `{"bid":"1"}`, readRaw(t, conn), "cached quote replayed on subscribe")
}

func TestSubscribeQuoteNoReplayWithoutCache(t *testing.T) {
	w := newTestWorker(t, Config{})
	conn := dial(t, w)
	send(t, conn, `{"op":"subscribe","channel":"quotes","markets":["ETH/USDT"]}`)
	require.Equal(t, "subscribed", readFrame(t, conn)["type"])

	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "nothing pushed when no snapshot is cached")
}

func TestInvalidMarketKeepsConnectionOpen(t *testing.T) {
	w := newTestWorker(t, Config{})
	conn := dial(t, w)

	send(t, conn, `{"op":"subscribe","channel":"trades","markets":["BTC/XXX"]}`)
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	msg := frame["message"].(string)
	assert.Contains(t, msg, `"BTC/XXX"`)
	assert.Contains(t, msg, "BTC/USDT, ETH/USDT")

	// The connection stays usable.
	send(t, conn, `{"op":"subscribe","channel":"trades","markets":["BTC/USDT"]}`)
	assert.Equal(t, "subscribed", readFrame(t, conn)["type"])
}

func TestRateLimitErrorNamesLimit(t *testing.T) {
	w := newTestWorker(t, Config{RateLimit: 2, RateLimitInterval: time.Hour})
	conn := dial(t, w)

	send(t, conn, `{"op":"subscribe","channel":"trades","markets":["BTC/USDT"]}`)
	require.Equal(t, "subscribed", readFrame(t, conn)["type"])
	send(t, conn, `{"op":"subscribe","channel":"quotes","markets":["BTC/USDT"]}`)
	require.Equal(t, "subscribed", readFrame(t, conn)["type"])

	send(t, conn, `{"op":"subscribe","channel":"level2","markets":["BTC/USDT"]}`)
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Contains(t, frame["message"].(string), "2")
	assert.Contains(t, frame["message"].(string), "Rate limit")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	w := newTestWorker(t, Config{})
	conn := dial(t, w)

	send(t, conn, `{"op":"subscribe","channel":"trades","markets":["BTC/USDT"]}`)
	require.Equal(t, "subscribed", readFrame(t, conn)["type"])

	send(t, conn, `{"op":"unsubscribe","channel":"trades","markets":["BTC/USDT"]}`)
	conf := readFrame(t, conn)
	require.Equal(t, "unsubscribed", conf["type"])

	w.OnEvent(feed.Event{Type: feed.TypeTrade, Symbol: "BTC/USDT", Payload: `{"id":9}`, Publish: true})

	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "no delivery after unsubscribe")
}

func TestCacheOnlyEventNotPublished(t *testing.T) {
	w := newTestWorker(t, Config{})
	conn := dial(t, w)

	send(t, conn, `{"op":"subscribe","channel":"quotes","markets":["BTC/USDT"]}`)
	require.Equal(t, "subscribed", readFrame(t, conn)["type"])

	w.OnEvent(feed.Event{Type: feed.TypeQuote, Symbol: "BTC/USDT", Payload: `{"bid":"7"}`, Publish: false})

	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "publish=false events are cache-only")

	p, ok := w.cache.Snapshot("BTC/USDT", feed.TypeQuote)
	require.True(t, ok)
	assert.Equal(t, `{"bid":"7"}`, p)
}

func TestEventForUnknownSymbolTolerated(t *testing.T) {
	w := newTestWorker(t, Config{})
	assert.NotPanics(t, func() {
		w.OnEvent(feed.Event{Type: feed.TypeTrade, Symbol: "NOT/REGISTERED", Payload: `{}`, Publish: true})
	})
	assert.Equal(t, `[{}]`, w.RecentTrades("NOT/REGISTERED"))
}

func TestDisconnectCleansSubscriptions(t *testing.T) {
	w := newTestWorker(t, Config{})
	conn := dial(t, w)

	send(t, conn, `{"op":"subscribe","channel":"trades","markets":["BTC/USDT","ETH/USDT"]}`)
	require.Equal(t, "subscribed", readFrame(t, conn)["type"])
	require.Eventually(t, func() bool { return w.router.Topics() == 2 }, time.Second, 10*time.Millisecond)

	conn.Close()

	assert.Eventually(t, func() bool { return w.router.Topics() == 0 }, 2*time.Second, 10*time.Millisecond,
		"teardown must drop the connection from every topic")
	assert.Eventually(t, func() bool { return w.Stats().Connections == 0 }, 2*time.Second, 10*time.Millisecond)
}

type countingLoader struct {
	reg   *registry.Registry
	calls int
	fail  bool
}

func (l *countingLoader) Load(ctx context.Context) ([]registry.Market, error) {
	l.calls++
	if l.fail {
		return nil, errMetadataDown
	}
	return l.reg.Markets(), nil
}

var errMetadataDown = errors.New("metadata endpoint unavailable")

func TestMarketsJSONLoaderFailureSurfaces(t *testing.T) {
	reg := testRegistry()
	loader := &countingLoader{reg: reg, fail: true}
	w := newTestWorker(t, Config{Registry: reg, Loader: loader})

	_, err := w.MarketsJSON(t.Context())
	require.Error(t, err)

	// A later call retries instead of caching the failure.
	loader.fail = false
	v, err := w.MarketsJSON(t.Context())
	require.NoError(t, err)
	assert.Contains(t, v, "BTC/USDT")
}

func TestMarketsShareDeliversAtMostOnce(t *testing.T) {
	s := NewMarketsShare()
	ch := s.Register()

	s.Publish(`[1]`)
	s.Publish(`[2]`) // first write wins

	assert.Equal(t, `[1]`, <-ch)
	select {
	case v := <-ch:
		t.Fatalf("unexpected second delivery %q", v)
	default:
	}

	// Late registration sees the value immediately.
	late := s.Register()
	assert.Equal(t, `[1]`, <-late)

	v, ok := s.Value()
	assert.True(t, ok)
	assert.Equal(t, `[1]`, v)
}

func TestMarketsJSONMemoizedAndShared(t *testing.T) {
	share := NewMarketsShare()
	reg := testRegistry()
	loader := &countingLoader{reg: reg}

	a := newTestWorker(t, Config{ID: 0, Registry: reg, Loader: loader, Markets: share})
	b := newTestWorker(t, Config{ID: 1, Registry: reg, Loader: loader, Markets: share})

	v1, err := a.MarketsJSON(t.Context())
	require.NoError(t, err)
	assert.Contains(t, v1, "BTC/USDT")

	// The sibling picks the shared value up without loading again.
	v2, err := b.MarketsJSON(t.Context())
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, loader.calls, "metadata fetched once process-wide")
}
