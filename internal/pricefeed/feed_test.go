package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/leverage-trade-engine/internal/notifications"
	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

// fakeConn is a scripted websocket connection. Messages pushed to incoming
// are returned from ReadMessage; closing the conn fails the pending read.
type fakeConn struct {
	incoming chan []byte
	writes   chan []byte
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan []byte, 16),
		writes:   make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.incoming:
		return 1, data, nil
	case <-c.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	c.writes <- data
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) pushTicker(symbol, price string) {
	msg := map[string]interface{}{
		"topic": "tickers." + symbol,
		"data":  map[string]string{"symbol": symbol, "lastPrice": price},
	}
	payload, _ := json.Marshal(msg)
	c.incoming <- payload
}

type fakeREST struct {
	price float64
	err   error
	calls atomic.Int64
}

func (r *fakeREST) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	r.calls.Add(1)
	return r.price, r.err
}

func testConfig() Config {
	return Config{
		URL:              "wss://example.invalid/stream",
		Symbols:          []string{"BTCUSDT"},
		HeartbeatEvery:   20 * time.Millisecond,
		HeartbeatTimeout: 40 * time.Millisecond,
		ReconnectBackoff: 20 * time.Millisecond,
		StaleTickAfter:   time.Minute,
	}
}

func waitForState(t *testing.T, f *Feed, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if f.State() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("feed never reached state %s (currently %s)", want, f.State())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestFeedSubscribesAndCachesTicks(t *testing.T) {
	conn := newFakeConn()
	feed := New(testConfig(), nil, nil).WithDialer(
		func(ctx context.Context, url string) (Conn, error) { return conn, nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed.Start(ctx)
	defer feed.Stop()

	waitForState(t, feed, StateSubscribed)

	// First write is the subscription request.
	select {
	case payload := <-conn.writes:
		var sub struct {
			Op   string   `json:"op"`
			Args []string `json:"args"`
		}
		require.NoError(t, json.Unmarshal(payload, &sub))
		assert.Equal(t, "subscribe", sub.Op)
		assert.Equal(t, []string{"tickers.BTCUSDT"}, sub.Args)
	case <-time.After(time.Second):
		t.Fatal("no subscription written")
	}

	conn.pushTicker("BTCUSDT", "50000.5")

	require.Eventually(t, func() bool {
		price, err := feed.LastPrice(context.Background(), "BTCUSDT")
		return err == nil && price == 50000.5
	}, time.Second, time.Millisecond)
}

// fakeNotifier records alerts by title.
type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (n *fakeNotifier) Notify(severity notifications.Severity, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	return nil
}

func (n *fakeNotifier) count(title string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	var c int
	for _, t := range n.titles {
		if t == title {
			c++
		}
	}
	return c
}

func TestFeedAlertsOnConnectAndDisconnect(t *testing.T) {
	notifier := &fakeNotifier{}
	conn := newFakeConn()
	feed := New(testConfig(), nil, nil).
		WithDialer(func(ctx context.Context, url string) (Conn, error) { return conn, nil }).
		WithNotifier(notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed.Start(ctx)
	defer feed.Stop()

	waitForState(t, feed, StateSubscribed)
	require.Eventually(t, func() bool {
		return notifier.count("Price feed connected") >= 1
	}, time.Second, time.Millisecond)

	// Killing the link must raise the disconnect alert.
	conn.Close()
	require.Eventually(t, func() bool {
		return notifier.count("Price feed disconnected") >= 1
	}, time.Second, time.Millisecond)
}

func TestFeedStaysQuietWhileRedialing(t *testing.T) {
	notifier := &fakeNotifier{}
	var dials atomic.Int64
	dialer := func(ctx context.Context, url string) (Conn, error) {
		dials.Add(1)
		return nil, errors.New("refused")
	}

	feed := New(testConfig(), nil, nil).WithDialer(dialer).WithNotifier(notifier)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed.Start(ctx)
	defer feed.Stop()

	// A link that never came up has nothing to announce: dial churn must
	// not page the operator.
	require.Eventually(t, func() bool {
		return dials.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, notifier.count("Price feed disconnected"))
	assert.Zero(t, notifier.count("Price feed connected"))
}

func TestFeedSilentLinkDisconnectsAndRedials(t *testing.T) {
	var dials atomic.Int64
	dialer := func(ctx context.Context, url string) (Conn, error) {
		dials.Add(1)
		return newFakeConn(), nil
	}

	feed := New(testConfig(), nil, nil).WithDialer(dialer)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed.Start(ctx)
	defer feed.Stop()

	// A connection that never answers pings must be declared dead after
	// the heartbeat timeout and redialed after the backoff.
	require.Eventually(t, func() bool {
		return dials.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestFeedDialFailureBacksOffAndRetries(t *testing.T) {
	var dials atomic.Int64
	dialer := func(ctx context.Context, url string) (Conn, error) {
		dials.Add(1)
		return nil, errors.New("refused")
	}

	feed := New(testConfig(), nil, nil).WithDialer(dialer)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed.Start(ctx)
	defer feed.Stop()

	require.Eventually(t, func() bool {
		return dials.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateDisconnected, feed.State())
}

func TestLastPriceFallsBackToRESTWhenStale(t *testing.T) {
	rest := &fakeREST{price: 42000}
	cfg := testConfig()
	cfg.StaleTickAfter = time.Millisecond

	feed := New(cfg, rest, nil)
	feed.InjectTick(types.PriceTick{
		Symbol:    "BTCUSDT",
		Price:     41000,
		ArrivedAt: time.Now().Add(-time.Second),
	})

	price, err := feed.LastPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 42000.0, price)
	assert.Equal(t, int64(1), rest.calls.Load())
}

func TestLastPriceServesStaleTickWhenRESTFails(t *testing.T) {
	rest := &fakeREST{err: errors.New("venue down")}
	cfg := testConfig()
	cfg.StaleTickAfter = time.Millisecond

	feed := New(cfg, rest, nil)
	feed.InjectTick(types.PriceTick{
		Symbol:    "BTCUSDT",
		Price:     41000,
		ArrivedAt: time.Now().Add(-time.Second),
	})

	price, err := feed.LastPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 41000.0, price)
}

func TestLastPriceNoDataAnywhere(t *testing.T) {
	rest := &fakeREST{err: errors.New("venue down")}
	feed := New(testConfig(), rest, nil)

	_, err := feed.LastPrice(context.Background(), "BTCUSDT")
	assert.Error(t, err)
}
