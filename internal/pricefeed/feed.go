package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ducminhle1904/leverage-trade-engine/internal/logger"
	"github.com/ducminhle1904/leverage-trade-engine/internal/notifications"
	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

// State is the feed connection state.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateSubscribed   State = "SUBSCRIBED"
	StateDegraded     State = "DEGRADED"
)

// Conn is the subset of a websocket connection the feed drives. It exists
// so tests can run the state machine against a scripted connection.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a websocket connection to the given URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

// defaultDialer connects with gorilla's production dialer.
func defaultDialer(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// RESTPricer is the fallback price source used while the stream is stale
// or down.
type RESTPricer interface {
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
}

// Config tunes the feed's heartbeat and reconnect behavior.
type Config struct {
	URL              string
	Symbols          []string
	HeartbeatEvery   time.Duration // ping cadence
	HeartbeatTimeout time.Duration // silence before the link is declared dead
	ReconnectBackoff time.Duration // wait before redialing
	StaleTickAfter   time.Duration // cached tick age that forces REST fallback
}

// Feed maintains a live price stream with automatic reconnection. Reads
// never block on the network: LastPrice serves the cached tick, and only
// falls back to one REST call when the cache is stale.
type Feed struct {
	cfg    Config
	dial   Dialer
	rest   RESTPricer
	notify notifications.Notifier
	log    *logger.Logger

	mu      sync.RWMutex
	state   State
	ticks   map[string]types.PriceTick
	lastMsg time.Time

	conn    Conn
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a feed for the given symbols. It does not connect; call Start.
func New(cfg Config, rest RESTPricer, log *logger.Logger) *Feed {
	return &Feed{
		cfg:   cfg,
		dial:  defaultDialer,
		rest:  rest,
		log:   log,
		state: StateDisconnected,
		ticks: make(map[string]types.PriceTick),
	}
}

// WithDialer replaces the connection dialer. Used by tests.
func (f *Feed) WithDialer(dial Dialer) *Feed {
	f.dial = dial
	return f
}

// WithNotifier adds operator alerts for connection-state changes.
func (f *Feed) WithNotifier(n notifications.Notifier) *Feed {
	f.notify = n
	return f
}

// State returns the current connection state.
func (f *Feed) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

func (f *Feed) setState(s State) {
	f.mu.Lock()
	prev := f.state
	f.state = s
	f.mu.Unlock()
	if prev == s {
		return
	}
	if f.log != nil {
		f.log.Status("price feed %s -> %s", prev, s)
	}
	f.announce(prev, s)
}

// announce alerts the operator when the stream comes up or drops. Redial
// churn (Connecting -> Disconnected) stays quiet; delivery runs off the
// hot path and a failed alert only logs.
func (f *Feed) announce(prev, s State) {
	if f.notify == nil {
		return
	}

	var severity notifications.Severity
	var title string
	switch {
	case s == StateSubscribed && prev == StateConnecting:
		severity, title = notifications.SeverityInfo, "Price feed connected"
	case s == StateDisconnected && (prev == StateSubscribed || prev == StateDegraded):
		severity, title = notifications.SeverityWarning, "Price feed disconnected"
	default:
		return
	}

	go func() {
		message := fmt.Sprintf("connection state %s -> %s", prev, s)
		if err := f.notify.Notify(severity, title, message); err != nil && f.log != nil {
			f.log.Warning("alert delivery failed: %v", err)
		}
	}()
}

// Start runs the connect/read/reconnect loop until the context is
// cancelled. It returns immediately; the loop runs in its own goroutine.
func (f *Feed) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})

	go func() {
		defer close(f.done)
		for {
			if ctx.Err() != nil {
				f.setState(StateDisconnected)
				return
			}

			if err := f.runOnce(ctx); err != nil && f.log != nil {
				f.log.Warning("price feed session ended: %v", err)
			}
			f.setState(StateDisconnected)

			select {
			case <-ctx.Done():
				return
			case <-time.After(f.cfg.ReconnectBackoff):
			}
		}
	}()
}

// Stop tears the feed down and waits for the loop to exit.
func (f *Feed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	if f.done != nil {
		<-f.done
	}
}

// runOnce dials, subscribes, and pumps messages until the connection dies
// or goes silent past the heartbeat timeout.
func (f *Feed) runOnce(ctx context.Context) error {
	// Connection-scoped context so the reader goroutine dies with the
	// session, not with the feed.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	f.setState(StateConnecting)

	conn, err := f.dial(ctx, f.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	f.mu.Lock()
	f.conn = conn
	f.lastMsg = time.Now()
	f.mu.Unlock()
	defer conn.Close()

	if err := f.subscribe(conn); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}
	f.setState(StateSubscribed)

	// Reader pumps messages; the main loop owns heartbeats and liveness.
	msgs := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	heartbeat := time.NewTicker(f.cfg.HeartbeatEvery)
	defer heartbeat.Stop()
	liveness := time.NewTicker(f.cfg.HeartbeatEvery)
	defer liveness.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErr:
			return fmt.Errorf("read failed: %w", err)

		case data := <-msgs:
			f.mu.Lock()
			f.lastMsg = time.Now()
			f.mu.Unlock()
			f.handleMessage(data)
			if f.State() == StateDegraded {
				f.setState(StateSubscribed)
			}

		case <-heartbeat.C:
			ping := map[string]interface{}{"op": "ping"}
			payload, _ := json.Marshal(ping)
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}

		case <-liveness.C:
			f.mu.RLock()
			silent := time.Since(f.lastMsg)
			f.mu.RUnlock()
			if silent > f.cfg.HeartbeatTimeout {
				return fmt.Errorf("no messages for %s, link presumed dead", silent.Round(time.Second))
			}
			if silent > f.cfg.HeartbeatEvery && f.State() == StateSubscribed {
				f.setState(StateDegraded)
			}
		}
	}
}

// subscribe sends the ticker subscription for every configured symbol.
func (f *Feed) subscribe(conn Conn) error {
	args := make([]string, 0, len(f.cfg.Symbols))
	for _, symbol := range f.cfg.Symbols {
		args = append(args, "tickers."+symbol)
	}
	sub := map[string]interface{}{
		"op":   "subscribe",
		"args": args,
	}
	payload, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// tickerMessage is the stream's ticker push payload.
type tickerMessage struct {
	Topic string `json:"topic"`
	Data  struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
	} `json:"data"`
}

// handleMessage updates the price cache from a ticker push. Pong replies
// and subscription acks carry no topic and are counted as liveness only.
func (f *Feed) handleMessage(data []byte) {
	var msg tickerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Topic == "" || msg.Data.Symbol == "" {
		return
	}

	var price float64
	if _, err := fmt.Sscanf(msg.Data.LastPrice, "%f", &price); err != nil || price <= 0 {
		return
	}

	f.mu.Lock()
	f.ticks[msg.Data.Symbol] = types.PriceTick{
		Symbol:    msg.Data.Symbol,
		Price:     price,
		ArrivedAt: time.Now(),
	}
	f.mu.Unlock()
}

// LastPrice returns the most recent price for the symbol. The cached
// stream tick is served when fresh; otherwise one REST lookup stands in.
// The call never blocks on the stream.
func (f *Feed) LastPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.RLock()
	tick, ok := f.ticks[symbol]
	f.mu.RUnlock()

	if ok && !tick.IsStale(f.cfg.StaleTickAfter) {
		return tick.Price, nil
	}

	if f.rest == nil {
		if ok {
			return tick.Price, nil
		}
		return 0, fmt.Errorf("no price available for %s", symbol)
	}

	price, err := f.rest.GetLatestPrice(ctx, symbol)
	if err != nil {
		// A stale tick beats no price at all.
		if ok {
			return tick.Price, nil
		}
		return 0, fmt.Errorf("no price available for %s: %w", symbol, err)
	}
	return price, nil
}

// InjectTick stores a tick directly. Used by tests and by the REST
// fallback warm-up at startup.
func (f *Feed) InjectTick(tick types.PriceTick) {
	f.mu.Lock()
	f.ticks[tick.Symbol] = tick
	f.mu.Unlock()
}
