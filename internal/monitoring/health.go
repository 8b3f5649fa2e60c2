package monitoring

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// healthWindow is the sliding window over which errors and fills count
// toward system health.
const healthWindow = 5 * time.Minute

// orderResult is one submission attempt's outcome inside the window.
type orderResult struct {
	at time.Time
	ok bool
}

// HealthTracker aggregates runtime health signals: venue latency, error
// bursts and fill success. The circuit breaker reads its snapshot; the
// health endpoint serves it.
type HealthTracker struct {
	mu          sync.Mutex
	errors      []time.Time
	orders      []orderResult
	lastLatency time.Duration
	latencyAt   time.Time
}

// NewHealthTracker creates an empty tracker.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{}
}

// RecordError notes a component error.
func (h *HealthTracker) RecordError() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, time.Now())
	h.trimLocked()
}

// RecordOrderResult notes a submission attempt and whether it was accepted.
func (h *HealthTracker) RecordOrderResult(ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.orders = append(h.orders, orderResult{at: time.Now(), ok: ok})
	h.trimLocked()
}

// RecordAPILatency notes the most recent venue round trip.
func (h *HealthTracker) RecordAPILatency(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastLatency = d
	h.latencyAt = time.Now()
}

// trimLocked drops entries older than the window. Caller holds the lock.
func (h *HealthTracker) trimLocked() {
	cutoff := time.Now().Add(-healthWindow)
	kept := h.errors[:0]
	for _, t := range h.errors {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	h.errors = kept

	keptOrders := h.orders[:0]
	for _, o := range h.orders {
		if o.at.After(cutoff) {
			keptOrders = append(keptOrders, o)
		}
	}
	h.orders = keptOrders
}

// Snapshot is a point-in-time health reading.
type Snapshot struct {
	RecentErrors    int           `json:"recent_errors"`
	FillAttempts    int           `json:"fill_attempts"`
	FillSuccessRate float64       `json:"fill_success_rate"`
	APILatency      time.Duration `json:"api_latency_ns"`
	APILatencyKnown bool          `json:"api_latency_known"`
}

// Snapshot returns the current health reading. With no submissions in the
// window the fill success rate reads 1.
func (h *HealthTracker) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trimLocked()

	snap := Snapshot{
		RecentErrors:    len(h.errors),
		FillAttempts:    len(h.orders),
		FillSuccessRate: 1,
		APILatency:      h.lastLatency,
		APILatencyKnown: !h.latencyAt.IsZero() && time.Since(h.latencyAt) < healthWindow,
	}
	if len(h.orders) > 0 {
		var ok int
		for _, o := range h.orders {
			if o.ok {
				ok++
			}
		}
		snap.FillSuccessRate = float64(ok) / float64(len(h.orders))
	}
	return snap
}

// StatusFunc supplies extra status fields for the health endpoint.
type StatusFunc func() map[string]interface{}

// ServeHealth exposes /health on the given port. Blocks.
func (h *HealthTracker) ServeHealth(port int, extra StatusFunc) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]interface{}{
			"health": h.Snapshot(),
			"time":   time.Now().UTC(),
		}
		if extra != nil {
			for k, v := range extra() {
				payload[k] = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(payload)
	})
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
