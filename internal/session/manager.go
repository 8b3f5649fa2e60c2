package session

import (
	"fmt"
	"time"

	"github.com/ducminhle1904/leverage-trade-engine/internal/strategy"
)

// Window is a daily UTC time window. Windows may span midnight (asia).
type Window struct {
	Name  string
	Open  string // "HH:MM"
	Close string // "HH:MM"
}

// Market sessions, UTC. Asia spans midnight.
var Sessions = []Window{
	{Name: "london", Open: "06:00", Close: "15:00"},
	{Name: "newyork", Open: "12:00", Close: "21:00"},
	{Name: "asia", Open: "22:00", Close: "07:00"},
}

// TransitionMargin is the window around a session open or close during
// which entries are suppressed. Spreads widen and liquidity rotates while
// desks hand over.
const TransitionMargin = 5 * time.Minute

// Manager answers session-timing questions for the execution pipeline.
// It is stateless; every answer derives from the passed clock reading.
type Manager struct{}

// NewManager creates a session manager.
func NewManager() *Manager {
	return &Manager{}
}

// minuteOfDay converts a UTC time to minutes since midnight.
func minuteOfDay(t time.Time) int {
	utc := t.UTC()
	return utc.Hour()*60 + utc.Minute()
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) int {
	var h, m int
	fmt.Sscanf(s, "%d:%d", &h, &m)
	return h*60 + m
}

// contains reports whether the window covers the given minute-of-day,
// handling windows that span midnight.
func (w Window) contains(minute int) bool {
	open := parseClock(w.Open)
	close := parseClock(w.Close)
	if open <= close {
		return minute >= open && minute < close
	}
	return minute >= open || minute < close
}

// ActiveSessions returns the names of every session open at the given time.
func (m *Manager) ActiveSessions(now time.Time) []string {
	minute := minuteOfDay(now)
	var active []string
	for _, w := range Sessions {
		if w.contains(minute) {
			active = append(active, w.Name)
		}
	}
	return active
}

// InSession reports whether any session is open at the given time.
func (m *Manager) InSession(now time.Time) bool {
	return len(m.ActiveSessions(now)) > 0
}

// InPrimarySession reports whether london or newyork is open. Leverage is
// capped hard outside the primary sessions because depth thins out.
func (m *Manager) InPrimarySession(now time.Time) bool {
	minute := minuteOfDay(now)
	for _, w := range Sessions {
		if w.Name == "asia" {
			continue
		}
		if w.contains(minute) {
			return true
		}
	}
	return false
}

// InTransition reports whether the time falls within TransitionMargin of
// any session open or close.
func (m *Manager) InTransition(now time.Time) bool {
	minute := minuteOfDay(now)
	margin := int(TransitionMargin.Minutes())
	for _, w := range Sessions {
		for _, edge := range []int{parseClock(w.Open), parseClock(w.Close)} {
			diff := minuteDistance(minute, edge)
			if diff <= margin {
				return true
			}
		}
	}
	return false
}

// minuteDistance is the circular distance between two minutes-of-day.
func minuteDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if d > 720 {
		d = 1440 - d
	}
	return d
}

// InFormationWindow reports whether the strategy's setup is still forming
// at the given time. Entries during formation trade against an incomplete
// pattern. Only brinks_box defines a formation window.
func (m *Manager) InFormationWindow(strategyName string, now time.Time) bool {
	if strategy.SettingsFor(strategyName).Name != strategy.StrategyBrinksBox {
		return false
	}
	minute := minuteOfDay(now)
	w := Window{Open: strategy.BrinksBoxStart, Close: strategy.BrinksBoxEnd}
	return w.contains(minute)
}

// EntryDecision is the session layer's answer for a proposed entry.
type EntryDecision struct {
	Allowed bool
	Reason  string
}

// CheckEntry evaluates session timing for an entry. Block checks run
// before this in the pipeline; here the order is formation window, then
// transition, then session coverage.
func (m *Manager) CheckEntry(strategyName string, now time.Time) EntryDecision {
	if m.InFormationWindow(strategyName, now) {
		return EntryDecision{Reason: fmt.Sprintf(
			"%s formation window (%s-%s GMT) still open",
			strategy.SettingsFor(strategyName).Name, strategy.BrinksBoxStart, strategy.BrinksBoxEnd)}
	}
	if m.InTransition(now) {
		return EntryDecision{Reason: "within transition margin of a session boundary"}
	}
	if !m.InSession(now) {
		return EntryDecision{Reason: "no market session active"}
	}
	return EntryDecision{Allowed: true}
}
