package notifications

import "fmt"

// Severity classifies an alert for routing and formatting.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notifier delivers operator alerts. Delivery is fire-and-forget: a failed
// alert is logged by the caller but never blocks or fails the trading path.
type Notifier interface {
	Notify(severity Severity, title, message string) error
}

// Multi fans an alert out to several notifiers, returning the last error.
type Multi []Notifier

func (m Multi) Notify(severity Severity, title, message string) error {
	var lastErr error
	for _, n := range m {
		if err := n.Notify(severity, title, message); err != nil {
			lastErr = fmt.Errorf("notify failed: %w", err)
		}
	}
	return lastErr
}
