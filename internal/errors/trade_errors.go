package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Outcome classifies why a signal did not become (or stopped being) a
// position. Validation outcomes are expected results of normal operation
// and are returned as values, never panicked.
type Outcome string

const (
	// Expected, terminal validation outcomes. Logged but not alerted.
	OutcomeInvalidSignal   Outcome = "INVALID_SIGNAL"
	OutcomeDuplicateSignal Outcome = "DUPLICATE_SIGNAL"
	OutcomeSessionBlocked  Outcome = "SESSION_BLOCKED"
	OutcomeRiskRejected    Outcome = "RISK_REJECTED"
	OutcomeNoTradeableSize Outcome = "NO_TRADEABLE_SIZE"

	// Failures that warrant an operator alert.
	OutcomeExecutionFailed      Outcome = "EXECUTION_FAILED"
	OutcomeModificationRejected Outcome = "MODIFICATION_REJECTED"
	OutcomeSystemUnstable       Outcome = "SYSTEM_UNSTABLE"
)

// TradeError is a categorized engine error with enough context to log,
// aggregate, and decide whether to alert. Expected validation outcomes and
// hard failures share the type so callers distinguish them by Outcome,
// not by error-string inspection.
type TradeError struct {
	Outcome    Outcome
	Component  string
	Operation  string
	Message    string
	Underlying error

	// FailedChecks carries the full risk-check failure list for
	// OutcomeRiskRejected; empty otherwise.
	FailedChecks []string

	Context map[string]interface{}
}

// Error implements the error interface.
func (e *TradeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s:%s] %s: %s", e.Outcome, e.Component, e.Operation, e.Message)
	if len(e.FailedChecks) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.FailedChecks, "; "))
	}
	if e.Underlying != nil {
		fmt.Fprintf(&b, ": %v", e.Underlying)
	}
	return b.String()
}

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *TradeError) Unwrap() error {
	return e.Underlying
}

// IsExpectedOutcome reports whether the error is a normal validation
// rejection rather than a system failure. Expected outcomes are logged,
// never alerted.
func (e *TradeError) IsExpectedOutcome() bool {
	switch e.Outcome {
	case OutcomeInvalidSignal, OutcomeDuplicateSignal, OutcomeSessionBlocked,
		OutcomeRiskRejected, OutcomeNoTradeableSize:
		return true
	}
	return false
}

// ShouldAlert reports whether the notification collaborator should be told.
func (e *TradeError) ShouldAlert() bool {
	return e.Outcome == OutcomeExecutionFailed || e.Outcome == OutcomeSystemUnstable
}

// WithContext attaches a key/value pair for structured logging.
func (e *TradeError) WithContext(key string, value interface{}) *TradeError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a TradeError with the given outcome.
func New(outcome Outcome, component, operation, message string) *TradeError {
	return &TradeError{
		Outcome:   outcome,
		Component: component,
		Operation: operation,
		Message:   message,
	}
}

// Wrap attaches outcome and context to an underlying error.
func Wrap(err error, outcome Outcome, component, operation string) *TradeError {
	if err == nil {
		return nil
	}
	return &TradeError{
		Outcome:    outcome,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
	}
}

// NewInvalidSignal builds the structural-validation rejection.
func NewInvalidSignal(component, message string) *TradeError {
	return New(OutcomeInvalidSignal, component, "validate", message)
}

// NewSessionBlocked builds the session/window rejection.
func NewSessionBlocked(component, message string) *TradeError {
	return New(OutcomeSessionBlocked, component, "session_check", message)
}

// NewRiskRejected builds the risk-gate rejection carrying every failed check.
func NewRiskRejected(component string, failedChecks []string) *TradeError {
	e := New(OutcomeRiskRejected, component, "risk_check", "risk validation failed")
	e.FailedChecks = failedChecks
	return e
}

// NewNoTradeableSize builds the zero-quantity sizing rejection.
func NewNoTradeableSize(component, message string) *TradeError {
	return New(OutcomeNoTradeableSize, component, "sizing", message)
}

// NewExecutionFailed wraps an exchange-level submission failure.
func NewExecutionFailed(component string, err error) *TradeError {
	return Wrap(err, OutcomeExecutionFailed, component, "submit_order")
}

// NewModificationRejected builds the position-modification rejection.
func NewModificationRejected(component, message string) *TradeError {
	return New(OutcomeModificationRejected, component, "modify_position", message)
}

// NewSystemUnstable builds the circuit-breaker precondition failure.
func NewSystemUnstable(component, message string) *TradeError {
	return New(OutcomeSystemUnstable, component, "stability_check", message)
}

// AsTradeError extracts a *TradeError from an error chain.
func AsTradeError(err error) (*TradeError, bool) {
	var te *TradeError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// OutcomeOf returns the outcome of an error, or OutcomeExecutionFailed for
// anything that is not a TradeError (unknown failures are treated as the
// alert-worthy kind, not silently downgraded).
func OutcomeOf(err error) Outcome {
	if te, ok := AsTradeError(err); ok {
		return te.Outcome
	}
	return OutcomeExecutionFailed
}
