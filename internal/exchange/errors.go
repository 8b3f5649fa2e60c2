package exchange

import "fmt"

// ExchangeError is a venue rejection or transport failure with enough
// detail to decide whether a retry would help. The executor never retries
// order submissions; Retryable exists for read paths only.
type ExchangeError struct {
	Venue     string
	Operation string
	Code      int
	Message   string
	Retryable bool
	Err       error
}

func (e *ExchangeError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s %s failed (code %d): %s", e.Venue, e.Operation, e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %v", e.Venue, e.Operation, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Venue, e.Operation, e.Message)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// NewExchangeError builds a venue rejection from a response code.
func NewExchangeError(venue, operation string, code int, message string) *ExchangeError {
	return &ExchangeError{
		Venue:     venue,
		Operation: operation,
		Code:      code,
		Message:   message,
		Retryable: retryableCode(code),
	}
}

// WrapTransportError builds a transport-level failure (timeouts, broken
// connections). Transport failures on reads are retryable.
func WrapTransportError(venue, operation string, err error) *ExchangeError {
	return &ExchangeError{
		Venue:     venue,
		Operation: operation,
		Err:       err,
		Retryable: true,
	}
}

// retryableCode classifies venue response codes where backing off and
// retrying a read can succeed.
func retryableCode(code int) bool {
	switch code {
	case 10002, // request timestamp outside recv window
		10006, // rate limit exceeded
		10016: // service unavailable
		return true
	}
	return false
}
