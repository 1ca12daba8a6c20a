package llm

import (
	"errors"
	"fmt"
)

// GatewayError is any failure talking to the model gateway. Fatal to the
// current agent run; the loop surfaces it as plain text and never retries.
type GatewayError struct {
	Message    string
	StatusCode int
	Cause      error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway: %s (status %d)", e.Message, e.StatusCode)
	}
	return "gateway: " + e.Message
}

func (e *GatewayError) Unwrap() error { return e.Cause }

// NewGatewayError wraps cause with a descriptive message.
func NewGatewayError(message string, cause error) *GatewayError {
	return &GatewayError{Message: message, Cause: cause}
}

// IsGatewayError reports whether err is (or wraps) a GatewayError.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

// IsRateLimited reports whether err is an HTTP 429 from the gateway.
func IsRateLimited(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.StatusCode == 429
}
