package customerror

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrNotEnoughMoney = errors.New("not enough money on balance")
	ErrNetwork        = errors.New("provider unreachable")
	ErrTimeout        = errors.New("provider request timed out")
	ErrUserMissing    = errors.New("order owner not found")
	ErrNotLinked      = errors.New("order is not linked to a provider")
)

// MalformedResponse means the provider answered, but the payload did not
// match the shape its specification promised.
type MalformedResponse struct {
	Reason string
}

func (e *MalformedResponse) Error() string {
	return fmt.Sprintf("malformed provider response: %s", e.Reason)
}

// ProviderRejected means the provider returned a well-formed error payload.
// The message is kept verbatim for diagnostics.
type ProviderRejected struct {
	Message string
}

func (e *ProviderRejected) Error() string {
	return fmt.Sprintf("provider rejected request: %s", e.Message)
}

// Normalize collapses an outbound-call error into the short diagnostic string
// persisted on failed orders and surfaced in sync results.
func Normalize(err error) string {
	var netErr net.Error
	var malformed *MalformedResponse
	var rejected *ProviderRejected

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return "timeout: " + err.Error()
	case errors.As(err, &rejected):
		return "provider_rejected: " + rejected.Message
	case errors.As(err, &malformed):
		return "malformed_response: " + malformed.Reason
	case errors.Is(err, ErrNetwork), errors.As(err, &netErr):
		return "network_error: " + err.Error()
	default:
		return "error: " + err.Error()
	}
}
