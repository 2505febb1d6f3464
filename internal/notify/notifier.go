// Package notify delivers assistant replies back to the user. Two transport
// strategies sit behind one interface: an authenticated push to the
// messaging platform's send endpoint, and a synchronous markup document
// returned inline as the webhook response body.
package notify

import (
	"context"
	"fmt"
)

// Outbound carries the data required to deliver one reply.
type Outbound struct {
	To            string
	Text          string
	PhoneNumberID string
}

// Ack reports a delivery outcome. For the synchronous transport, Body holds
// the markup document the webhook handler must return; push transports
// leave it empty.
type Ack struct {
	MessageID string
	Body      []byte
}

// DeliveryError wraps a failed outbound send with the provider's status and
// payload. Delivery failures are reported but never fail the inbound event.
type DeliveryError struct {
	StatusCode int
	Payload    string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delivery failed: %v", e.Err)
	}
	return fmt.Sprintf("delivery failed with status %d: %s", e.StatusCode, e.Payload)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Notifier delivers one reply to one user.
type Notifier interface {
	Send(ctx context.Context, msg Outbound) (Ack, error)
}
