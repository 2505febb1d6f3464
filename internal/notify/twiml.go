package notify

import (
	"context"
	"encoding/xml"
	"fmt"
)

// TwiMLNotifier implements the synchronous transport: instead of pushing
// the reply, it renders a TwiML document the webhook handler returns as the
// HTTP response body.
type TwiMLNotifier struct{}

func NewTwiMLNotifier() *TwiMLNotifier { return &TwiMLNotifier{} }

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

func (n *TwiMLNotifier) Send(ctx context.Context, msg Outbound) (Ack, error) {
	select {
	case <-ctx.Done():
		return Ack{}, ctx.Err()
	default:
	}

	body, err := xml.Marshal(twimlResponse{Message: msg.Text})
	if err != nil {
		return Ack{}, &DeliveryError{Err: fmt.Errorf("render twiml: %w", err)}
	}
	return Ack{Body: append([]byte(xml.Header), body...)}, nil
}
