package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MetaNotifier pushes replies through the Meta WhatsApp Cloud API send
// endpoint.
type MetaNotifier struct {
	baseURL        string
	accessToken    string
	defaultPhoneID string
	client         *http.Client
}

// MetaConfig configures the Cloud API transport.
type MetaConfig struct {
	// BaseURL defaults to the Graph API; tests point it at a local server.
	BaseURL string
	// AccessToken authenticates send requests.
	AccessToken string
	// DefaultPhoneNumberID routes replies when the inbound payload carried
	// no phone-number-id of its own.
	DefaultPhoneNumberID string
	Timeout              time.Duration
}

func NewMetaNotifier(cfg MetaConfig) *MetaNotifier {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://graph.facebook.com/v22.0"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MetaNotifier{
		baseURL:        base,
		accessToken:    cfg.AccessToken,
		defaultPhoneID: cfg.DefaultPhoneNumberID,
		client:         &http.Client{Timeout: timeout},
	}
}

type metaSendRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Text             metaSendText `json:"text"`
}

type metaSendText struct {
	Body string `json:"body"`
}

type metaSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (n *MetaNotifier) Send(ctx context.Context, msg Outbound) (Ack, error) {
	phoneID := strings.TrimSpace(msg.PhoneNumberID)
	if phoneID == "" {
		phoneID = n.defaultPhoneID
	}
	if phoneID == "" {
		return Ack{}, &DeliveryError{Err: fmt.Errorf("no phone number id for outbound message")}
	}

	payload, err := json.Marshal(metaSendRequest{
		MessagingProduct: "whatsapp",
		To:               msg.To,
		Text:             metaSendText{Body: msg.Text},
	})
	if err != nil {
		return Ack{}, &DeliveryError{Err: fmt.Errorf("marshal send request: %w", err)}
	}

	url := fmt.Sprintf("%s/%s/messages", n.baseURL, phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Ack{}, &DeliveryError{Err: fmt.Errorf("create send request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.accessToken)

	res, err := n.client.Do(req)
	if err != nil {
		return Ack{}, &DeliveryError{Err: err}
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return Ack{}, &DeliveryError{StatusCode: res.StatusCode, Payload: strings.TrimSpace(string(body))}
	}

	var parsed metaSendResponse
	_ = json.Unmarshal(body, &parsed)
	ack := Ack{}
	if len(parsed.Messages) > 0 {
		ack.MessageID = parsed.Messages[0].ID
	}
	return ack, nil
}
