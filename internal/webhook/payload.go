package webhook

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/antoniostano/whatsline/internal/relay"
)

// metaEnvelope mirrors the Meta WhatsApp Cloud API webhook payload down to
// the fields the relay needs.
type metaEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []struct {
					From string `json:"from"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

const metaObjectType = "whatsapp_business_account"

var errUnknownObject = fmt.Errorf("unrecognized webhook object type")

// parseMeta extracts the first inbound message from a Cloud API envelope.
// An envelope of the wrong object type is an error; an envelope without a
// usable message (status callbacks, reactions, media) yields an empty
// Inbound, which the relay acknowledges and drops.
func parseMeta(body io.Reader) (relay.Inbound, error) {
	var env metaEnvelope
	if err := json.NewDecoder(body).Decode(&env); err != nil {
		return relay.Inbound{}, errUnknownObject
	}
	if env.Object != metaObjectType {
		return relay.Inbound{}, errUnknownObject
	}

	var in relay.Inbound
	if len(env.Entry) == 0 || len(env.Entry[0].Changes) == 0 {
		return in, nil
	}
	value := env.Entry[0].Changes[0].Value
	in.PhoneNumberID = value.Metadata.PhoneNumberID
	if len(value.Messages) == 0 {
		return in, nil
	}
	in.From = value.Messages[0].From
	in.Text = value.Messages[0].Text.Body
	return in, nil
}

// parseForm extracts the Twilio-style {Body, From} pair.
func parseForm(r *http.Request) (relay.Inbound, error) {
	if err := r.ParseForm(); err != nil {
		return relay.Inbound{}, fmt.Errorf("parse form: %w", err)
	}
	return relay.Inbound{
		From: r.PostFormValue("From"),
		Text: r.PostFormValue("Body"),
	}, nil
}
