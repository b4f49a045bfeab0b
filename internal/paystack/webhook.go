package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/bookingd/pkg/booking"
)

// SignatureHeader carries the hex HMAC-SHA512 of the raw webhook body.
const SignatureHeader = "X-Paystack-Signature"

const (
	eventChargeSuccess = "charge.success"
	eventChargeFailed  = "charge.failed"
)

type webhookEnvelope struct {
	Event string          `json:"event"`
	Data  transactionData `json:"data"`
}

// ValidateSignature checks signature against the HMAC-SHA512 of the unparsed
// payload.
func (client *Client) ValidateSignature(payload []byte, signature string) bool {
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(provided) != sha512.Size {
		return false
	}
	return hmac.Equal(provided, Sign(client.webhookSecret, payload))
}

// Sign computes the signature the gateway sends for payload.
func Sign(secret []byte, payload []byte) []byte {
	mac := hmac.New(sha512.New, secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

// ParseWebhookEvent decodes a signature-checked payload. Events other than
// charge.success and charge.failed are reported as ignorable.
func (client *Client) ParseWebhookEvent(payload []byte) (booking.WebhookEvent, error) {
	var webhook webhookEnvelope
	if err := json.Unmarshal(payload, &webhook); err != nil {
		return booking.WebhookEvent{}, fmt.Errorf("%w: webhook payload: %v", booking.ErrInvalidParameter, err)
	}
	event := booking.WebhookEvent{Type: webhook.Event}
	switch webhook.Event {
	case eventChargeSuccess, eventChargeFailed:
	default:
		event.Ignorable = true
		return event, nil
	}
	if webhook.Data.Reference == "" {
		return booking.WebhookEvent{}, fmt.Errorf("%w: webhook %s has no reference", booking.ErrInvalidParameter, webhook.Event)
	}
	verification, err := webhook.Data.verification()
	if err != nil {
		return booking.WebhookEvent{}, err
	}
	if webhook.Event == eventChargeSuccess {
		verification.Status = booking.PaymentSuccessful
	} else {
		verification.Status = booking.PaymentFailed
	}
	event.Verification = verification
	return event, nil
}
