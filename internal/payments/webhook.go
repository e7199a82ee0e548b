package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// Stripe webhook event types the API consumes.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// ErrInvalidWebhookSignature is returned when a webhook payload fails signature verification.
var ErrInvalidWebhookSignature = errors.New("stripe: invalid webhook signature")

// WebhookEvent is the verified, decoded webhook payload the handlers act on.
type WebhookEvent struct {
	ID           string
	Type         string
	IntentID     string
	OrderDataKey string
}

// VerifyWebhook checks the Stripe-Signature header against the signing secret
// and decodes the payment intent envelope.
func VerifyWebhook(payload []byte, signatureHeader string, secret string) (WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, secret)
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidWebhookSignature, err)
	}
	return decodeWebhookEvent(event)
}

func decodeWebhookEvent(event stripe.Event) (WebhookEvent, error) {
	decoded := WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}
	switch decoded.Type {
	case EventPaymentSucceeded, EventPaymentFailed:
	default:
		return decoded, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return WebhookEvent{}, fmt.Errorf("stripe: decode payment intent event: %w", err)
	}
	decoded.IntentID = intent.ID
	decoded.OrderDataKey = strings.TrimSpace(intent.Metadata["order_data_key"])
	return decoded, nil
}
