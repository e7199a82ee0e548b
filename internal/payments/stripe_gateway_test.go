package payments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v78"

	"github.com/shirthaus/api/internal/services"
)

type stubIntentAPI struct {
	newFn func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func (s *stubIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.newFn(params)
}

type stubRefundAPI struct {
	newFn func(params *stripe.RefundParams) (*stripe.Refund, error)
}

func (s *stubRefundAPI) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	return s.newFn(params)
}

func newTestGateway(t *testing.T, clients stripeClients) *StripeGateway {
	t.Helper()
	gw, err := NewStripeGateway(StripeGatewayConfig{Clients: &clients})
	if err != nil {
		t.Fatalf("new stripe gateway: %v", err)
	}
	return gw
}

func TestCreateIntentCarriesMetadata(t *testing.T) {
	var captured *stripe.PaymentIntentParams
	gw := newTestGateway(t, stripeClients{
		intents: &stubIntentAPI{
			newFn: func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
				captured = params
				return &stripe.PaymentIntent{
					ID:           "pi_123",
					ClientSecret: "pi_123_secret",
					Amount:       *params.Amount,
					Currency:     stripe.Currency(*params.Currency),
				}, nil
			},
		},
		refunds: &stubRefundAPI{},
	})

	intent, err := gw.CreateIntent(context.Background(), 11278, "GBP", map[string]string{
		"order_data_key": "key-1",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.ID != "pi_123" || intent.ClientSecret != "pi_123_secret" {
		t.Fatalf("unexpected intent %+v", intent)
	}
	if intent.Currency != "GBP" {
		t.Fatalf("expected uppercased currency, got %s", intent.Currency)
	}
	if captured.Metadata["order_data_key"] != "key-1" {
		t.Fatalf("metadata missing from params: %+v", captured.Metadata)
	}
	if *captured.Currency != "gbp" {
		t.Fatalf("expected lowercased wire currency, got %s", *captured.Currency)
	}
}

func TestCreateIntentRejectsNonPositiveAmount(t *testing.T) {
	gw := newTestGateway(t, stripeClients{
		intents: &stubIntentAPI{newFn: func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			t.Fatal("must not reach the API")
			return nil, nil
		}},
		refunds: &stubRefundAPI{},
	})
	if _, err := gw.CreateIntent(context.Background(), 0, "GBP", nil); err == nil {
		t.Fatal("expected an error for zero amount")
	}
}

func TestRefundMapsAlreadyRefundedCode(t *testing.T) {
	gw := newTestGateway(t, stripeClients{
		intents: &stubIntentAPI{},
		refunds: &stubRefundAPI{
			newFn: func(*stripe.RefundParams) (*stripe.Refund, error) {
				return nil, &stripe.Error{Code: stripe.ErrorCodeChargeAlreadyRefunded}
			},
		},
	})

	_, err := gw.Refund(context.Background(), "pi_123", 5000, "requested_by_customer")
	if !errors.Is(err, services.ErrGatewayChargeAlreadyRefunded) {
		t.Fatalf("expected already refunded sentinel, got %v", err)
	}
}

func TestRefundReturnsGatewayRecord(t *testing.T) {
	gw := newTestGateway(t, stripeClients{
		intents: &stubIntentAPI{},
		refunds: &stubRefundAPI{
			newFn: func(params *stripe.RefundParams) (*stripe.Refund, error) {
				if *params.PaymentIntent != "pi_123" {
					t.Fatalf("unexpected intent %s", *params.PaymentIntent)
				}
				if params.Reason == nil || *params.Reason != string(stripe.RefundReasonRequestedByCustomer) {
					t.Fatalf("expected mapped reason, got %v", params.Reason)
				}
				return &stripe.Refund{ID: "re_123", Amount: *params.Amount}, nil
			},
		},
	})

	refund, err := gw.Refund(context.Background(), "pi_123", 5000, "requested_by_customer")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refund.ID != "re_123" || refund.Amount != 5000 {
		t.Fatalf("unexpected refund %+v", refund)
	}
}

func TestDecodeWebhookEventExtractsOrderDataKey(t *testing.T) {
	raw, err := json.Marshal(map[string]any{
		"id": "pi_123",
		"metadata": map[string]string{
			"order_data_key": "key-1",
		},
	})
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}

	decoded, err := decodeWebhookEvent(stripe.Event{
		ID:   "evt_1",
		Type: stripe.EventType(EventPaymentSucceeded),
		Data: &stripe.EventData{Raw: raw},
	})
	if err != nil {
		t.Fatalf("decode webhook event: %v", err)
	}
	if decoded.IntentID != "pi_123" || decoded.OrderDataKey != "key-1" {
		t.Fatalf("unexpected event %+v", decoded)
	}
}

func TestDecodeWebhookEventIgnoresOtherTypes(t *testing.T) {
	decoded, err := decodeWebhookEvent(stripe.Event{
		ID:   "evt_2",
		Type: "charge.updated",
		Data: &stripe.EventData{},
	})
	if err != nil {
		t.Fatalf("decode webhook event: %v", err)
	}
	if decoded.IntentID != "" {
		t.Fatalf("expected no intent for unrelated event, got %s", decoded.IntentID)
	}
}
