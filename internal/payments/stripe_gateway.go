package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/shirthaus/api/internal/services"
)

// StripeLogger defines the logging contract for Stripe gateway operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	Clock    func() time.Time
	Clients  *stripeClients
}

// StripeGateway implements the payment gateway contract using Stripe APIs.
type StripeGateway struct {
	api    stripeClients
	clock  func() time.Time
	logger StripeLogger
}

var _ services.PaymentGateway = (*StripeGateway)(nil)

// NewStripeGateway constructs a Stripe gateway using the given configuration.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents: sc.PaymentIntents,
			refunds: sc.Refunds,
		}
	}
	if clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeGateway{
		api: clients,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateIntent opens a payment intent for the quoted amount. The metadata is
// carried onto the intent so webhook handlers can recover the staged checkout.
func (g *StripeGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (services.PaymentIntent, error) {
	if g == nil {
		return services.PaymentIntent{}, errors.New("stripe: gateway is nil")
	}
	if amount <= 0 {
		return services.PaymentIntent{}, errors.New("stripe: amount must be positive")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if len(metadata) > 0 {
		params.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			params.Metadata[k] = v
		}
		if key, ok := metadata["order_data_key"]; ok {
			params.SetIdempotencyKey("intent-" + key)
		}
	}

	intent, err := g.api.intents.New(params)
	if err != nil {
		return services.PaymentIntent{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	g.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
	})
	return services.PaymentIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     strings.ToUpper(string(intent.Currency)),
	}, nil
}

// Refund issues a refund against the intent's charge. A charge Stripe has
// already refunded out-of-band maps to the gateway sentinel so callers can
// reconcile their records instead of failing.
func (g *StripeGateway) Refund(ctx context.Context, paymentIntentID string, amount int64, reason string) (services.GatewayRefund, error) {
	if g == nil {
		return services.GatewayRefund{}, errors.New("stripe: gateway is nil")
	}
	intentID := strings.TrimSpace(paymentIntentID)
	if intentID == "" {
		return services.GatewayRefund{}, errors.New("stripe: payment intent id is required")
	}
	if amount <= 0 {
		return services.GatewayRefund{}, errors.New("stripe: amount must be positive")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(amount),
	}
	params.Context = ctx
	if mapped := mapStripeRefundReason(reason); mapped != "" {
		params.Reason = stripe.String(mapped)
	}

	refund, err := g.api.refunds.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeChargeAlreadyRefunded {
			return services.GatewayRefund{}, services.ErrGatewayChargeAlreadyRefunded
		}
		return services.GatewayRefund{}, fmt.Errorf("stripe: refund payment intent: %w", err)
	}

	g.logger(ctx, "payments.stripe.intent.refunded", map[string]any{
		"paymentIntent": intentID,
		"refundId":      refund.ID,
		"amount":        refund.Amount,
	})
	return services.GatewayRefund{
		ID:     refund.ID,
		Amount: refund.Amount,
	}, nil
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}
