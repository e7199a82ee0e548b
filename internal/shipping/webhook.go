package shipping

import (
	"errors"
	"fmt"
	"strings"

	jwt "github.com/golang-jwt/jwt/v4"
)

// Webhook delivery statuses the carrier aggregator reports.
const (
	WebhookStatusDelivered = "delivered"
	WebhookStatusInTransit = "in_transit"
)

var (
	// ErrInvalidWebhookToken is returned when the carrier webhook token fails verification.
	ErrInvalidWebhookToken = errors.New("shipping: invalid webhook token")
	// ErrWebhookSecretMissing indicates the verifier was built without a secret.
	ErrWebhookSecretMissing = errors.New("shipping: webhook secret is not configured")
)

// WebhookUpdate is the verified tracking update carried in a webhook token.
type WebhookUpdate struct {
	TrackingNumber string
	Status         string
}

type webhookClaims struct {
	TrackingNumber string `json:"tracking_number"`
	Status         string `json:"status"`
	jwt.RegisteredClaims
}

// WebhookVerifier validates HS256-signed carrier webhook tokens.
type WebhookVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewWebhookVerifier constructs a verifier for the shared webhook secret.
func NewWebhookVerifier(secret string) (*WebhookVerifier, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, ErrWebhookSecretMissing
	}
	return &WebhookVerifier{
		secret: []byte(trimmed),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}, nil
}

// Verify checks the token signature and expiry and returns the tracking update.
func (v *WebhookVerifier) Verify(token string) (WebhookUpdate, error) {
	if v == nil {
		return WebhookUpdate{}, ErrWebhookSecretMissing
	}
	claims := &webhookClaims{}
	_, err := v.parser.ParseWithClaims(strings.TrimSpace(token), claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return WebhookUpdate{}, fmt.Errorf("%w: %v", ErrInvalidWebhookToken, err)
	}
	if strings.TrimSpace(claims.TrackingNumber) == "" {
		return WebhookUpdate{}, fmt.Errorf("%w: missing tracking number", ErrInvalidWebhookToken)
	}
	return WebhookUpdate{
		TrackingNumber: strings.TrimSpace(claims.TrackingNumber),
		Status:         strings.ToLower(strings.TrimSpace(claims.Status)),
	}, nil
}
