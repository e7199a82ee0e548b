package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"

	domain "github.com/shirthaus/api/internal/domain"
)

func shipmentRequest() domain.ShipmentRequest {
	return domain.ShipmentRequest{
		OrderReference: "SH-260710-0001",
		Method:         "Next Day Delivery",
		Address: domain.Address{
			Recipient:  "Jo Bloggs",
			Line1:      "1 High Street",
			City:       "Leeds",
			PostalCode: "LS1 1AA",
			Country:    "GB",
		},
		Items: []domain.ShipmentItem{
			{Description: "Classic Tee (M)", Quantity: 2},
		},
	}
}

func TestCreateShipmentIssuesLabel(t *testing.T) {
	var received shipmentPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/shipments" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("unexpected authorization %q", got)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "SH-260710-0001" {
			t.Fatalf("unexpected idempotency key %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		_ = json.NewEncoder(w).Encode(shipmentResponse{
			TrackingNumber: "TRK123",
			Courier:        "Royal Mail",
			LabelURL:       "https://labels/trk123.pdf",
			Cost:           999,
		})
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	label, err := client.CreateShipment(context.Background(), shipmentRequest())
	if err != nil {
		t.Fatalf("create shipment: %v", err)
	}
	if label.TrackingNumber != "TRK123" || label.Courier != "Royal Mail" {
		t.Fatalf("unexpected label %+v", label)
	}
	if received.Service != "next_day" {
		t.Fatalf("expected next_day service, got %s", received.Service)
	}
	if received.Postcode != "LS1 1AA" {
		t.Fatalf("unexpected postcode %s", received.Postcode)
	}
}

func TestCreateShipmentRejectionSurfacesMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(shipmentResponse{Error: "postcode not recognised"})
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.CreateShipment(context.Background(), shipmentRequest())
	if !errors.Is(err, ErrCarrierRejected) {
		t.Fatalf("expected carrier rejection, got %v", err)
	}
}

func TestCreateShipmentServerErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(shipmentResponse{})
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.CreateShipment(context.Background(), shipmentRequest())
	if !errors.Is(err, ErrCarrierUnavailable) {
		t.Fatalf("expected carrier unavailable, got %v", err)
	}
}

func signWebhookToken(t *testing.T, secret string, claims webhookClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestWebhookVerifierAcceptsSignedToken(t *testing.T) {
	verifier, err := NewWebhookVerifier("webhook-secret")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token := signWebhookToken(t, "webhook-secret", webhookClaims{
		TrackingNumber: "TRK123",
		Status:         "Delivered",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})

	update, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if update.TrackingNumber != "TRK123" || update.Status != WebhookStatusDelivered {
		t.Fatalf("unexpected update %+v", update)
	}
}

func TestWebhookVerifierRejectsWrongSecret(t *testing.T) {
	verifier, err := NewWebhookVerifier("webhook-secret")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token := signWebhookToken(t, "other-secret", webhookClaims{TrackingNumber: "TRK123"})
	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidWebhookToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestWebhookVerifierRejectsExpiredToken(t *testing.T) {
	verifier, err := NewWebhookVerifier("webhook-secret")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token := signWebhookToken(t, "webhook-secret", webhookClaims{
		TrackingNumber: "TRK123",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidWebhookToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}
