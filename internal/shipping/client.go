package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	domain "github.com/shirthaus/api/internal/domain"
	"github.com/shirthaus/api/internal/services"
)

// Logger captures the logging contract for carrier operations.
type Logger func(ctx context.Context, event string, fields map[string]any)

var (
	// ErrCarrierUnavailable wraps transport failures talking to the aggregator.
	ErrCarrierUnavailable = errors.New("shipping: carrier unavailable")
	// ErrCarrierRejected indicates the aggregator refused the shipment request.
	ErrCarrierRejected = errors.New("shipping: carrier rejected shipment")
)

// ClientConfig configures the carrier aggregator client.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     Logger
}

// Client calls the carrier aggregator's shipment API to buy labels.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  Logger
}

var _ services.ShippingCarrier = (*Client)(nil)

// NewClient constructs a carrier aggregator client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("shipping: base url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("shipping: api key is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		http:    httpClient,
		logger:  logger,
	}, nil
}

type shipmentItemPayload struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

type shipmentPayload struct {
	Reference string                `json:"reference"`
	Service   string                `json:"service"`
	Recipient string                `json:"recipient"`
	Line1     string                `json:"line1"`
	Line2     string                `json:"line2,omitempty"`
	City      string                `json:"city"`
	County    string                `json:"county,omitempty"`
	Postcode  string                `json:"postcode"`
	Country   string                `json:"country"`
	Items     []shipmentItemPayload `json:"items"`
}

type shipmentResponse struct {
	TrackingNumber string `json:"tracking_number"`
	Courier        string `json:"courier"`
	LabelURL       string `json:"label_url"`
	Cost           int64  `json:"cost"`
	Error          string `json:"error"`
}

// CreateShipment books a shipment and returns the issued label.
func (c *Client) CreateShipment(ctx context.Context, req domain.ShipmentRequest) (domain.ShippingLabel, error) {
	if c == nil {
		return domain.ShippingLabel{}, errors.New("shipping: client is nil")
	}
	if strings.TrimSpace(req.OrderReference) == "" {
		return domain.ShippingLabel{}, errors.New("shipping: order reference is required")
	}

	payload := shipmentPayload{
		Reference: req.OrderReference,
		Service:   carrierService(req.Method),
		Recipient: req.Address.Recipient,
		Line1:     req.Address.Line1,
		City:      req.Address.City,
		Postcode:  req.Address.PostalCode,
		Country:   req.Address.Country,
	}
	if req.Address.Line2 != nil {
		payload.Line2 = *req.Address.Line2
	}
	if req.Address.County != nil {
		payload.County = *req.Address.County
	}
	for _, item := range req.Items {
		payload.Items = append(payload.Items, shipmentItemPayload{
			Description: item.Description,
			Quantity:    item.Quantity,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.ShippingLabel{}, fmt.Errorf("shipping: encode shipment: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/shipments", bytes.NewReader(body))
	if err != nil {
		return domain.ShippingLabel{}, fmt.Errorf("%w: %v", ErrCarrierUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Idempotency-Key", req.OrderReference)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.ShippingLabel{}, fmt.Errorf("%w: %v", ErrCarrierUnavailable, err)
	}
	defer resp.Body.Close()

	var decoded shipmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.ShippingLabel{}, fmt.Errorf("%w: decode response: %v", ErrCarrierUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
	case resp.StatusCode >= 500:
		return domain.ShippingLabel{}, fmt.Errorf("%w: status %d", ErrCarrierUnavailable, resp.StatusCode)
	default:
		message := decoded.Error
		if message == "" {
			message = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return domain.ShippingLabel{}, fmt.Errorf("%w: %s", ErrCarrierRejected, message)
	}

	if decoded.TrackingNumber == "" {
		return domain.ShippingLabel{}, fmt.Errorf("%w: response missing tracking number", ErrCarrierRejected)
	}

	c.logger(ctx, "shipping.label_issued", map[string]any{
		"reference": req.OrderReference,
		"tracking":  decoded.TrackingNumber,
		"courier":   decoded.Courier,
	})
	return domain.ShippingLabel{
		TrackingNumber: decoded.TrackingNumber,
		Courier:        decoded.Courier,
		LabelURL:       decoded.LabelURL,
		Cost:           decoded.Cost,
	}, nil
}

// carrierService maps the customer-facing shipping method onto the
// aggregator's service codes.
func carrierService(method string) string {
	switch strings.TrimSpace(method) {
	case "Next Day Delivery":
		return "next_day"
	case "Express Delivery":
		return "express_48"
	default:
		return "standard_72"
	}
}
