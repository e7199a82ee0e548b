package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/shirthaus/api/internal/domain"
)

var errBodyTooLarge = errors.New("request body too large")

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, errors.New("failed to read request body")
	}
	if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}
	return body, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// Shared JSON views ----------------------------------------------------------

type addressView struct {
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	County     string `json:"county,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func newAddressView(a domain.Address) addressView {
	view := addressView{
		Recipient:  a.Recipient,
		Line1:      a.Line1,
		City:       a.City,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
	if a.Line2 != nil {
		view.Line2 = *a.Line2
	}
	if a.County != nil {
		view.County = *a.County
	}
	if a.Phone != nil {
		view.Phone = *a.Phone
	}
	return view
}

type customizationView struct {
	Text      string `json:"text"`
	Placement string `json:"placement"`
}

type orderItemView struct {
	ProductID     string             `json:"productId"`
	ProductName   string             `json:"productName"`
	Category      string             `json:"category,omitempty"`
	Size          string             `json:"size"`
	Quantity      int                `json:"quantity"`
	UnitAmount    int64              `json:"unitAmount"`
	Customization *customizationView `json:"customization,omitempty"`
}

func newOrderItemViews(items []domain.OrderItem) []orderItemView {
	out := make([]orderItemView, 0, len(items))
	for _, item := range items {
		view := orderItemView{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Category:    item.Category,
			Size:        item.Size,
			Quantity:    item.Quantity,
			UnitAmount:  item.UnitAmount,
		}
		if item.Customization != nil && item.Customization.IsCustomized {
			view.Customization = &customizationView{
				Text:      item.Customization.Text,
				Placement: item.Customization.Placement,
			}
		}
		out = append(out, view)
	}
	return out
}

type totalsView struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount"`
	Shipping int64 `json:"shipping"`
	VAT      int64 `json:"vat"`
	Total    int64 `json:"total"`
}

func newTotalsView(t domain.OrderTotals) totalsView {
	return totalsView{
		Subtotal: t.Subtotal,
		Discount: t.Discount,
		Shipping: t.Shipping,
		VAT:      t.VAT,
		Total:    t.Total,
	}
}

type shippingView struct {
	Method         string      `json:"method"`
	Address        addressView `json:"address"`
	TrackingNumber string      `json:"trackingNumber,omitempty"`
	Courier        string      `json:"courier,omitempty"`
	ShippedAt      string      `json:"shippedAt,omitempty"`
}

func newShippingView(s domain.ShippingDetails) shippingView {
	view := shippingView{
		Method:  s.Method,
		Address: newAddressView(s.Address),
	}
	if s.TrackingNumber != nil {
		view.TrackingNumber = *s.TrackingNumber
	}
	if s.Courier != nil {
		view.Courier = *s.Courier
	}
	view.ShippedAt = formatTimePtr(s.ShippedAt)
	return view
}

type orderView struct {
	ID               string          `json:"id"`
	Reference        string          `json:"reference"`
	Email            string          `json:"email"`
	Items            []orderItemView `json:"items"`
	Totals           totalsView      `json:"totals"`
	Currency         string          `json:"currency"`
	VoucherCode      string          `json:"voucherCode,omitempty"`
	Status           string          `json:"status"`
	ProductionStatus string          `json:"productionStatus"`
	Priority         int             `json:"priority"`
	Shipping         shippingView    `json:"shipping"`
	Refunded         bool            `json:"refunded"`
	CreatedAt        string          `json:"createdAt"`
	PaidAt           string          `json:"paidAt,omitempty"`
	DeliveredAt      string          `json:"deliveredAt,omitempty"`
}

func newOrderView(order domain.Order) orderView {
	return orderView{
		ID:               order.ID,
		Reference:        order.Reference,
		Email:            order.Email,
		Items:            newOrderItemViews(order.Items),
		Totals:           newTotalsView(order.Totals),
		Currency:         order.Currency,
		VoucherCode:      order.VoucherCode,
		Status:           string(order.Status),
		ProductionStatus: string(order.ProductionStatus),
		Priority:         order.Priority,
		Shipping:         newShippingView(order.Shipping),
		Refunded:         order.Refunded(),
		CreatedAt:        formatTime(order.CreatedAt),
		PaidAt:           formatTimePtr(order.PaidAt),
		DeliveredAt:      formatTimePtr(order.DeliveredAt),
	}
}
