package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/shirthaus/api/internal/services"
)

// PubSubNotificationPublisher publishes customer notification events to the
// email pipeline's Pub/Sub topic.
type PubSubNotificationPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
	printer *message.Printer
}

var _ services.NotificationPublisher = (*PubSubNotificationPublisher)(nil)

// NewPubSubNotificationPublisher constructs a Pub/Sub backed notification publisher.
func NewPubSubNotificationPublisher(topic *pubsub.Topic) (*PubSubNotificationPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub notification publisher: topic is required")
	}
	return &PubSubNotificationPublisher{
		topic:   topic,
		marshal: json.Marshal,
		printer: message.NewPrinter(language.BritishEnglish),
	}, nil
}

// notificationEnvelope is the wire format consumed by the email worker.
type notificationEnvelope struct {
	Kind      string            `json:"kind"`
	Reference string            `json:"reference,omitempty"`
	Email     string            `json:"email"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Publish enqueues one notification event on the configured topic. Pence
// amounts in the fields are reformatted for display before publishing.
func (p *PubSubNotificationPublisher) Publish(ctx context.Context, n services.Notification) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub notification publisher: not initialised")
	}
	if strings.TrimSpace(n.Kind) == "" {
		return errors.New("pubsub notification publisher: kind is required")
	}
	if strings.TrimSpace(n.Email) == "" {
		return errors.New("pubsub notification publisher: email is required")
	}

	envelope := notificationEnvelope{
		Kind:      n.Kind,
		Reference: n.Reference,
		Email:     n.Email,
		Fields:    p.displayFields(n.Fields),
	}
	data, err := p.marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "kind", n.Kind)
	setAttr(attrs, "reference", n.Reference)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// displayFields renders pence amounts as GBP strings, leaving other fields as-is.
func (p *PubSubNotificationPublisher) displayFields(fields map[string]string) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for key, value := range fields {
		switch key {
		case "amount", "total":
			if pence, err := strconv.ParseInt(value, 10, 64); err == nil {
				out[key] = p.printer.Sprintf("£%.2f", float64(pence)/100)
				continue
			}
		}
		out[key] = value
	}
	return out
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
