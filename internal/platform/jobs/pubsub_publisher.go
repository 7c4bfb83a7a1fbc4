package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/marketstall/api/internal/services"
)

// PubSubLifecyclePublisher publishes order lifecycle events to a Pub/Sub topic.
type PubSubLifecyclePublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubLifecyclePublisher constructs a Pub/Sub backed lifecycle event publisher.
func NewPubSubLifecyclePublisher(topic *pubsub.Topic) (*PubSubLifecyclePublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub lifecycle publisher: topic is required")
	}
	return &PubSubLifecyclePublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishLifecycleEvent emits the event on the configured topic. Attributes
// carry the routing keys so subscribers can filter without decoding the body.
func (p *PubSubLifecyclePublisher) PublishLifecycleEvent(ctx context.Context, event services.LifecycleEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub lifecycle publisher: not initialised")
	}

	data, err := p.marshal(lifecyclePayload(event))
	if err != nil {
		return fmt.Errorf("marshal lifecycle event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "itemId", event.ItemID)
	setAttr(attrs, "refundId", event.RefundID)
	setAttr(attrs, "actorRole", event.ActorRole)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish lifecycle event: %w", err)
	}
	return nil
}

type lifecycleMessage struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	ItemID         string         `json:"itemId,omitempty"`
	RefundID       string         `json:"refundId,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	ActorRole      string         `json:"actorRole,omitempty"`
	OccurredAt     string         `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func lifecyclePayload(event services.LifecycleEvent) lifecycleMessage {
	return lifecycleMessage{
		Type:           event.Type,
		OrderID:        event.OrderID,
		ItemID:         event.ItemID,
		RefundID:       event.RefundID,
		PreviousStatus: event.PreviousStatus,
		CurrentStatus:  event.CurrentStatus,
		ActorID:        event.ActorID,
		ActorRole:      event.ActorRole,
		OccurredAt:     event.OccurredAt.UTC().Format(time.RFC3339Nano),
		Metadata:       event.Metadata,
	}
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
