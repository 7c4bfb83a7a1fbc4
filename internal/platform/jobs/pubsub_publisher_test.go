package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/marketstall/api/internal/services"
)

func TestPubSubLifecyclePublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "order-lifecycle")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubLifecyclePublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubLifecyclePublisher: %v", err)
	}

	occurredAt := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
	event := services.LifecycleEvent{
		Type:           "order.item.status.changed",
		OrderID:        "ord_test",
		ItemID:         "itm_test",
		PreviousStatus: "pending",
		CurrentStatus:  "preparing",
		ActorID:        "sell-1",
		ActorRole:      "seller",
		OccurredAt:     occurredAt,
		Metadata:       map[string]any{"reason": "restock"},
	}

	if err := publisher.PublishLifecycleEvent(ctx, event); err != nil {
		t.Fatalf("PublishLifecycleEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload map[string]any
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["orderId"] != "ord_test" || payload["itemId"] != "itm_test" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if payload["occurredAt"] != "2026-02-03T09:00:00Z" {
		t.Fatalf("unexpected occurredAt %v", payload["occurredAt"])
	}
	if attr := messages[0].Attributes["type"]; attr != "order.item.status.changed" {
		t.Fatalf("expected type attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["actorRole"]; attr != "seller" {
		t.Fatalf("expected actorRole attribute, got %q", attr)
	}
	if _, ok := messages[0].Attributes["metadata"]; ok {
		t.Fatalf("metadata attribute should not be present")
	}
}

func TestNewPubSubLifecyclePublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubLifecyclePublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}
