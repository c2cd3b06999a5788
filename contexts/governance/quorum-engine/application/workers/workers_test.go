package workers

import (
	"context"
	"testing"
	"time"

	"custos/contexts/governance/quorum-engine/adapters/memory"
	"custos/contexts/governance/quorum-engine/ports"
)

type capturingPublisher struct {
	topics []string
	events []ports.EventEnvelope
	fail   bool
}

func (p *capturingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	if p.fail {
		return context.DeadlineExceeded
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

type directSubscriber struct {
	handler func(context.Context, ports.EventEnvelope) error
	group   string
}

func (s *directSubscriber) Subscribe(
	_ context.Context,
	_ string,
	consumerGroup string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	s.handler = handler
	s.group = consumerGroup
	return nil
}

type fixedClock struct {
	now time.Time
}

func (f fixedClock) Now() time.Time { return f.now }

type staticIDGen struct {
	id string
}

func (g staticIDGen) NewID(_ context.Context) (string, error) { return g.id, nil }

func appendEnvelope(t *testing.T, store *memory.Store, eventID string, eventType string) {
	t.Helper()
	err := store.AppendOutbox(context.Background(), ports.EventEnvelope{
		EventID:      eventID,
		EventType:    eventType,
		OccurredAt:   time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC),
		PartitionKey: "store-1",
		Data:         []byte(`{"store_id":"store-1"}`),
	})
	if err != nil {
		t.Fatalf("append outbox failed: %v", err)
	}
}

func TestOutboxRelayPublishesAndMarks(t *testing.T) {
	store := memory.NewStore()
	appendEnvelope(t, store, "event-1", "proposal.created")
	appendEnvelope(t, store, "event-2", "vote.cast")

	publisher := &capturingPublisher{}
	relay := OutboxRelay{
		Outbox:    store,
		Publisher: publisher,
		Clock:     fixedClock{now: time.Date(2026, time.March, 10, 9, 5, 0, 0, time.UTC)},
	}
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("relay run failed: %v", err)
	}
	if len(publisher.events) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(publisher.events))
	}
	for _, topic := range publisher.topics {
		if topic != GovernanceTopic {
			t.Fatalf("expected topic %q, got %q", GovernanceTopic, topic)
		}
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected outbox drained, got %d pending", len(pending))
	}
}

func TestOutboxRelayStopsOnPublishFailure(t *testing.T) {
	store := memory.NewStore()
	appendEnvelope(t, store, "event-1", "proposal.created")

	relay := OutboxRelay{
		Outbox:    store,
		Publisher: &capturingPublisher{fail: true},
	}
	if err := relay.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected publish failure to propagate")
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("failed rows must stay pending for retry, got %d", len(pending))
	}
}

func TestAuditTrailConsumerRecordsOncePerEvent(t *testing.T) {
	store := memory.NewStore()
	subscriber := &directSubscriber{}
	consumer := AuditTrailConsumer{
		Subscriber: subscriber,
		Dedup:      store,
		Audit:      store,
		Clock:      fixedClock{now: time.Date(2026, time.March, 10, 9, 5, 0, 0, time.UTC)},
		IDGen:      staticIDGen{id: "audit-1"},
	}
	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if subscriber.group != defaultAuditCG {
		t.Fatalf("expected default consumer group, got %q", subscriber.group)
	}

	event := ports.EventEnvelope{
		EventID:      "event-1",
		EventType:    "proposal.executed",
		OccurredAt:   time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC),
		PartitionKey: "store-1",
		Data:         []byte(`{"proposal_id":"prop-1"}`),
	}
	if err := subscriber.handler(context.Background(), event); err != nil {
		t.Fatalf("handle event failed: %v", err)
	}
	// Broker redelivery of the same event must not produce a second record.
	if err := subscriber.handler(context.Background(), event); err != nil {
		t.Fatalf("handle replayed event failed: %v", err)
	}

	records, err := store.ListAuditByStore(context.Background(), "store-1")
	if err != nil {
		t.Fatalf("list audit failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(records))
	}
	if records[0].EventType != "proposal.executed" || records[0].StoreID != "store-1" {
		t.Fatalf("unexpected audit record: %+v", records[0])
	}
}
