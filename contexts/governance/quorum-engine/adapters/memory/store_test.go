package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"custos/contexts/governance/quorum-engine/domain/entities"
	domainerrors "custos/contexts/governance/quorum-engine/domain/errors"
	"custos/contexts/governance/quorum-engine/ports"
)

func TestStoreRoundTripDoesNotAliasState(t *testing.T) {
	store := NewStore()
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	governance, err := entities.NewGovernanceStore("store-1", entities.ProtectedResource{
		ResourceID: "resource-1",
		Kind:       "deploy_key",
	}, 2, []string{"alice", "bob"}, now)
	if err != nil {
		t.Fatalf("new store failed: %v", err)
	}
	if err := store.SaveStore(context.Background(), governance); err != nil {
		t.Fatalf("save store failed: %v", err)
	}

	loaded, err := store.GetStore(context.Background(), "store-1")
	if err != nil {
		t.Fatalf("get store failed: %v", err)
	}
	loaded.TrackProposal("prop-rogue")

	reloaded, err := store.GetStore(context.Background(), "store-1")
	if err != nil {
		t.Fatalf("get store failed: %v", err)
	}
	if len(reloaded.OpenProposalIDs) != 0 {
		t.Fatalf("mutating a loaded copy must not leak into the store")
	}
}

func TestIdempotencyRecordExpiry(t *testing.T) {
	store := NewStore()
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	record := ports.IdempotencyRecord{
		Key:         "idem-1",
		RequestHash: "hash-1",
		EntityID:    "prop-1",
		ExpiresAt:   now.Add(time.Hour),
	}
	if err := store.Put(context.Background(), record); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	if _, found, err := store.Get(context.Background(), "idem-1", now); err != nil || !found {
		t.Fatalf("expected live record, found=%v err=%v", found, err)
	}
	if _, found, err := store.Get(context.Background(), "idem-1", now.Add(2*time.Hour)); err != nil || found {
		t.Fatalf("expected expired record dropped, found=%v err=%v", found, err)
	}
}

func TestIdempotencyPutConflict(t *testing.T) {
	store := NewStore()
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	if err := store.Put(context.Background(), ports.IdempotencyRecord{
		Key:         "idem-1",
		RequestHash: "hash-1",
		EntityID:    "prop-1",
		ExpiresAt:   now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	err := store.Put(context.Background(), ports.IdempotencyRecord{
		Key:         "idem-1",
		RequestHash: "hash-2",
		EntityID:    "prop-2",
		ExpiresAt:   now.Add(time.Hour),
	})
	if !errors.Is(err, domainerrors.ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}
}

func TestOutboxAppendListMark(t *testing.T) {
	store := NewStore()
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	envelope := ports.EventEnvelope{
		EventID:      "event-1",
		EventType:    "proposal.created",
		OccurredAt:   now,
		PartitionKey: "store-1",
		Data:         []byte(`{"proposal_id":"prop-1"}`),
	}
	if err := store.AppendOutbox(context.Background(), envelope); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	// Appending the identical envelope again is a no-op, not a duplicate row.
	if err := store.AppendOutbox(context.Background(), envelope); err != nil {
		t.Fatalf("idempotent append failed: %v", err)
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(pending) != 1 || pending[0].EventType != "proposal.created" {
		t.Fatalf("unexpected pending rows: %+v", pending)
	}

	if err := store.MarkOutboxPublished(context.Background(), pending[0].OutboxID, now); err != nil {
		t.Fatalf("mark published failed: %v", err)
	}
	pending, err = store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending rows after publish, got %d", len(pending))
	}
}

func TestReserveEventDeduplicates(t *testing.T) {
	store := NewStore()
	expires := time.Now().UTC().Add(time.Hour)

	seen, err := store.ReserveEvent(context.Background(), "event-1", "hash-1", expires)
	if err != nil || seen {
		t.Fatalf("first reservation must be fresh, seen=%v err=%v", seen, err)
	}
	seen, err = store.ReserveEvent(context.Background(), "event-1", "hash-1", expires)
	if err != nil || !seen {
		t.Fatalf("second reservation must report replay, seen=%v err=%v", seen, err)
	}
	if _, err := store.ReserveEvent(context.Background(), "event-1", "hash-2", expires); !errors.Is(err, domainerrors.ErrConflict) {
		t.Fatalf("expected ErrConflict for diverging payload, got %v", err)
	}
}
