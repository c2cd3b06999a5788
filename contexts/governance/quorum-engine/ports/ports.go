package ports

import (
	"context"
	"encoding/json"
	"time"

	"custos/contexts/governance/quorum-engine/domain/entities"
)

type StoreRepository interface {
	SaveStore(ctx context.Context, store entities.GovernanceStore) error
	GetStore(ctx context.Context, storeID string) (entities.GovernanceStore, error)
	DeleteStore(ctx context.Context, storeID string) error
}

type ProposalRepository interface {
	SaveProposal(ctx context.Context, proposal entities.Proposal) error
	GetProposal(ctx context.Context, proposalID string) (entities.Proposal, error)
	ListProposalsByStore(ctx context.Context, storeID string) ([]entities.Proposal, error)
	DeleteProposal(ctx context.Context, proposalID string) error
}

type AuthorizationRepository interface {
	SaveAuthorization(ctx context.Context, authorization entities.ExternalAuthorization) error
	GetAuthorization(ctx context.Context, authorizationID string) (entities.ExternalAuthorization, error)
}

type AuditRepository interface {
	SaveAuditRecord(ctx context.Context, record entities.AuditRecord) error
	ListAuditByStore(ctx context.Context, storeID string) ([]entities.AuditRecord, error)
}

type IdempotencyRecord struct {
	Key         string
	RequestHash string
	EntityID    string
	ExpiresAt   time.Time
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	Put(ctx context.Context, record IdempotencyRecord) error
}

// EventEnvelope is the canonical event shape appended to the outbox and
// published on the bus. Mirrors contracts/gen/events/v1.
type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}

type EventDedupStore interface {
	ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error)
}

// StoreLocker serializes operations against one governance store. Every
// public operation runs as a single indivisible unit under the store's lock;
// the engine performs no finer-grained locking.
type StoreLocker interface {
	AcquireStore(storeID string) (release func())
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
