package workers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	application "custos/contexts/governance/quorum-engine/application"
	"custos/contexts/governance/quorum-engine/domain/entities"
	"custos/contexts/governance/quorum-engine/ports"
)

const defaultAuditCG = "quorum-engine-audit-cg"

// AuditTrailConsumer persists every published governance event as an audit
// record keyed by store, with event-id dedupe so broker redeliveries do not
// duplicate rows.
type AuditTrailConsumer struct {
	Subscriber    ports.EventSubscriber
	Dedup         ports.EventDedupStore
	Audit         ports.AuditRepository
	Clock         ports.Clock
	IDGen         ports.IDGenerator
	ConsumerGroup string
	DedupTTL      time.Duration
	Logger        *slog.Logger
}

// Start subscribes the audit trail to the governance topic.
func (c AuditTrailConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	group := strings.TrimSpace(c.ConsumerGroup)
	if group == "" {
		group = defaultAuditCG
	}
	if err := c.Subscriber.Subscribe(ctx, GovernanceTopic, group, c.handleEvent); err != nil {
		logger.Error("audit consumer subscribe failed",
			"event", "governance_audit_subscribe_failed",
			"module", "governance/quorum-engine",
			"layer", "worker",
			"topic", GovernanceTopic,
			"consumer_group", group,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("audit consumer subscription active",
		"event", "governance_audit_consumer_started",
		"module", "governance/quorum-engine",
		"layer", "worker",
		"consumer_group", group,
	)
	return nil
}

func (c AuditTrailConsumer) handleEvent(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)

	now := time.Now().UTC()
	if c.Clock != nil {
		now = c.Clock.Now().UTC()
	}
	ttl := c.DedupTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	alreadyProcessed, err := c.Dedup.ReserveEvent(ctx, event.EventID, hashPayload(event.Data), now.Add(ttl))
	if err != nil {
		return err
	}
	if alreadyProcessed {
		logger.Debug("governance event replay skipped",
			"event", "governance_audit_replay_skipped",
			"module", "governance/quorum-engine",
			"layer", "worker",
			"event_id", event.EventID,
		)
		return nil
	}

	auditID, err := c.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	record := entities.AuditRecord{
		AuditID:    auditID,
		StoreID:    strings.TrimSpace(event.PartitionKey),
		EventID:    event.EventID,
		EventType:  event.EventType,
		OccurredAt: event.OccurredAt.UTC(),
		Payload:    append([]byte(nil), event.Data...),
		RecordedAt: now,
	}
	if err := c.Audit.SaveAuditRecord(ctx, record); err != nil {
		logger.Error("audit record save failed",
			"event", "governance_audit_save_failed",
			"module", "governance/quorum-engine",
			"layer", "worker",
			"event_id", event.EventID,
			"store_id", record.StoreID,
			"error", err.Error(),
		)
		return err
	}

	logger.Info("governance event audited",
		"event", "governance_audit_recorded",
		"module", "governance/quorum-engine",
		"layer", "worker",
		"event_id", event.EventID,
		"event_type", event.EventType,
		"store_id", record.StoreID,
	)
	return nil
}

func hashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
