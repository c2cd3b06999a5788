package commands

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"custos/contexts/governance/quorum-engine/ports"
)

// Governance events are partitioned by store so store-scoped consumers see a
// stable per-store ordering.
func newGovernanceEnvelope(
	eventID string,
	eventType string,
	storeID string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "quorum-engine",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "store_id",
		PartitionKey:     storeID,
		Data:             payload,
	}, nil
}

func hashCommand(payload map[string]string) string {
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
