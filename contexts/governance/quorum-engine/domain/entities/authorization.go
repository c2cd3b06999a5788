package entities

import "time"

// ExternalAuthorization is the token minted when an external-action proposal
// executes. The external collaborator consumes it to perform its side effect
// and reports completion outside this engine.
type ExternalAuthorization struct {
	AuthorizationID string
	StoreID         string
	ProposalID      string
	Name            string
	Digest          string
	VotesCounted    int
	IssuedAt        time.Time
}

// AuditRecord is a consumed governance event persisted by the audit trail
// worker for per-store inspection.
type AuditRecord struct {
	AuditID    string
	StoreID    string
	EventID    string
	EventType  string
	OccurredAt time.Time
	Payload    []byte
	RecordedAt time.Time
}
