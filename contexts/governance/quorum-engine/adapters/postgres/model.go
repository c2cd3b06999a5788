package postgresadapter

import (
	"encoding/json"
	"strings"
	"time"

	"custos/contexts/governance/quorum-engine/domain/entities"
)

type governanceStoreModel struct {
	ID                string    `gorm:"column:id;primaryKey"`
	ResourceID        string    `gorm:"column:resource_id"`
	ResourceKind      string    `gorm:"column:resource_kind"`
	ResourceReference string    `gorm:"column:resource_reference"`
	ResourceOwner     string    `gorm:"column:resource_owner"`
	RequiredVotes     int       `gorm:"column:required_votes"`
	Voters            []byte    `gorm:"column:voters;type:jsonb"`
	OpenProposalIDs   []byte    `gorm:"column:open_proposal_ids;type:jsonb"`
	CreatedAt         time.Time `gorm:"column:created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

func (governanceStoreModel) TableName() string {
	return "governance_stores"
}

func storeModelFromEntity(store entities.GovernanceStore) (governanceStoreModel, error) {
	voters, err := json.Marshal(store.Voters.List())
	if err != nil {
		return governanceStoreModel{}, err
	}
	openIDs, err := json.Marshal(store.OpenProposalIDs)
	if err != nil {
		return governanceStoreModel{}, err
	}
	row := governanceStoreModel{
		ID:                strings.TrimSpace(store.StoreID),
		ResourceID:        strings.TrimSpace(store.Resource.ResourceID),
		ResourceKind:      strings.TrimSpace(store.Resource.Kind),
		ResourceReference: strings.TrimSpace(store.Resource.Reference),
		ResourceOwner:     strings.TrimSpace(store.Resource.Owner),
		RequiredVotes:     store.RequiredVotes,
		Voters:            voters,
		OpenProposalIDs:   openIDs,
		CreatedAt:         store.CreatedAt.UTC(),
		UpdatedAt:         store.UpdatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row, nil
}

func (m governanceStoreModel) toEntity() (entities.GovernanceStore, error) {
	var voters []string
	if len(m.Voters) > 0 {
		if err := json.Unmarshal(m.Voters, &voters); err != nil {
			return entities.GovernanceStore{}, err
		}
	}
	openIDs := []string{}
	if len(m.OpenProposalIDs) > 0 {
		if err := json.Unmarshal(m.OpenProposalIDs, &openIDs); err != nil {
			return entities.GovernanceStore{}, err
		}
	}
	return entities.GovernanceStore{
		StoreID: m.ID,
		Resource: entities.ProtectedResource{
			ResourceID: m.ResourceID,
			Kind:       m.ResourceKind,
			Reference:  m.ResourceReference,
			Owner:      m.ResourceOwner,
		},
		RequiredVotes:   m.RequiredVotes,
		Voters:          entities.NewVoterSet(voters),
		OpenProposalIDs: openIDs,
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}, nil
}

type proposalModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	StoreID   string    `gorm:"column:store_id"`
	Creator   string    `gorm:"column:creator"`
	Votes     []byte    `gorm:"column:votes;type:jsonb"`
	Metadata  []byte    `gorm:"column:metadata;type:jsonb"`
	Action    []byte    `gorm:"column:action;type:jsonb"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (proposalModel) TableName() string {
	return "governance_proposals"
}

func proposalModelFromEntity(proposal entities.Proposal) (proposalModel, error) {
	votes, err := json.Marshal(proposal.Votes)
	if err != nil {
		return proposalModel{}, err
	}
	metadata, err := json.Marshal(proposal.Metadata)
	if err != nil {
		return proposalModel{}, err
	}
	action, err := json.Marshal(proposal.Action)
	if err != nil {
		return proposalModel{}, err
	}
	row := proposalModel{
		ID:        strings.TrimSpace(proposal.ProposalID),
		StoreID:   strings.TrimSpace(proposal.StoreID),
		Creator:   strings.TrimSpace(proposal.Creator),
		Votes:     votes,
		Metadata:  metadata,
		Action:    action,
		CreatedAt: proposal.CreatedAt.UTC(),
		UpdatedAt: proposal.UpdatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row, nil
}

func (m proposalModel) toEntity() (entities.Proposal, error) {
	votes := []string{}
	if len(m.Votes) > 0 {
		if err := json.Unmarshal(m.Votes, &votes); err != nil {
			return entities.Proposal{}, err
		}
	}
	metadata := map[string]string{}
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &metadata); err != nil {
			return entities.Proposal{}, err
		}
	}
	var action entities.Action
	if len(m.Action) > 0 {
		if err := json.Unmarshal(m.Action, &action); err != nil {
			return entities.Proposal{}, err
		}
	}
	return entities.Proposal{
		ProposalID: m.ID,
		StoreID:    m.StoreID,
		Creator:    m.Creator,
		Votes:      votes,
		Metadata:   metadata,
		Action:     action,
		CreatedAt:  m.CreatedAt.UTC(),
		UpdatedAt:  m.UpdatedAt.UTC(),
	}, nil
}

type authorizationModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	StoreID      string    `gorm:"column:store_id"`
	ProposalID   string    `gorm:"column:proposal_id"`
	Name         string    `gorm:"column:name"`
	Digest       string    `gorm:"column:digest"`
	VotesCounted int       `gorm:"column:votes_counted"`
	IssuedAt     time.Time `gorm:"column:issued_at"`
}

func (authorizationModel) TableName() string {
	return "governance_authorizations"
}

func authorizationModelFromEntity(authorization entities.ExternalAuthorization) authorizationModel {
	return authorizationModel{
		ID:           strings.TrimSpace(authorization.AuthorizationID),
		StoreID:      strings.TrimSpace(authorization.StoreID),
		ProposalID:   strings.TrimSpace(authorization.ProposalID),
		Name:         strings.TrimSpace(authorization.Name),
		Digest:       strings.TrimSpace(authorization.Digest),
		VotesCounted: authorization.VotesCounted,
		IssuedAt:     authorization.IssuedAt.UTC(),
	}
}

func (m authorizationModel) toEntity() entities.ExternalAuthorization {
	return entities.ExternalAuthorization{
		AuthorizationID: m.ID,
		StoreID:         m.StoreID,
		ProposalID:      m.ProposalID,
		Name:            m.Name,
		Digest:          m.Digest,
		VotesCounted:    m.VotesCounted,
		IssuedAt:        m.IssuedAt.UTC(),
	}
}

type auditModel struct {
	ID         string    `gorm:"column:id;primaryKey"`
	StoreID    string    `gorm:"column:store_id"`
	EventID    string    `gorm:"column:event_id"`
	EventType  string    `gorm:"column:event_type"`
	OccurredAt time.Time `gorm:"column:occurred_at"`
	Payload    []byte    `gorm:"column:payload;type:jsonb"`
	RecordedAt time.Time `gorm:"column:recorded_at"`
}

func (auditModel) TableName() string {
	return "governance_audit_log"
}

func auditModelFromEntity(record entities.AuditRecord) auditModel {
	return auditModel{
		ID:         strings.TrimSpace(record.AuditID),
		StoreID:    strings.TrimSpace(record.StoreID),
		EventID:    strings.TrimSpace(record.EventID),
		EventType:  strings.TrimSpace(record.EventType),
		OccurredAt: record.OccurredAt.UTC(),
		Payload:    append([]byte(nil), record.Payload...),
		RecordedAt: record.RecordedAt.UTC(),
	}
}

func (m auditModel) toEntity() entities.AuditRecord {
	return entities.AuditRecord{
		AuditID:    m.ID,
		StoreID:    m.StoreID,
		EventID:    m.EventID,
		EventType:  m.EventType,
		OccurredAt: m.OccurredAt.UTC(),
		Payload:    append([]byte(nil), m.Payload...),
		RecordedAt: m.RecordedAt.UTC(),
	}
}

type idempotencyModel struct {
	Key         string    `gorm:"column:key;primaryKey"`
	RequestHash string    `gorm:"column:request_hash"`
	EntityID    string    `gorm:"column:entity_id"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "governance_idempotency_keys"
}

type outboxModel struct {
	OutboxID     string    `gorm:"column:outbox_id;primaryKey"`
	EventType    string    `gorm:"column:event_type"`
	PartitionKey string    `gorm:"column:partition_key"`
	Payload      []byte    `gorm:"column:payload;type:jsonb"`
	Status       string    `gorm:"column:status"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	PublishedAt  time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "governance_outbox"
}

type eventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	PayloadHash string    `gorm:"column:payload_hash"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (eventDedupModel) TableName() string {
	return "governance_event_dedup"
}
