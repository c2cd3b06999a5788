package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"custos/contexts/governance/quorum-engine/domain/entities"
	domainerrors "custos/contexts/governance/quorum-engine/domain/errors"
	"custos/contexts/governance/quorum-engine/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

type dedupRecord struct {
	payloadHash string
	expiresAt   time.Time
}

// Store is the in-memory adapter behind every port the engine needs. It backs
// tests and the in-memory module wiring.
type Store struct {
	mu sync.RWMutex

	stores         map[string]entities.GovernanceStore
	proposals      map[string]entities.Proposal
	authorizations map[string]entities.ExternalAuthorization
	audit          map[string][]entities.AuditRecord
	idempotency    map[string]ports.IdempotencyRecord
	outbox         map[string]outboxRecord
	eventDedup     map[string]dedupRecord

	lockMu     sync.Mutex
	storeLocks map[string]*sync.Mutex
}

func NewStore() *Store {
	return &Store{
		stores:         make(map[string]entities.GovernanceStore),
		proposals:      make(map[string]entities.Proposal),
		authorizations: make(map[string]entities.ExternalAuthorization),
		audit:          make(map[string][]entities.AuditRecord),
		idempotency:    make(map[string]ports.IdempotencyRecord),
		outbox:         make(map[string]outboxRecord),
		eventDedup:     make(map[string]dedupRecord),
		storeLocks:     make(map[string]*sync.Mutex),
	}
}

func (s *Store) SaveStore(_ context.Context, store entities.GovernanceStore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stores[store.StoreID] = cloneStore(store)
	return nil
}

func (s *Store) GetStore(_ context.Context, storeID string) (entities.GovernanceStore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	store, ok := s.stores[strings.TrimSpace(storeID)]
	if !ok {
		return entities.GovernanceStore{}, domainerrors.ErrStoreNotFound
	}
	return cloneStore(store), nil
}

func (s *Store) DeleteStore(_ context.Context, storeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	storeID = strings.TrimSpace(storeID)
	if _, ok := s.stores[storeID]; !ok {
		return domainerrors.ErrStoreNotFound
	}
	delete(s.stores, storeID)
	return nil
}

func (s *Store) SaveProposal(_ context.Context, proposal entities.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[proposal.ProposalID] = cloneProposal(proposal)
	return nil
}

func (s *Store) GetProposal(_ context.Context, proposalID string) (entities.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	proposal, ok := s.proposals[strings.TrimSpace(proposalID)]
	if !ok {
		return entities.Proposal{}, domainerrors.ErrProposalNotFound
	}
	return cloneProposal(proposal), nil
}

func (s *Store) ListProposalsByStore(_ context.Context, storeID string) ([]entities.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	storeID = strings.TrimSpace(storeID)
	items := make([]entities.Proposal, 0)
	for _, proposal := range s.proposals {
		if proposal.StoreID == storeID {
			items = append(items, cloneProposal(proposal))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *Store) DeleteProposal(_ context.Context, proposalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	proposalID = strings.TrimSpace(proposalID)
	if _, ok := s.proposals[proposalID]; !ok {
		return domainerrors.ErrProposalNotFound
	}
	delete(s.proposals, proposalID)
	return nil
}

func (s *Store) SaveAuthorization(_ context.Context, authorization entities.ExternalAuthorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authorizations[authorization.AuthorizationID] = authorization
	return nil
}

func (s *Store) GetAuthorization(_ context.Context, authorizationID string) (entities.ExternalAuthorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	authorization, ok := s.authorizations[strings.TrimSpace(authorizationID)]
	if !ok {
		return entities.ExternalAuthorization{}, domainerrors.ErrAuthorizationNotFound
	}
	return authorization, nil
}

func (s *Store) SaveAuditRecord(_ context.Context, record entities.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	storeID := strings.TrimSpace(record.StoreID)
	s.audit[storeID] = append(s.audit[storeID], record)
	return nil
}

func (s *Store) ListAuditByStore(_ context.Context, storeID string) ([]entities.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := append([]entities.AuditRecord(nil), s.audit[strings.TrimSpace(storeID)]...)
	sort.Slice(items, func(i, j int) bool {
		return items[i].RecordedAt.Before(items[j].RecordedAt)
	})
	return items, nil
}

func (s *Store) Get(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key = strings.TrimSpace(key)
	record, exists := s.idempotency[key]
	if !exists {
		return ports.IdempotencyRecord{}, false, nil
	}
	if !record.ExpiresAt.After(now.UTC()) {
		delete(s.idempotency, key)
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) Put(_ context.Context, record ports.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(record.Key)
	existing, exists := s.idempotency[key]
	if exists {
		if existing.RequestHash != record.RequestHash || existing.EntityID != record.EntityID {
			return domainerrors.ErrIdempotencyConflict
		}
		return nil
	}
	s.idempotency[key] = ports.IdempotencyRecord{
		Key:         key,
		RequestHash: strings.TrimSpace(record.RequestHash),
		EntityID:    strings.TrimSpace(record.EntityID),
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	return nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return domainerrors.ErrConflict
		}
		return nil
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		items = append(items, row.message)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) ReserveEvent(
	_ context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(eventID)
	existing, ok := s.eventDedup[key]
	if ok {
		if !existing.expiresAt.IsZero() && time.Now().UTC().After(existing.expiresAt.UTC()) {
			delete(s.eventDedup, key)
		} else {
			if existing.payloadHash != strings.TrimSpace(payloadHash) {
				return false, domainerrors.ErrConflict
			}
			return true, nil
		}
	}

	s.eventDedup[key] = dedupRecord{
		payloadHash: strings.TrimSpace(payloadHash),
		expiresAt:   expiresAt.UTC(),
	}
	return false, nil
}

// AcquireStore serializes operations per governance store.
func (s *Store) AcquireStore(storeID string) func() {
	s.lockMu.Lock()
	lock, ok := s.storeLocks[strings.TrimSpace(storeID)]
	if !ok {
		lock = &sync.Mutex{}
		s.storeLocks[strings.TrimSpace(storeID)] = lock
	}
	s.lockMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

// cloneStore and cloneProposal copy slice/map state so callers never alias
// stored records.
func cloneStore(store entities.GovernanceStore) entities.GovernanceStore {
	copied := store
	copied.Voters = entities.NewVoterSet(store.Voters.List())
	copied.OpenProposalIDs = append([]string(nil), store.OpenProposalIDs...)
	return copied
}

func cloneProposal(proposal entities.Proposal) entities.Proposal {
	copied := proposal
	copied.Votes = append([]string(nil), proposal.Votes...)
	metadata := make(map[string]string, len(proposal.Metadata))
	for key, value := range proposal.Metadata {
		metadata[key] = value
	}
	copied.Metadata = metadata
	return copied
}
