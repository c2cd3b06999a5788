package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"custos/contexts/governance/quorum-engine/domain/entities"
	domainerrors "custos/contexts/governance/quorum-engine/domain/errors"
	"custos/contexts/governance/quorum-engine/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// AutoMigrate creates the governance tables. Called from the composition
// root, never from module code.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&governanceStoreModel{},
		&proposalModel{},
		&authorizationModel{},
		&auditModel{},
		&idempotencyModel{},
		&outboxModel{},
		&eventDedupModel{},
	)
}

func (r *Repository) SaveStore(ctx context.Context, store entities.GovernanceStore) error {
	row, err := storeModelFromEntity(store)
	if err != nil {
		return r.logError("governance_repo_store_encode_failed", err, "store_id", store.StoreID)
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"resource_id":        row.ResourceID,
			"resource_kind":      row.ResourceKind,
			"resource_reference": row.ResourceReference,
			"resource_owner":     row.ResourceOwner,
			"required_votes":     row.RequiredVotes,
			"voters":             row.Voters,
			"open_proposal_ids":  row.OpenProposalIDs,
			"updated_at":         row.UpdatedAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		if isUniqueViolation(create.Error) {
			return domainerrors.ErrConflict
		}
		return r.logError("governance_repo_save_store_failed", create.Error, "store_id", store.StoreID)
	}
	return nil
}

func (r *Repository) GetStore(ctx context.Context, storeID string) (entities.GovernanceStore, error) {
	var row governanceStoreModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(storeID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.GovernanceStore{}, domainerrors.ErrStoreNotFound
		}
		return entities.GovernanceStore{}, r.logError("governance_repo_get_store_failed", err,
			"store_id", strings.TrimSpace(storeID),
		)
	}
	store, err := row.toEntity()
	if err != nil {
		return entities.GovernanceStore{}, r.logError("governance_repo_store_decode_failed", err,
			"store_id", strings.TrimSpace(storeID),
		)
	}
	return store, nil
}

func (r *Repository) DeleteStore(ctx context.Context, storeID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(storeID)).
		Delete(&governanceStoreModel{})
	if result.Error != nil {
		return r.logError("governance_repo_delete_store_failed", result.Error,
			"store_id", strings.TrimSpace(storeID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrStoreNotFound
	}
	return nil
}

func (r *Repository) SaveProposal(ctx context.Context, proposal entities.Proposal) error {
	row, err := proposalModelFromEntity(proposal)
	if err != nil {
		return r.logError("governance_repo_proposal_encode_failed", err, "proposal_id", proposal.ProposalID)
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"votes":      row.Votes,
			"metadata":   row.Metadata,
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		if isUniqueViolation(create.Error) {
			return domainerrors.ErrConflict
		}
		return r.logError("governance_repo_save_proposal_failed", create.Error,
			"proposal_id", proposal.ProposalID,
			"store_id", proposal.StoreID,
		)
	}
	return nil
}

func (r *Repository) GetProposal(ctx context.Context, proposalID string) (entities.Proposal, error) {
	var row proposalModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(proposalID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Proposal{}, domainerrors.ErrProposalNotFound
		}
		return entities.Proposal{}, r.logError("governance_repo_get_proposal_failed", err,
			"proposal_id", strings.TrimSpace(proposalID),
		)
	}
	proposal, err := row.toEntity()
	if err != nil {
		return entities.Proposal{}, r.logError("governance_repo_proposal_decode_failed", err,
			"proposal_id", strings.TrimSpace(proposalID),
		)
	}
	return proposal, nil
}

func (r *Repository) ListProposalsByStore(ctx context.Context, storeID string) ([]entities.Proposal, error) {
	var rows []proposalModel
	if err := r.db.WithContext(ctx).
		Where("store_id = ?", strings.TrimSpace(storeID)).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_proposals_failed", err,
			"store_id", strings.TrimSpace(storeID),
		)
	}
	items := make([]entities.Proposal, 0, len(rows))
	for _, row := range rows {
		proposal, err := row.toEntity()
		if err != nil {
			return nil, r.logError("governance_repo_proposal_decode_failed", err, "proposal_id", row.ID)
		}
		items = append(items, proposal)
	}
	return items, nil
}

func (r *Repository) DeleteProposal(ctx context.Context, proposalID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(proposalID)).
		Delete(&proposalModel{})
	if result.Error != nil {
		return r.logError("governance_repo_delete_proposal_failed", result.Error,
			"proposal_id", strings.TrimSpace(proposalID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrProposalNotFound
	}
	return nil
}

func (r *Repository) SaveAuthorization(ctx context.Context, authorization entities.ExternalAuthorization) error {
	row := authorizationModelFromEntity(authorization)
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("governance_repo_save_authorization_failed", create.Error,
			"authorization_id", row.ID,
		)
	}
	return nil
}

func (r *Repository) GetAuthorization(ctx context.Context, authorizationID string) (entities.ExternalAuthorization, error) {
	var row authorizationModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(authorizationID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.ExternalAuthorization{}, domainerrors.ErrAuthorizationNotFound
		}
		return entities.ExternalAuthorization{}, r.logError("governance_repo_get_authorization_failed", err,
			"authorization_id", strings.TrimSpace(authorizationID),
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) SaveAuditRecord(ctx context.Context, record entities.AuditRecord) error {
	row := auditModelFromEntity(record)
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("governance_repo_save_audit_failed", create.Error,
			"audit_id", row.ID,
			"store_id", row.StoreID,
		)
	}
	return nil
}

func (r *Repository) ListAuditByStore(ctx context.Context, storeID string) ([]entities.AuditRecord, error) {
	var rows []auditModel
	if err := r.db.WithContext(ctx).
		Where("store_id = ?", strings.TrimSpace(storeID)).
		Order("recorded_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_audit_failed", err,
			"store_id", strings.TrimSpace(storeID),
		)
	}
	items := make([]entities.AuditRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).
		Where("key = ?", strings.TrimSpace(key)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, r.logError("governance_repo_idempotency_get_failed", err,
			"idempotency_key", strings.TrimSpace(key),
		)
	}
	if !row.ExpiresAt.IsZero() && now.UTC().After(row.ExpiresAt.UTC()) {
		if err := r.db.WithContext(ctx).
			Where("key = ?", strings.TrimSpace(key)).
			Delete(&idempotencyModel{}).Error; err != nil {
			return ports.IdempotencyRecord{}, false, r.logError("governance_repo_idempotency_expire_delete_failed", err,
				"idempotency_key", strings.TrimSpace(key),
			)
		}
		return ports.IdempotencyRecord{}, false, nil
	}
	return ports.IdempotencyRecord{
		Key:         row.Key,
		RequestHash: row.RequestHash,
		EntityID:    row.EntityID,
		ExpiresAt:   row.ExpiresAt.UTC(),
	}, true, nil
}

func (r *Repository) Put(ctx context.Context, record ports.IdempotencyRecord) error {
	row := idempotencyModel{
		Key:         strings.TrimSpace(record.Key),
		RequestHash: strings.TrimSpace(record.RequestHash),
		EntityID:    strings.TrimSpace(record.EntityID),
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("governance_repo_idempotency_put_failed", create.Error, "idempotency_key", row.Key)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing idempotencyModel
	if err := r.db.WithContext(ctx).
		Where("key = ?", row.Key).
		First(&existing).Error; err != nil {
		return r.logError("governance_repo_idempotency_load_existing_failed", err, "idempotency_key", row.Key)
	}
	if existing.RequestHash != row.RequestHash || existing.EntityID != row.EntityID {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("governance_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("governance_repo_append_outbox_insert_failed", create.Error,
			"outbox_id", row.OutboxID,
		)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := r.db.WithContext(ctx).
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return r.logError("governance_repo_append_outbox_load_existing_failed", err,
			"outbox_id", row.OutboxID,
		)
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("governance_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ReserveEvent(
	ctx context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	row := eventDedupModel{
		EventID:     strings.TrimSpace(eventID),
		PayloadHash: strings.TrimSpace(payloadHash),
		ExpiresAt:   expiresAt.UTC(),
		ProcessedAt: time.Now().UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return false, r.logError("governance_repo_reserve_event_failed", create.Error,
			"event_id", strings.TrimSpace(eventID),
		)
	}
	if create.RowsAffected > 0 {
		return false, nil
	}

	var existing eventDedupModel
	if err := r.db.WithContext(ctx).
		Select("payload_hash").
		Where("event_id = ?", row.EventID).
		First(&existing).Error; err != nil {
		return false, r.logError("governance_repo_reserve_event_load_existing_failed", err,
			"event_id", strings.TrimSpace(eventID),
		)
	}
	if existing.PayloadHash != row.PayloadHash {
		return false, domainerrors.ErrConflict
	}
	return true, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+7)
	fields = append(fields,
		"event", event,
		"module", "governance/quorum-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("governance repository operation failed", fields...)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
