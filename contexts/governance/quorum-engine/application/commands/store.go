package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "custos/contexts/governance/quorum-engine/application"
	"custos/contexts/governance/quorum-engine/domain/entities"
	domainerrors "custos/contexts/governance/quorum-engine/domain/errors"
	"custos/contexts/governance/quorum-engine/ports"
)

// CreateStoreCommand is the write-model input for store creation. The caller
// hands over the protected resource; after creation all access to it is
// mediated by governance actions.
type CreateStoreCommand struct {
	ResourceKind      string
	ResourceReference string
	RequiredVotes     int
	Voters            []string
}

type CreateStoreResult struct {
	Store entities.GovernanceStore
}

// ReplaceSelfCommand swaps the caller for a new identity in the voter set
// without a proposal.
type ReplaceSelfCommand struct {
	StoreID  string
	Caller   string
	NewVoter string
}

// StoreUseCase orchestrates store lifecycle commands that do not go through
// the proposal mechanism.
type StoreUseCase struct {
	Stores ports.StoreRepository
	Outbox ports.OutboxWriter
	Locks  ports.StoreLocker
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

// CreateStore wraps a resource in a new governance store. Fails with
// ErrInvalidConfiguration unless 1 <= required_votes <= |voters|.
func (uc StoreUseCase) CreateStore(ctx context.Context, cmd CreateStoreCommand) (CreateStoreResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("store create processing started",
		"event", "governance_store_create_started",
		"module", "governance/quorum-engine",
		"layer", "application",
		"required_votes", cmd.RequiredVotes,
		"voter_count", len(cmd.Voters),
	)
	if strings.TrimSpace(cmd.ResourceKind) == "" {
		return CreateStoreResult{}, domainerrors.ErrInvalidProposalInput
	}

	now := uc.now()
	storeID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return CreateStoreResult{}, err
	}
	resourceID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return CreateStoreResult{}, err
	}

	store, err := entities.NewGovernanceStore(storeID, entities.ProtectedResource{
		ResourceID: resourceID,
		Kind:       strings.TrimSpace(cmd.ResourceKind),
		Reference:  strings.TrimSpace(cmd.ResourceReference),
	}, cmd.RequiredVotes, cmd.Voters, now)
	if err != nil {
		logger.Warn("store create validation failed",
			"event", "governance_store_create_validation_failed",
			"module", "governance/quorum-engine",
			"layer", "application",
			"required_votes", cmd.RequiredVotes,
			"voter_count", len(cmd.Voters),
			"error", err.Error(),
		)
		return CreateStoreResult{}, err
	}

	if err := uc.Stores.SaveStore(ctx, store); err != nil {
		return CreateStoreResult{}, err
	}
	if err := uc.emitStoreEvent(ctx, "store.created", store, now, map[string]any{
		"required_votes": store.RequiredVotes,
		"voters":         store.Voters.List(),
		"resource_kind":  store.Resource.Kind,
	}); err != nil {
		return CreateStoreResult{}, err
	}

	logger.Info("store created",
		"event", "governance_store_created",
		"module", "governance/quorum-engine",
		"layer", "application",
		"store_id", store.StoreID,
		"required_votes", store.RequiredVotes,
		"voter_count", store.Voters.Len(),
	)
	return CreateStoreResult{Store: store}, nil
}

// ReplaceSelf swaps the caller's own identity. No quorum required; the voter
// count is preserved.
func (uc StoreUseCase) ReplaceSelf(ctx context.Context, cmd ReplaceSelfCommand) (entities.GovernanceStore, error) {
	logger := application.ResolveLogger(uc.Logger)
	storeID := strings.TrimSpace(cmd.StoreID)
	logger.Info("self replacement processing started",
		"event", "governance_replace_self_started",
		"module", "governance/quorum-engine",
		"layer", "application",
		"store_id", storeID,
		"caller", strings.TrimSpace(cmd.Caller),
	)
	if storeID == "" || strings.TrimSpace(cmd.Caller) == "" || strings.TrimSpace(cmd.NewVoter) == "" {
		return entities.GovernanceStore{}, domainerrors.ErrInvalidProposalInput
	}

	release := uc.Locks.AcquireStore(storeID)
	defer release()

	store, err := uc.Stores.GetStore(ctx, storeID)
	if err != nil {
		return entities.GovernanceStore{}, err
	}

	now := uc.now()
	if err := store.ReplaceSelf(cmd.Caller, cmd.NewVoter, now); err != nil {
		logger.Warn("self replacement rejected",
			"event", "governance_replace_self_rejected",
			"module", "governance/quorum-engine",
			"layer", "application",
			"store_id", storeID,
			"caller", strings.TrimSpace(cmd.Caller),
			"error", err.Error(),
		)
		return entities.GovernanceStore{}, err
	}
	if err := uc.Stores.SaveStore(ctx, store); err != nil {
		return entities.GovernanceStore{}, err
	}
	if err := uc.emitStoreEvent(ctx, "voter.replaced", store, now, map[string]any{
		"old_voter": strings.TrimSpace(cmd.Caller),
		"new_voter": strings.TrimSpace(cmd.NewVoter),
		"reason":    "self_service",
	}); err != nil {
		return entities.GovernanceStore{}, err
	}

	logger.Info("voter replaced via self service",
		"event", "governance_replace_self_applied",
		"module", "governance/quorum-engine",
		"layer", "application",
		"store_id", storeID,
		"old_voter", strings.TrimSpace(cmd.Caller),
		"new_voter", strings.TrimSpace(cmd.NewVoter),
	)
	return store, nil
}

func (uc StoreUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

func (uc StoreUseCase) emitStoreEvent(
	ctx context.Context,
	eventType string,
	store entities.GovernanceStore,
	occurredAt time.Time,
	data map[string]any,
) error {
	// Outbox is optional for pure read/test wiring, so nil is treated as no-op.
	if uc.Outbox == nil {
		return nil
	}
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"store_id":    store.StoreID,
		"occurred_at": occurredAt.UTC().Format(time.RFC3339),
	}
	for key, value := range data {
		payload[key] = value
	}
	envelope, err := newGovernanceEnvelope(eventID, eventType, store.StoreID, occurredAt, payload)
	if err != nil {
		return err
	}
	return uc.Outbox.AppendOutbox(ctx, envelope)
}
