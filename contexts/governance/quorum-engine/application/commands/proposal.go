package commands

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	application "custos/contexts/governance/quorum-engine/application"
	"custos/contexts/governance/quorum-engine/domain/entities"
	domainerrors "custos/contexts/governance/quorum-engine/domain/errors"
	"custos/contexts/governance/quorum-engine/ports"
)

// ProposeCommand creates a proposal against a store and records the
// creator's own vote.
type ProposeCommand struct {
	StoreID        string
	Creator        string
	IdempotencyKey string
	Action         entities.Action
	Metadata       map[string]string
}

type ProposeResult struct {
	Proposal entities.Proposal
	Replayed bool
}

// VoteCommand casts the caller's approval on an open proposal.
type VoteCommand struct {
	ProposalID     string
	StoreID        string
	Caller         string
	IdempotencyKey string
}

type VoteResult struct {
	Proposal      entities.Proposal
	QuorumReached bool
	Replayed      bool
}

// RetractVoteCommand withdraws a previously cast vote. This is the only
// cancellation mechanism short of the creator deleting the proposal.
type RetractVoteCommand struct {
	ProposalID     string
	StoreID        string
	Caller         string
	IdempotencyKey string
}

// DeleteProposalCommand withdraws a proposal entirely. Creator-only, allowed
// at any vote count before execution.
type DeleteProposalCommand struct {
	ProposalID string
	Caller     string
}

// ExecuteCommand attempts to execute a proposal. Any caller may attempt it;
// quorum is recomputed against the store's current voter set at call time.
type ExecuteCommand struct {
	ProposalID string
	StoreID    string
}

type ExecuteResult struct {
	Result        entities.ActionResult
	Authorization *entities.ExternalAuthorization
}

// ProposalUseCase orchestrates the proposal lifecycle: creation with
// auto-vote, vote/retract, creator deletion, and quorum-gated execution
// dispatching to the governance action handlers.
type ProposalUseCase struct {
	Stores         ports.StoreRepository
	Proposals      ports.ProposalRepository
	Authorizations ports.AuthorizationRepository
	Idempotency    ports.IdempotencyStore
	Outbox         ports.OutboxWriter
	Locks          ports.StoreLocker
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

// Propose creates a proposal. Fails ErrUnauthorized unless the creator is a
// current voter of the store. Replay-safe via idempotency key.
func (uc ProposalUseCase) Propose(ctx context.Context, cmd ProposeCommand) (ProposeResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	storeID := strings.TrimSpace(cmd.StoreID)
	creator := strings.TrimSpace(cmd.Creator)
	logger.Info("proposal create processing started",
		"event", "governance_propose_started",
		"module", "governance/quorum-engine",
		"layer", "application",
		"store_id", storeID,
		"creator", creator,
		"action_kind", string(cmd.Action.Kind),
	)
	if storeID == "" || creator == "" {
		return ProposeResult{}, domainerrors.ErrInvalidProposalInput
	}
	if strings.TrimSpace(cmd.IdempotencyKey) == "" {
		return ProposeResult{}, domainerrors.ErrIdempotencyKeyRequired
	}

	now := uc.now()
	requestHash := hashCommand(map[string]string{
		"op":       "propose",
		"store_id": storeID,
		"creator":  creator,
		"action":   marshalAction(cmd.Action),
	})
	if record, found, err := uc.Idempotency.Get(ctx, cmd.IdempotencyKey, now); err != nil {
		return ProposeResult{}, err
	} else if found {
		if record.RequestHash != requestHash {
			return ProposeResult{}, domainerrors.ErrIdempotencyConflict
		}
		proposal, err := uc.Proposals.GetProposal(ctx, record.EntityID)
		if err != nil {
			return ProposeResult{}, err
		}
		logger.Info("proposal create replayed",
			"event", "governance_propose_replayed",
			"module", "governance/quorum-engine",
			"layer", "application",
			"proposal_id", proposal.ProposalID,
			"store_id", storeID,
		)
		return ProposeResult{Proposal: proposal, Replayed: true}, nil
	}

	release := uc.Locks.AcquireStore(storeID)
	defer release()

	store, err := uc.Stores.GetStore(ctx, storeID)
	if err != nil {
		return ProposeResult{}, err
	}

	proposalID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return ProposeResult{}, err
	}
	proposal, err := entities.NewProposal(proposalID, &store, creator, cmd.Action, cmd.Metadata, now)
	if err != nil {
		logger.Warn("proposal create rejected",
			"event", "governance_propose_rejected",
			"module", "governance/quorum-engine",
			"layer", "application",
			"store_id", storeID,
			"creator", creator,
			"error", err.Error(),
		)
		return ProposeResult{}, err
	}

	if err := uc.Proposals.SaveProposal(ctx, proposal); err != nil {
		return ProposeResult{}, err
	}
	if err := uc.Stores.SaveStore(ctx, store); err != nil {
		return ProposeResult{}, err
	}

	if err := uc.emitProposalEvent(ctx, "proposal.created", proposal, now, map[string]any{
		"creator":     creator,
		"action_kind": string(cmd.Action.Kind),
	}); err != nil {
		return ProposeResult{}, err
	}
	if err := uc.emitVoteEvents(ctx, &store, proposal, creator, now); err != nil {
		return ProposeResult{}, err
	}
	if err := uc.Idempotency.Put(ctx, ports.IdempotencyRecord{
		Key:         strings.TrimSpace(cmd.IdempotencyKey),
		RequestHash: requestHash,
		EntityID:    proposal.ProposalID,
		ExpiresAt:   now.Add(uc.resolveIdempotencyTTL()),
	}); err != nil {
		return ProposeResult{}, err
	}

	logger.Info("proposal created",
		"event", "governance_proposal_created",
		"module", "governance/quorum-engine",
		"layer", "application",
		"proposal_id", proposal.ProposalID,
		"store_id", storeID,
		"creator", creator,
		"action_kind", string(cmd.Action.Kind),
	)
	return ProposeResult{Proposal: proposal}, nil
}

// CastVote appends the caller's vote. Fails ErrUnauthorized if the caller is
// not a current voter and ErrDuplicateVote on a second vote without an
// intervening retraction.
func (uc ProposalUseCase) CastVote(ctx context.Context, cmd VoteCommand) (VoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	proposalID := strings.TrimSpace(cmd.ProposalID)
	storeID := strings.TrimSpace(cmd.StoreID)
	caller := strings.TrimSpace(cmd.Caller)
	logger.Info("vote cast processing started",
		"event", "governance_vote_started",
		"module", "governance/quorum-engine",
		"layer", "application",
		"proposal_id", proposalID,
		"store_id", storeID,
		"caller", caller,
	)
	if proposalID == "" || storeID == "" || caller == "" {
		return VoteResult{}, domainerrors.ErrInvalidProposalInput
	}
	if strings.TrimSpace(cmd.IdempotencyKey) == "" {
		return VoteResult{}, domainerrors.ErrIdempotencyKeyRequired
	}

	now := uc.now()
	requestHash := hashCommand(map[string]string{
		"op":          "vote",
		"proposal_id": proposalID,
		"store_id":    storeID,
		"caller":      caller,
	})
	if record, found, err := uc.Idempotency.Get(ctx, cmd.IdempotencyKey, now); err != nil {
		return VoteResult{}, err
	} else if found {
		if record.RequestHash != requestHash {
			return VoteResult{}, domainerrors.ErrIdempotencyConflict
		}
		proposal, err := uc.Proposals.GetProposal(ctx, record.EntityID)
		if err != nil {
			return VoteResult{}, err
		}
		return VoteResult{Proposal: proposal, Replayed: true}, nil
	}

	release := uc.Locks.AcquireStore(storeID)
	defer release()

	store, err := uc.Stores.GetStore(ctx, storeID)
	if err != nil {
		return VoteResult{}, err
	}
	proposal, err := uc.Proposals.GetProposal(ctx, proposalID)
	if err != nil {
		return VoteResult{}, err
	}
	if proposal.StoreID != storeID {
		return VoteResult{}, domainerrors.ErrInvalidProposalInput
	}

	if err := proposal.CastVote(&store, caller, now); err != nil {
		logger.Warn("vote cast rejected",
			"event", "governance_vote_rejected",
			"module", "governance/quorum-engine",
			"layer", "application",
			"proposal_id", proposalID,
			"store_id", storeID,
			"caller", caller,
			"error", err.Error(),
		)
		return VoteResult{}, err
	}
	if err := uc.Proposals.SaveProposal(ctx, proposal); err != nil {
		return VoteResult{}, err
	}
	if err := uc.emitVoteEvents(ctx, &store, proposal, caller, now); err != nil {
		return VoteResult{}, err
	}
	if err := uc.Idempotency.Put(ctx, ports.IdempotencyRecord{
		Key:         strings.TrimSpace(cmd.IdempotencyKey),
		RequestHash: requestHash,
		EntityID:    proposal.ProposalID,
		ExpiresAt:   now.Add(uc.resolveIdempotencyTTL()),
	}); err != nil {
		return VoteResult{}, err
	}

	quorate := proposal.QuorumReached(&store)
	logger.Info("vote cast",
		"event", "governance_vote_cast",
		"module", "governance/quorum-engine",
		"layer", "application",
		"proposal_id", proposalID,
		"store_id", storeID,
		"caller", caller,
		"effective_votes", proposal.EffectiveVotes(store.Voters),
		"required_votes", store.RequiredVotes,
		"quorum_reached", quorate,
	)
	return VoteResult{Proposal: proposal, QuorumReached: quorate}, nil
}

// RetractVote removes the caller's recorded vote. Fails ErrNoSuchVote if no
// vote is recorded for the caller.
func (uc ProposalUseCase) RetractVote(ctx context.Context, cmd RetractVoteCommand) (VoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	proposalID := strings.TrimSpace(cmd.ProposalID)
	storeID := strings.TrimSpace(cmd.StoreID)
	caller := strings.TrimSpace(cmd.Caller)
	logger.Info("vote retract processing started",
		"event", "governance_vote_retract_started",
		"module", "governance/quorum-engine",
		"layer", "application",
		"proposal_id", proposalID,
		"store_id", storeID,
		"caller", caller,
	)
	if proposalID == "" || storeID == "" || caller == "" {
		return VoteResult{}, domainerrors.ErrInvalidProposalInput
	}
	if strings.TrimSpace(cmd.IdempotencyKey) == "" {
		return VoteResult{}, domainerrors.ErrIdempotencyKeyRequired
	}

	now := uc.now()
	requestHash := hashCommand(map[string]string{
		"op":          "retract_vote",
		"proposal_id": proposalID,
		"store_id":    storeID,
		"caller":      caller,
	})
	if record, found, err := uc.Idempotency.Get(ctx, cmd.IdempotencyKey, now); err != nil {
		return VoteResult{}, err
	} else if found {
		if record.RequestHash != requestHash {
			return VoteResult{}, domainerrors.ErrIdempotencyConflict
		}
		proposal, err := uc.Proposals.GetProposal(ctx, record.EntityID)
		if err != nil {
			return VoteResult{}, err
		}
		return VoteResult{Proposal: proposal, Replayed: true}, nil
	}

	release := uc.Locks.AcquireStore(storeID)
	defer release()

	store, err := uc.Stores.GetStore(ctx, storeID)
	if err != nil {
		return VoteResult{}, err
	}
	proposal, err := uc.Proposals.GetProposal(ctx, proposalID)
	if err != nil {
		return VoteResult{}, err
	}
	if proposal.StoreID != storeID {
		return VoteResult{}, domainerrors.ErrInvalidProposalInput
	}

	if err := proposal.RetractVote(caller, now); err != nil {
		return VoteResult{}, err
	}
	if err := uc.Proposals.SaveProposal(ctx, proposal); err != nil {
		return VoteResult{}, err
	}
	if err := uc.emitProposalEvent(ctx, "vote.removed", proposal, now, map[string]any{
		"caller":          caller,
		"effective_votes": proposal.EffectiveVotes(store.Voters),
		"required_votes":  store.RequiredVotes,
	}); err != nil {
		return VoteResult{}, err
	}
	if err := uc.Idempotency.Put(ctx, ports.IdempotencyRecord{
		Key:         strings.TrimSpace(cmd.IdempotencyKey),
		RequestHash: requestHash,
		EntityID:    proposal.ProposalID,
		ExpiresAt:   now.Add(uc.resolveIdempotencyTTL()),
	}); err != nil {
		return VoteResult{}, err
	}

	logger.Info("vote retracted",
		"event", "governance_vote_retracted",
		"module", "governance/quorum-engine",
		"layer", "application",
		"proposal_id", proposalID,
		"store_id", storeID,
		"caller", caller,
	)
	return VoteResult{Proposal: proposal}, nil
}

// DeleteProposal consumes a proposal without executing it. Only the creator
// may delete; vote count is irrelevant. Works even when the governing store
// has already been relinquished, so orphaned proposals can be cleaned up.
func (uc ProposalUseCase) DeleteProposal(ctx context.Context, cmd DeleteProposalCommand) error {
	logger := application.ResolveLogger(uc.Logger)
	proposalID := strings.TrimSpace(cmd.ProposalID)
	caller := strings.TrimSpace(cmd.Caller)
	logger.Info("proposal delete processing started",
		"event", "governance_proposal_delete_started",
		"module", "governance/quorum-engine",
		"layer", "application",
		"proposal_id", proposalID,
		"caller", caller,
	)
	if proposalID == "" || caller == "" {
		return domainerrors.ErrInvalidProposalInput
	}

	probe, err := uc.Proposals.GetProposal(ctx, proposalID)
	if err != nil {
		return err
	}

	release := uc.Locks.AcquireStore(probe.StoreID)
	defer release()

	proposal, err := uc.Proposals.GetProposal(ctx, proposalID)
	if err != nil {
		return err
	}
	if proposal.Creator != caller {
		logger.Warn("proposal delete rejected",
			"event", "governance_proposal_delete_rejected",
			"module", "governance/quorum-engine",
			"layer", "application",
			"proposal_id", proposalID,
			"caller", caller,
		)
		return domainerrors.ErrUnauthorized
	}

	now := uc.now()
	if err := uc.Proposals.DeleteProposal(ctx, proposalID); err != nil {
		return err
	}
	if store, err := uc.Stores.GetStore(ctx, proposal.StoreID); err == nil {
		store.UntrackProposal(proposalID)
		if err := uc.Stores.SaveStore(ctx, store); err != nil {
			return err
		}
	}
	if err := uc.emitProposalEvent(ctx, "proposal.deleted", proposal, now, map[string]any{
		"creator": proposal.Creator,
	}); err != nil {
		return err
	}

	logger.Info("proposal deleted by creator",
		"event", "governance_proposal_deleted",
		"module", "governance/quorum-engine",
		"layer", "application",
		"proposal_id", proposalID,
		"store_id", proposal.StoreID,
	)
	return nil
}

// Execute recomputes the effective vote count against the current voter set
// and, if quorum holds, applies the bound action handler and consumes the
// proposal. Fails ErrQuorumNotReached otherwise, leaving everything
// unchanged. Proposals whose store was relinquished fail ErrStoreNotFound.
func (uc ProposalUseCase) Execute(ctx context.Context, cmd ExecuteCommand) (ExecuteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	proposalID := strings.TrimSpace(cmd.ProposalID)
	storeID := strings.TrimSpace(cmd.StoreID)
	logger.Info("proposal execute processing started",
		"event", "governance_execute_started",
		"module", "governance/quorum-engine",
		"layer", "application",
		"proposal_id", proposalID,
		"store_id", storeID,
	)
	if proposalID == "" || storeID == "" {
		return ExecuteResult{}, domainerrors.ErrInvalidProposalInput
	}

	release := uc.Locks.AcquireStore(storeID)
	defer release()

	store, err := uc.Stores.GetStore(ctx, storeID)
	if err != nil {
		return ExecuteResult{}, err
	}
	proposal, err := uc.Proposals.GetProposal(ctx, proposalID)
	if err != nil {
		return ExecuteResult{}, err
	}
	if proposal.StoreID != storeID {
		return ExecuteResult{}, domainerrors.ErrInvalidProposalInput
	}

	now := uc.now()
	result, err := entities.ExecuteProposal(&store, &proposal, now)
	if err != nil {
		logger.Warn("proposal execute rejected",
			"event", "governance_execute_rejected",
			"module", "governance/quorum-engine",
			"layer", "application",
			"proposal_id", proposalID,
			"store_id", storeID,
			"effective_votes", proposal.EffectiveVotes(store.Voters),
			"required_votes", store.RequiredVotes,
			"error", err.Error(),
		)
		return ExecuteResult{}, err
	}

	var authorization *entities.ExternalAuthorization
	if result.Kind == entities.ActionExternal {
		authorizationID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return ExecuteResult{}, err
		}
		minted := entities.ExternalAuthorization{
			AuthorizationID: authorizationID,
			StoreID:         storeID,
			ProposalID:      proposalID,
			Name:            result.Name,
			Digest:          result.Digest,
			VotesCounted:    result.VotesCounted,
			IssuedAt:        now.UTC(),
		}
		if err := uc.Authorizations.SaveAuthorization(ctx, minted); err != nil {
			return ExecuteResult{}, err
		}
		authorization = &minted
	}

	if err := uc.Proposals.DeleteProposal(ctx, proposalID); err != nil {
		return ExecuteResult{}, err
	}
	if result.Relinquished {
		// Terminal: the store record is destroyed; remaining open proposals
		// become orphans that fail ErrStoreNotFound from here on.
		if err := uc.Stores.DeleteStore(ctx, storeID); err != nil {
			return ExecuteResult{}, err
		}
	} else {
		if err := uc.Stores.SaveStore(ctx, store); err != nil {
			return ExecuteResult{}, err
		}
	}

	if err := uc.emitExecutionEvents(ctx, proposal, result, authorization, now); err != nil {
		return ExecuteResult{}, err
	}

	logger.Info("proposal executed",
		"event", "governance_proposal_executed",
		"module", "governance/quorum-engine",
		"layer", "application",
		"proposal_id", proposalID,
		"store_id", storeID,
		"action_kind", string(result.Kind),
		"votes_counted", result.VotesCounted,
	)
	return ExecuteResult{Result: result, Authorization: authorization}, nil
}

func (uc ProposalUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

func (uc ProposalUseCase) resolveIdempotencyTTL() time.Duration {
	if uc.IdempotencyTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return uc.IdempotencyTTL
}

// emitVoteEvents emits vote.cast and, when the threshold is momentarily met,
// an informational quorum.reached. Reaching quorum never triggers execution.
func (uc ProposalUseCase) emitVoteEvents(
	ctx context.Context,
	store *entities.GovernanceStore,
	proposal entities.Proposal,
	caller string,
	occurredAt time.Time,
) error {
	effective := proposal.EffectiveVotes(store.Voters)
	if err := uc.emitProposalEvent(ctx, "vote.cast", proposal, occurredAt, map[string]any{
		"caller":          caller,
		"effective_votes": effective,
		"required_votes":  store.RequiredVotes,
	}); err != nil {
		return err
	}
	if effective >= store.RequiredVotes {
		return uc.emitProposalEvent(ctx, "quorum.reached", proposal, occurredAt, map[string]any{
			"effective_votes": effective,
			"required_votes":  store.RequiredVotes,
		})
	}
	return nil
}

func (uc ProposalUseCase) emitExecutionEvents(
	ctx context.Context,
	proposal entities.Proposal,
	result entities.ActionResult,
	authorization *entities.ExternalAuthorization,
	occurredAt time.Time,
) error {
	if eventType, data := executionEvent(result); eventType != "" {
		if err := uc.emitProposalEvent(ctx, eventType, proposal, occurredAt, data); err != nil {
			return err
		}
	}
	data := map[string]any{
		"action_kind":   string(result.Kind),
		"votes_counted": result.VotesCounted,
	}
	if authorization != nil {
		data["authorization_id"] = authorization.AuthorizationID
	}
	return uc.emitProposalEvent(ctx, "proposal.executed", proposal, occurredAt, data)
}

func executionEvent(result entities.ActionResult) (string, map[string]any) {
	switch result.Kind {
	case entities.ActionAddVoter:
		return "voter.added", map[string]any{
			"voter":          result.Voter,
			"required_votes": result.RequiredVotes,
		}
	case entities.ActionRemoveVoter:
		return "voter.removed", map[string]any{
			"voter":          result.Voter,
			"required_votes": result.RequiredVotes,
		}
	case entities.ActionReplaceVoter:
		return "voter.replaced", map[string]any{
			"old_voter": result.OldVoter,
			"new_voter": result.NewVoter,
			"reason":    "governance",
		}
	case entities.ActionUpdateThreshold:
		return "threshold.updated", map[string]any{
			"required_votes": result.RequiredVotes,
		}
	case entities.ActionRelinquishQuorum:
		return "quorum.relinquished", map[string]any{
			"new_owner":   result.NewOwner,
			"resource_id": result.Resource.ResourceID,
		}
	default:
		return "", nil
	}
}

func (uc ProposalUseCase) emitProposalEvent(
	ctx context.Context,
	eventType string,
	proposal entities.Proposal,
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
		"proposal_id": proposal.ProposalID,
		"store_id":    proposal.StoreID,
		"occurred_at": occurredAt.UTC().Format(time.RFC3339),
	}
	for key, value := range data {
		payload[key] = value
	}
	envelope, err := newGovernanceEnvelope(eventID, eventType, proposal.StoreID, occurredAt, payload)
	if err != nil {
		return err
	}
	return uc.Outbox.AppendOutbox(ctx, envelope)
}

func marshalAction(action entities.Action) string {
	raw, _ := json.Marshal(action)
	return string(raw)
}
