package queries

import (
	"context"
	"strings"

	"custos/contexts/governance/quorum-engine/domain/entities"
	domainerrors "custos/contexts/governance/quorum-engine/domain/errors"
	"custos/contexts/governance/quorum-engine/ports"
)

// StoreView is the read model for a governance store: the pure accessors of
// the operation surface (voters, required_votes) plus the open-proposal
// index.
type StoreView struct {
	StoreID         string
	ResourceKind    string
	ResourceOwner   string
	RequiredVotes   int
	Voters          []string
	OpenProposalIDs []string
}

// ProposalView annotates a proposal with its effective vote count under the
// store's current membership.
type ProposalView struct {
	Proposal       entities.Proposal
	EffectiveVotes int
	RequiredVotes  int
	QuorumReached  bool
}

// GovernanceUseCase serves the read side of the engine.
type GovernanceUseCase struct {
	Stores         ports.StoreRepository
	Proposals      ports.ProposalRepository
	Authorizations ports.AuthorizationRepository
	Audit          ports.AuditRepository
}

func (uc GovernanceUseCase) GetStore(ctx context.Context, storeID string) (StoreView, error) {
	store, err := uc.Stores.GetStore(ctx, strings.TrimSpace(storeID))
	if err != nil {
		return StoreView{}, err
	}
	return StoreView{
		StoreID:         store.StoreID,
		ResourceKind:    store.Resource.Kind,
		ResourceOwner:   store.Resource.Owner,
		RequiredVotes:   store.RequiredVotes,
		Voters:          store.Voters.List(),
		OpenProposalIDs: append([]string(nil), store.OpenProposalIDs...),
	}, nil
}

func (uc GovernanceUseCase) GetProposal(ctx context.Context, proposalID string) (ProposalView, error) {
	proposal, err := uc.Proposals.GetProposal(ctx, strings.TrimSpace(proposalID))
	if err != nil {
		return ProposalView{}, err
	}
	store, err := uc.Stores.GetStore(ctx, proposal.StoreID)
	if err != nil {
		// Orphaned proposal: the governing store was relinquished. The
		// proposal remains readable but permanently un-executable.
		return ProposalView{Proposal: proposal}, nil
	}
	return uc.view(proposal, &store), nil
}

func (uc GovernanceUseCase) ListProposals(ctx context.Context, storeID string) ([]ProposalView, error) {
	store, err := uc.Stores.GetStore(ctx, strings.TrimSpace(storeID))
	if err != nil {
		return nil, err
	}
	proposals, err := uc.Proposals.ListProposalsByStore(ctx, store.StoreID)
	if err != nil {
		return nil, err
	}
	views := make([]ProposalView, 0, len(proposals))
	for _, proposal := range proposals {
		views = append(views, uc.view(proposal, &store))
	}
	return views, nil
}

func (uc GovernanceUseCase) GetAuthorization(ctx context.Context, authorizationID string) (entities.ExternalAuthorization, error) {
	authorizationID = strings.TrimSpace(authorizationID)
	if authorizationID == "" {
		return entities.ExternalAuthorization{}, domainerrors.ErrAuthorizationNotFound
	}
	return uc.Authorizations.GetAuthorization(ctx, authorizationID)
}

func (uc GovernanceUseCase) ListAudit(ctx context.Context, storeID string) ([]entities.AuditRecord, error) {
	return uc.Audit.ListAuditByStore(ctx, strings.TrimSpace(storeID))
}

func (uc GovernanceUseCase) view(proposal entities.Proposal, store *entities.GovernanceStore) ProposalView {
	effective := proposal.EffectiveVotes(store.Voters)
	return ProposalView{
		Proposal:       proposal,
		EffectiveVotes: effective,
		RequiredVotes:  store.RequiredVotes,
		QuorumReached:  effective >= store.RequiredVotes,
	}
}
