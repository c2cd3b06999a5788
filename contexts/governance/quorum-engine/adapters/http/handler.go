package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"custos/contexts/governance/quorum-engine/application/commands"
	"custos/contexts/governance/quorum-engine/application/queries"
	"custos/contexts/governance/quorum-engine/domain/entities"
	httptransport "custos/contexts/governance/quorum-engine/transport/http"
)

type Handler struct {
	Stores    commands.StoreUseCase
	Proposals commands.ProposalUseCase
	Queries   queries.GovernanceUseCase
	Logger    *slog.Logger
}

func (h Handler) CreateStoreHandler(ctx context.Context, req httptransport.CreateStoreRequest) (httptransport.StoreResponse, error) {
	result, err := h.Stores.CreateStore(ctx, commands.CreateStoreCommand{
		ResourceKind:      req.ResourceKind,
		ResourceReference: req.ResourceReference,
		RequiredVotes:     req.RequiredVotes,
		Voters:            req.Voters,
	})
	if err != nil {
		return httptransport.StoreResponse{}, err
	}
	return mapStore(result.Store), nil
}

func (h Handler) GetStoreHandler(ctx context.Context, storeID string) (httptransport.StoreResponse, error) {
	view, err := h.Queries.GetStore(ctx, storeID)
	if err != nil {
		return httptransport.StoreResponse{}, err
	}
	return httptransport.StoreResponse{
		StoreID:         view.StoreID,
		ResourceKind:    view.ResourceKind,
		ResourceOwner:   view.ResourceOwner,
		RequiredVotes:   view.RequiredVotes,
		Voters:          view.Voters,
		OpenProposalIDs: view.OpenProposalIDs,
	}, nil
}

func (h Handler) ReplaceSelfHandler(
	ctx context.Context,
	storeID string,
	voterID string,
	req httptransport.ReplaceSelfRequest,
) (httptransport.StoreResponse, error) {
	store, err := h.Stores.ReplaceSelf(ctx, commands.ReplaceSelfCommand{
		StoreID:  storeID,
		Caller:   voterID,
		NewVoter: req.NewVoter,
	})
	if err != nil {
		return httptransport.StoreResponse{}, err
	}
	return mapStore(store), nil
}

func (h Handler) ProposeHandler(
	ctx context.Context,
	storeID string,
	voterID string,
	idempotencyKey string,
	req httptransport.ProposeRequest,
) (httptransport.ProposalResponse, error) {
	result, err := h.Proposals.Propose(ctx, commands.ProposeCommand{
		StoreID:        storeID,
		Creator:        voterID,
		IdempotencyKey: idempotencyKey,
		Action:         mapAction(req.Action),
		Metadata:       req.Metadata,
	})
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	view, err := h.Queries.GetProposal(ctx, result.Proposal.ProposalID)
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	response := mapProposal(view)
	response.Replayed = result.Replayed
	return response, nil
}

func (h Handler) GetProposalHandler(ctx context.Context, proposalID string) (httptransport.ProposalResponse, error) {
	view, err := h.Queries.GetProposal(ctx, proposalID)
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	return mapProposal(view), nil
}

func (h Handler) ListProposalsHandler(ctx context.Context, storeID string) (httptransport.ProposalListResponse, error) {
	views, err := h.Queries.ListProposals(ctx, storeID)
	if err != nil {
		return httptransport.ProposalListResponse{}, err
	}
	items := make([]httptransport.ProposalResponse, 0, len(views))
	for _, view := range views {
		items = append(items, mapProposal(view))
	}
	return httptransport.ProposalListResponse{StoreID: storeID, Items: items}, nil
}

func (h Handler) VoteHandler(
	ctx context.Context,
	proposalID string,
	voterID string,
	idempotencyKey string,
	req httptransport.VoteRequest,
) (httptransport.ProposalResponse, error) {
	result, err := h.Proposals.CastVote(ctx, commands.VoteCommand{
		ProposalID:     proposalID,
		StoreID:        req.StoreID,
		Caller:         voterID,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	view, err := h.Queries.GetProposal(ctx, result.Proposal.ProposalID)
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	response := mapProposal(view)
	response.Replayed = result.Replayed
	return response, nil
}

func (h Handler) RetractVoteHandler(
	ctx context.Context,
	proposalID string,
	voterID string,
	idempotencyKey string,
	req httptransport.VoteRequest,
) (httptransport.ProposalResponse, error) {
	result, err := h.Proposals.RetractVote(ctx, commands.RetractVoteCommand{
		ProposalID:     proposalID,
		StoreID:        req.StoreID,
		Caller:         voterID,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	view, err := h.Queries.GetProposal(ctx, result.Proposal.ProposalID)
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	response := mapProposal(view)
	response.Replayed = result.Replayed
	return response, nil
}

func (h Handler) DeleteProposalHandler(ctx context.Context, proposalID string, voterID string) error {
	return h.Proposals.DeleteProposal(ctx, commands.DeleteProposalCommand{
		ProposalID: proposalID,
		Caller:     voterID,
	})
}

func (h Handler) ExecuteHandler(
	ctx context.Context,
	proposalID string,
	req httptransport.ExecuteRequest,
) (httptransport.ExecuteResponse, error) {
	result, err := h.Proposals.Execute(ctx, commands.ExecuteCommand{
		ProposalID: proposalID,
		StoreID:    req.StoreID,
	})
	if err != nil {
		return httptransport.ExecuteResponse{}, err
	}
	response := httptransport.ExecuteResponse{
		ProposalID:    proposalID,
		StoreID:       req.StoreID,
		ActionKind:    string(result.Result.Kind),
		VotesCounted:  result.Result.VotesCounted,
		RequiredVotes: result.Result.RequiredVotes,
		Relinquished:  result.Result.Relinquished,
		NewOwner:      result.Result.NewOwner,
	}
	if result.Authorization != nil {
		mapped := mapAuthorization(*result.Authorization)
		response.Authorization = &mapped
	}
	return response, nil
}

func (h Handler) GetAuthorizationHandler(ctx context.Context, authorizationID string) (httptransport.AuthorizationResponse, error) {
	authorization, err := h.Queries.GetAuthorization(ctx, authorizationID)
	if err != nil {
		return httptransport.AuthorizationResponse{}, err
	}
	return mapAuthorization(authorization), nil
}

func (h Handler) ListAuditHandler(ctx context.Context, storeID string) (httptransport.AuditListResponse, error) {
	records, err := h.Queries.ListAudit(ctx, storeID)
	if err != nil {
		return httptransport.AuditListResponse{}, err
	}
	items := make([]httptransport.AuditRecordItem, 0, len(records))
	for _, record := range records {
		items = append(items, httptransport.AuditRecordItem{
			AuditID:    record.AuditID,
			EventID:    record.EventID,
			EventType:  record.EventType,
			OccurredAt: record.OccurredAt.UTC().Format(time.RFC3339),
			Payload:    string(record.Payload),
		})
	}
	return httptransport.AuditListResponse{StoreID: storeID, Items: items}, nil
}

func mapAction(req httptransport.ActionRequest) entities.Action {
	return entities.Action{
		Kind:         entities.ActionKind(req.Kind),
		Voter:        req.Voter,
		OldVoter:     req.OldVoter,
		NewVoter:     req.NewVoter,
		NewThreshold: req.NewThreshold,
		NewOwner:     req.NewOwner,
		Name:         req.Name,
		Digest:       req.Digest,
	}
}

func mapStore(store entities.GovernanceStore) httptransport.StoreResponse {
	return httptransport.StoreResponse{
		StoreID:         store.StoreID,
		ResourceKind:    store.Resource.Kind,
		ResourceOwner:   store.Resource.Owner,
		RequiredVotes:   store.RequiredVotes,
		Voters:          store.Voters.List(),
		OpenProposalIDs: append([]string(nil), store.OpenProposalIDs...),
	}
}

func mapProposal(view queries.ProposalView) httptransport.ProposalResponse {
	return httptransport.ProposalResponse{
		ProposalID:     view.Proposal.ProposalID,
		StoreID:        view.Proposal.StoreID,
		Creator:        view.Proposal.Creator,
		ActionKind:     string(view.Proposal.Action.Kind),
		Votes:          append([]string(nil), view.Proposal.Votes...),
		Metadata:       view.Proposal.Metadata,
		EffectiveVotes: view.EffectiveVotes,
		RequiredVotes:  view.RequiredVotes,
		QuorumReached:  view.QuorumReached,
	}
}

func mapAuthorization(authorization entities.ExternalAuthorization) httptransport.AuthorizationResponse {
	return httptransport.AuthorizationResponse{
		AuthorizationID: authorization.AuthorizationID,
		StoreID:         authorization.StoreID,
		ProposalID:      authorization.ProposalID,
		Name:            authorization.Name,
		Digest:          authorization.Digest,
		VotesCounted:    authorization.VotesCounted,
		IssuedAt:        authorization.IssuedAt.UTC().Format(time.RFC3339),
	}
}
