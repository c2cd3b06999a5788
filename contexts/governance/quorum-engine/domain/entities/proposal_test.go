package entities

import (
	"errors"
	"testing"

	domainerrors "custos/contexts/governance/quorum-engine/domain/errors"
)

func intPtr(v int) *int { return &v }

func newTestProposal(t *testing.T, store *GovernanceStore, creator string, action Action) Proposal {
	t.Helper()
	proposal, err := NewProposal("prop-1", store, creator, action, nil, testTime)
	if err != nil {
		t.Fatalf("new proposal failed: %v", err)
	}
	return proposal
}

func TestNewProposalRecordsCreatorVote(t *testing.T) {
	store := newTestStore(t, 2, "alice", "bob")
	proposal := newTestProposal(t, &store, "alice", Action{Kind: ActionAddVoter, Voter: "dave"})

	if !proposal.HasVote("alice") {
		t.Fatalf("expected creator vote to be recorded")
	}
	if got := proposal.EffectiveVotes(store.Voters); got != 1 {
		t.Fatalf("expected 1 effective vote, got %d", got)
	}
	if len(store.OpenProposalIDs) != 1 {
		t.Fatalf("expected proposal tracked on store")
	}
}

func TestNewProposalRejectsNonVoterAndBadAction(t *testing.T) {
	store := newTestStore(t, 1, "alice")

	if _, err := NewProposal("prop-1", &store, "mallory", Action{Kind: ActionAddVoter, Voter: "x"}, nil, testTime); !errors.Is(err, domainerrors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := NewProposal("prop-1", &store, "alice", Action{Kind: ActionAddVoter}, nil, testTime); !errors.Is(err, domainerrors.ErrInvalidActionInput) {
		t.Fatalf("expected ErrInvalidActionInput for empty voter, got %v", err)
	}
	if _, err := NewProposal("prop-1", &store, "alice", Action{Kind: "unknown"}, nil, testTime); !errors.Is(err, domainerrors.ErrInvalidActionInput) {
		t.Fatalf("expected ErrInvalidActionInput for unknown kind, got %v", err)
	}
}

func TestCastVoteRules(t *testing.T) {
	store := newTestStore(t, 2, "alice", "bob")
	proposal := newTestProposal(t, &store, "alice", Action{Kind: ActionExternal, Name: "rotate"})

	if err := proposal.CastVote(&store, "mallory", testTime); !errors.Is(err, domainerrors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-member, got %v", err)
	}
	if err := proposal.CastVote(&store, "alice", testTime); !errors.Is(err, domainerrors.ErrDuplicateVote) {
		t.Fatalf("expected ErrDuplicateVote for creator revote, got %v", err)
	}
	if err := proposal.CastVote(&store, "bob", testTime); err != nil {
		t.Fatalf("cast vote failed: %v", err)
	}
	if err := proposal.RetractVote("bob", testTime); err != nil {
		t.Fatalf("retract vote failed: %v", err)
	}
	if err := proposal.RetractVote("bob", testTime); !errors.Is(err, domainerrors.ErrNoSuchVote) {
		t.Fatalf("expected ErrNoSuchVote after retraction, got %v", err)
	}
	if err := proposal.CastVote(&store, "bob", testTime); err != nil {
		t.Fatalf("revote after retraction must succeed: %v", err)
	}
}

func TestVoterAddedAfterProposalCreationMayVote(t *testing.T) {
	store := newTestStore(t, 2, "alice", "bob")
	addDave := newTestProposal(t, &store, "alice", Action{Kind: ActionAddVoter, Voter: "dave"})
	if err := addDave.CastVote(&store, "bob", testTime); err != nil {
		t.Fatalf("cast vote failed: %v", err)
	}
	if _, err := ExecuteProposal(&store, &addDave, testTime); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	followUp, err := NewProposal("prop-2", &store, "alice", Action{Kind: ActionExternal, Name: "rotate"}, nil, testTime)
	if err != nil {
		t.Fatalf("new proposal failed: %v", err)
	}
	if err := followUp.CastVote(&store, "dave", testTime); err != nil {
		t.Fatalf("newly added voter must be able to vote: %v", err)
	}
}

func TestEffectiveVotesDropWhenVoterRemoved(t *testing.T) {
	store := newTestStore(t, 2, "alice", "bob", "carol")

	external, err := NewProposal("prop-ext", &store, "alice", Action{Kind: ActionExternal, Name: "rotate"}, nil, testTime)
	if err != nil {
		t.Fatalf("new proposal failed: %v", err)
	}
	if err := external.CastVote(&store, "bob", testTime); err != nil {
		t.Fatalf("cast vote failed: %v", err)
	}
	if !external.QuorumReached(&store) {
		t.Fatalf("expected quorum with 2 of 2 required")
	}

	removeBob, err := NewProposal("prop-remove", &store, "carol", Action{Kind: ActionRemoveVoter, Voter: "bob"}, nil, testTime)
	if err != nil {
		t.Fatalf("new proposal failed: %v", err)
	}
	if err := removeBob.CastVote(&store, "alice", testTime); err != nil {
		t.Fatalf("cast vote failed: %v", err)
	}
	if _, err := ExecuteProposal(&store, &removeBob, testTime); err != nil {
		t.Fatalf("execute remove failed: %v", err)
	}

	// Bob's recorded vote silently stops counting; the external proposal is
	// de-quorated without any bookkeeping on it.
	if got := external.EffectiveVotes(store.Voters); got != 1 {
		t.Fatalf("expected 1 effective vote after removal, got %d", got)
	}
	if _, err := ExecuteProposal(&store, &external, testTime); !errors.Is(err, domainerrors.ErrQuorumNotReached) {
		t.Fatalf("expected ErrQuorumNotReached, got %v", err)
	}
}

func TestExecuteProposalAppliesAddWithThresholdChange(t *testing.T) {
	store := newTestStore(t, 1, "alice", "bob")
	proposal := newTestProposal(t, &store, "alice", Action{
		Kind:         ActionAddVoter,
		Voter:        "carol",
		NewThreshold: intPtr(2),
	})

	result, err := ExecuteProposal(&store, &proposal, testTime)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Kind != ActionAddVoter || result.Voter != "carol" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.VotesCounted != 1 {
		t.Fatalf("expected 1 vote counted, got %d", result.VotesCounted)
	}
	if !store.Voters.Contains("carol") || store.RequiredVotes != 2 {
		t.Fatalf("membership and threshold change must apply together")
	}
	if len(store.OpenProposalIDs) != 0 {
		t.Fatalf("executed proposal must be untracked")
	}
}

func TestExecuteProposalRejectsDuplicateAdd(t *testing.T) {
	store := newTestStore(t, 1, "alice", "bob")
	proposal := newTestProposal(t, &store, "alice", Action{Kind: ActionAddVoter, Voter: "bob"})

	if _, err := ExecuteProposal(&store, &proposal, testTime); !errors.Is(err, domainerrors.ErrDuplicateVoter) {
		t.Fatalf("expected ErrDuplicateVoter, got %v", err)
	}
	// A failed execution leaves the proposal open and the store unchanged.
	if len(store.OpenProposalIDs) != 1 {
		t.Fatalf("failed execution must not consume the proposal")
	}
	if store.Voters.Len() != 2 {
		t.Fatalf("failed execution must not mutate the voter set")
	}
}

func TestExecuteProposalReplaceVoter(t *testing.T) {
	store := newTestStore(t, 1, "alice", "bob", "carol")
	proposal := newTestProposal(t, &store, "alice", Action{
		Kind:     ActionReplaceVoter,
		OldVoter: "bob",
		NewVoter: "dave",
	})

	result, err := ExecuteProposal(&store, &proposal, testTime)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.OldVoter != "bob" || result.NewVoter != "dave" {
		t.Fatalf("unexpected replace result: %+v", result)
	}
	got := store.Voters.List()
	if got[1] != "dave" || store.Voters.Len() != 3 {
		t.Fatalf("replace must preserve position and count, got %v", got)
	}
}

func TestUpdateThresholdAboveVoterCountFreezesStore(t *testing.T) {
	store := newTestStore(t, 1, "alice", "bob")
	raise := newTestProposal(t, &store, "alice", Action{
		Kind:         ActionUpdateThreshold,
		NewThreshold: intPtr(5),
	})

	// The new threshold is applied without re-validation against the member
	// count.
	if _, err := ExecuteProposal(&store, &raise, testTime); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if store.RequiredVotes != 5 {
		t.Fatalf("expected threshold 5, got %d", store.RequiredVotes)
	}

	// With 5 required and only 2 members, no proposal can ever pass again;
	// the store still answers reads and accepts votes.
	stuck, err := NewProposal("prop-2", &store, "alice", Action{
		Kind:         ActionUpdateThreshold,
		NewThreshold: intPtr(1),
	}, nil, testTime)
	if err != nil {
		t.Fatalf("new proposal failed: %v", err)
	}
	if err := stuck.CastVote(&store, "bob", testTime); err != nil {
		t.Fatalf("cast vote failed: %v", err)
	}
	if _, err := ExecuteProposal(&store, &stuck, testTime); !errors.Is(err, domainerrors.ErrQuorumNotReached) {
		t.Fatalf("expected frozen store, got %v", err)
	}
}

func TestExecuteProposalRelinquishReleasesResource(t *testing.T) {
	store := newTestStore(t, 1, "alice", "bob")
	proposal := newTestProposal(t, &store, "alice", Action{
		Kind:     ActionRelinquishQuorum,
		NewOwner: "treasury-7",
	})

	result, err := ExecuteProposal(&store, &proposal, testTime)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !result.Relinquished {
		t.Fatalf("expected terminal relinquish result")
	}
	if result.Resource.Owner != "treasury-7" {
		t.Fatalf("expected resource handed to treasury-7, got %q", result.Resource.Owner)
	}
	if result.Resource.ResourceID != "resource-1" {
		t.Fatalf("expected guarded resource released, got %q", result.Resource.ResourceID)
	}
}

func TestExecuteProposalExternalReportsDescriptor(t *testing.T) {
	store := newTestStore(t, 2, "alice", "bob")
	proposal := newTestProposal(t, &store, "alice", Action{
		Kind:   ActionExternal,
		Name:   "rotate_signing_key",
		Digest: "sha256:abcd",
	})
	if err := proposal.CastVote(&store, "bob", testTime); err != nil {
		t.Fatalf("cast vote failed: %v", err)
	}

	result, err := ExecuteProposal(&store, &proposal, testTime)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Kind != ActionExternal || result.Name != "rotate_signing_key" || result.Digest != "sha256:abcd" {
		t.Fatalf("unexpected external result: %+v", result)
	}
	if result.VotesCounted != 2 {
		t.Fatalf("expected 2 votes counted, got %d", result.VotesCounted)
	}
	// External actions never touch membership or threshold.
	if store.Voters.Len() != 2 || store.RequiredVotes != 2 {
		t.Fatalf("external action must leave store configuration unchanged")
	}
}
