package entities

import (
	"errors"
	"testing"
	"time"

	domainerrors "custos/contexts/governance/quorum-engine/domain/errors"
)

var testTime = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, requiredVotes int, voters ...string) GovernanceStore {
	t.Helper()
	store, err := NewGovernanceStore("store-1", ProtectedResource{
		ResourceID: "resource-1",
		Kind:       "deploy_key",
		Reference:  "vault://keys/prod",
	}, requiredVotes, voters, testTime)
	if err != nil {
		t.Fatalf("new store failed: %v", err)
	}
	return store
}

func TestNewGovernanceStoreValidatesThresholdBounds(t *testing.T) {
	voters := []string{"alice", "bob", "carol"}

	if _, err := NewGovernanceStore("store-1", ProtectedResource{}, 0, voters, testTime); !errors.Is(err, domainerrors.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration for threshold 0, got %v", err)
	}
	if _, err := NewGovernanceStore("store-1", ProtectedResource{}, 4, voters, testTime); !errors.Is(err, domainerrors.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration for threshold above voter count, got %v", err)
	}
	store, err := NewGovernanceStore("store-1", ProtectedResource{}, 3, voters, testTime)
	if err != nil {
		t.Fatalf("threshold equal to voter count must be accepted: %v", err)
	}
	if store.RequiredVotes != 3 {
		t.Fatalf("expected required votes 3, got %d", store.RequiredVotes)
	}
}

func TestNewGovernanceStoreDeduplicatesVoters(t *testing.T) {
	store := newTestStore(t, 2, "alice", "bob", "alice", " bob ", "")
	if store.Voters.Len() != 2 {
		t.Fatalf("expected 2 unique voters, got %d", store.Voters.Len())
	}
	// Threshold is validated against the deduplicated count.
	if _, err := NewGovernanceStore("store-2", ProtectedResource{}, 3, []string{"alice", "alice", "alice"}, testTime); !errors.Is(err, domainerrors.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration against deduplicated count, got %v", err)
	}
}

func TestNewGovernanceStoreTakesResourceOwnership(t *testing.T) {
	store := newTestStore(t, 1, "alice")
	if store.Resource.Owner != store.StoreID {
		t.Fatalf("expected resource owner %q, got %q", store.StoreID, store.Resource.Owner)
	}
}

func TestReplaceSelfPreservesCountAndPosition(t *testing.T) {
	store := newTestStore(t, 2, "alice", "bob", "carol")

	if err := store.ReplaceSelf("bob", "dave", testTime); err != nil {
		t.Fatalf("replace self failed: %v", err)
	}
	got := store.Voters.List()
	want := []string{"alice", "dave", "carol"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected voters %v, got %v", want, got)
		}
	}
	if store.Voters.Len() != 3 {
		t.Fatalf("expected voter count preserved, got %d", store.Voters.Len())
	}
}

func TestReplaceSelfRejectsOutsidersAndDuplicates(t *testing.T) {
	store := newTestStore(t, 2, "alice", "bob")

	if err := store.ReplaceSelf("mallory", "dave", testTime); !errors.Is(err, domainerrors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-member, got %v", err)
	}
	if err := store.ReplaceSelf("alice", "bob", testTime); !errors.Is(err, domainerrors.ErrDuplicateVoter) {
		t.Fatalf("expected ErrDuplicateVoter for existing member, got %v", err)
	}
}

func TestTrackAndUntrackProposal(t *testing.T) {
	store := newTestStore(t, 1, "alice")
	store.TrackProposal("prop-1")
	store.TrackProposal("prop-1")
	store.TrackProposal("prop-2")
	if len(store.OpenProposalIDs) != 2 {
		t.Fatalf("expected 2 tracked proposals, got %d", len(store.OpenProposalIDs))
	}
	store.UntrackProposal("prop-1")
	if len(store.OpenProposalIDs) != 1 || store.OpenProposalIDs[0] != "prop-2" {
		t.Fatalf("unexpected open proposals after untrack: %v", store.OpenProposalIDs)
	}
}
