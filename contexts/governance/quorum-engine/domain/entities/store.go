package entities

import (
	"strings"
	"time"

	domainerrors "custos/contexts/governance/quorum-engine/domain/errors"
)

// ProtectedResource is the opaque capability a GovernanceStore guards. The
// engine never interprets Kind/Reference; it only controls who may release
// the resource and to whom.
type ProtectedResource struct {
	ResourceID string
	Kind       string
	Reference  string
	Owner      string
}

// GovernanceStore owns a protected resource, the voter set allowed to govern
// it, and the vote threshold proposals must clear. It is created once,
// mutated only through executed proposals and self-replacement, and destroyed
// exactly once by a relinquish action.
type GovernanceStore struct {
	StoreID         string
	Resource        ProtectedResource
	RequiredVotes   int
	Voters          VoterSet
	OpenProposalIDs []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewGovernanceStore validates the initial configuration and takes ownership
// of the resource. The threshold is checked against the voter count here and
// only here; later threshold or membership changes are not re-validated.
func NewGovernanceStore(
	storeID string,
	resource ProtectedResource,
	requiredVotes int,
	voters []string,
	now time.Time,
) (GovernanceStore, error) {
	set := NewVoterSet(voters)
	if requiredVotes < 1 || requiredVotes > set.Len() {
		return GovernanceStore{}, domainerrors.ErrInvalidConfiguration
	}
	resource.Owner = strings.TrimSpace(storeID)
	return GovernanceStore{
		StoreID:         strings.TrimSpace(storeID),
		Resource:        resource,
		RequiredVotes:   requiredVotes,
		Voters:          set,
		OpenProposalIDs: []string{},
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}, nil
}

// ReplaceSelf swaps the caller for newVoter without a proposal. It only
// affects the caller's own standing and preserves the voter count, so no
// quorum is required.
func (s *GovernanceStore) ReplaceSelf(caller string, newVoter string, now time.Time) error {
	if !s.Voters.Contains(caller) {
		return domainerrors.ErrUnauthorized
	}
	if err := s.Voters.replace(caller, newVoter); err != nil {
		return err
	}
	s.UpdatedAt = now.UTC()
	return nil
}

// TrackProposal records an open proposal id on the store index.
func (s *GovernanceStore) TrackProposal(proposalID string) {
	proposalID = strings.TrimSpace(proposalID)
	for _, id := range s.OpenProposalIDs {
		if id == proposalID {
			return
		}
	}
	s.OpenProposalIDs = append(s.OpenProposalIDs, proposalID)
}

// UntrackProposal drops a consumed proposal id from the store index.
func (s *GovernanceStore) UntrackProposal(proposalID string) {
	proposalID = strings.TrimSpace(proposalID)
	for i, id := range s.OpenProposalIDs {
		if id == proposalID {
			s.OpenProposalIDs = append(s.OpenProposalIDs[:i], s.OpenProposalIDs[i+1:]...)
			return
		}
	}
}

// The mutators below are deliberately unexported: membership, threshold and
// resource release can only be reached through ExecuteProposal's dispatch.

func (s *GovernanceStore) addVoter(voter string, now time.Time) error {
	if err := s.Voters.insert(voter); err != nil {
		return err
	}
	s.UpdatedAt = now.UTC()
	return nil
}

func (s *GovernanceStore) removeVoter(voter string, now time.Time) error {
	if err := s.Voters.remove(voter); err != nil {
		return err
	}
	s.UpdatedAt = now.UTC()
	return nil
}

func (s *GovernanceStore) replaceVoter(oldVoter string, newVoter string, now time.Time) error {
	if err := s.Voters.replace(oldVoter, newVoter); err != nil {
		return err
	}
	s.UpdatedAt = now.UTC()
	return nil
}

// setRequiredVotes applies a new threshold without re-checking it against the
// voter count. A threshold above the member count leaves the store permanently
// un-governable; that is accepted behavior, not guarded here.
func (s *GovernanceStore) setRequiredVotes(requiredVotes int, now time.Time) error {
	if requiredVotes < 1 {
		return domainerrors.ErrInvalidActionInput
	}
	s.RequiredVotes = requiredVotes
	s.UpdatedAt = now.UTC()
	return nil
}

// relinquish hands the protected resource to newOwner. The caller is
// responsible for deleting the store record afterwards; still-open proposals
// referencing the store are not invalidated and will fail against the missing
// store.
func (s *GovernanceStore) relinquish(newOwner string, now time.Time) (ProtectedResource, error) {
	newOwner = strings.TrimSpace(newOwner)
	if newOwner == "" {
		return ProtectedResource{}, domainerrors.ErrInvalidActionInput
	}
	released := s.Resource
	released.Owner = newOwner
	s.Resource = released
	s.UpdatedAt = now.UTC()
	return released, nil
}
