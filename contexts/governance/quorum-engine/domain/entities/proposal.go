package entities

import (
	"strings"
	"time"

	domainerrors "custos/contexts/governance/quorum-engine/domain/errors"
)

// Proposal binds one governance action to a creator, an ordered vote list and
// free-form metadata. A proposal is consumed exactly once: either by a
// successful execution or by creator-initiated deletion.
type Proposal struct {
	ProposalID string
	StoreID    string
	Creator    string
	Votes      []string
	Metadata   map[string]string
	Action     Action
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewProposal creates a proposal against the given store and records the
// creator's own vote immediately.
func NewProposal(
	proposalID string,
	store *GovernanceStore,
	creator string,
	action Action,
	metadata map[string]string,
	now time.Time,
) (Proposal, error) {
	creator = strings.TrimSpace(creator)
	if !store.Voters.Contains(creator) {
		return Proposal{}, domainerrors.ErrUnauthorized
	}
	if err := action.validate(); err != nil {
		return Proposal{}, err
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	proposal := Proposal{
		ProposalID: strings.TrimSpace(proposalID),
		StoreID:    store.StoreID,
		Creator:    creator,
		Votes:      []string{creator},
		Metadata:   metadata,
		Action:     action,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
	store.TrackProposal(proposal.ProposalID)
	return proposal, nil
}

// CastVote appends the caller's approval. The caller must be a current voter
// of the governing store; voters added after the proposal was created are
// eligible.
func (p *Proposal) CastVote(store *GovernanceStore, caller string, now time.Time) error {
	caller = strings.TrimSpace(caller)
	if !store.Voters.Contains(caller) {
		return domainerrors.ErrUnauthorized
	}
	if p.HasVote(caller) {
		return domainerrors.ErrDuplicateVote
	}
	p.Votes = append(p.Votes, caller)
	p.UpdatedAt = now.UTC()
	return nil
}

// RetractVote removes the caller's recorded vote. No membership check: a
// voter removed from the store may still withdraw a vote that no longer
// counts.
func (p *Proposal) RetractVote(caller string, now time.Time) error {
	caller = strings.TrimSpace(caller)
	for i, vote := range p.Votes {
		if vote == caller {
			p.Votes = append(p.Votes[:i], p.Votes[i+1:]...)
			p.UpdatedAt = now.UTC()
			return nil
		}
	}
	return domainerrors.ErrNoSuchVote
}

func (p Proposal) HasVote(caller string) bool {
	caller = strings.TrimSpace(caller)
	for _, vote := range p.Votes {
		if vote == caller {
			return true
		}
	}
	return false
}

// EffectiveVotes counts the intersection of recorded votes with the current
// voter set. Votes from since-removed voters silently stop counting; there is
// no invalidation bookkeeping.
func (p Proposal) EffectiveVotes(voters VoterSet) int {
	count := 0
	for _, vote := range p.Votes {
		if voters.Contains(vote) {
			count++
		}
	}
	return count
}

// QuorumReached reports whether the proposal clears the store's threshold
// under the store's current membership.
func (p Proposal) QuorumReached(store *GovernanceStore) bool {
	return p.EffectiveVotes(store.Voters) >= store.RequiredVotes
}
