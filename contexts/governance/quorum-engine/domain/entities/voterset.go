package entities

import (
	"strings"

	domainerrors "custos/contexts/governance/quorum-engine/domain/errors"
)

// VoterSet is an ordered set of unique voter identities. Insertion order is
// preserved so listings and emitted events stay deterministic.
type VoterSet struct {
	members []string
}

// NewVoterSet builds a set from raw identities, trimming whitespace and
// dropping empties and duplicates.
func NewVoterSet(voters []string) VoterSet {
	set := VoterSet{members: make([]string, 0, len(voters))}
	for _, voter := range voters {
		voter = strings.TrimSpace(voter)
		if voter == "" || set.Contains(voter) {
			continue
		}
		set.members = append(set.members, voter)
	}
	return set
}

func (s VoterSet) Contains(voter string) bool {
	return s.indexOf(voter) >= 0
}

func (s VoterSet) Len() int {
	return len(s.members)
}

// List returns a copy; callers must not be able to mutate membership.
func (s VoterSet) List() []string {
	return append([]string(nil), s.members...)
}

func (s VoterSet) indexOf(voter string) int {
	voter = strings.TrimSpace(voter)
	for i, member := range s.members {
		if member == voter {
			return i
		}
	}
	return -1
}

func (s *VoterSet) insert(voter string) error {
	voter = strings.TrimSpace(voter)
	if voter == "" {
		return domainerrors.ErrInvalidActionInput
	}
	if s.Contains(voter) {
		return domainerrors.ErrDuplicateVoter
	}
	s.members = append(s.members, voter)
	return nil
}

func (s *VoterSet) remove(voter string) error {
	index := s.indexOf(voter)
	if index < 0 {
		return domainerrors.ErrUnknownVoter
	}
	s.members = append(s.members[:index], s.members[index+1:]...)
	return nil
}

// replace swaps oldVoter for newVoter in place, keeping the member's position
// so the set size and ordering are unaffected.
func (s *VoterSet) replace(oldVoter string, newVoter string) error {
	newVoter = strings.TrimSpace(newVoter)
	if newVoter == "" {
		return domainerrors.ErrInvalidActionInput
	}
	if s.Contains(newVoter) {
		return domainerrors.ErrDuplicateVoter
	}
	index := s.indexOf(oldVoter)
	if index < 0 {
		return domainerrors.ErrUnknownVoter
	}
	s.members[index] = newVoter
	return nil
}
