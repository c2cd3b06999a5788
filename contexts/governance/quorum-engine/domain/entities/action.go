package entities

import (
	"strings"
	"time"

	domainerrors "custos/contexts/governance/quorum-engine/domain/errors"
)

type ActionKind string

const (
	ActionAddVoter         ActionKind = "add_voter"
	ActionRemoveVoter      ActionKind = "remove_voter"
	ActionReplaceVoter     ActionKind = "replace_voter"
	ActionUpdateThreshold  ActionKind = "update_threshold"
	ActionRelinquishQuorum ActionKind = "relinquish_quorum"
	ActionExternal         ActionKind = "external"
)

// Action is the closed set of proposal payloads. Exactly one kind is set per
// proposal; the per-kind fields below are ignored for other kinds.
type Action struct {
	Kind ActionKind `json:"kind"`

	// add_voter / remove_voter target. Both kinds may carry an optional
	// threshold change applied together with the membership change.
	Voter        string `json:"voter,omitempty"`
	NewThreshold *int   `json:"new_threshold,omitempty"`

	// replace_voter pair.
	OldVoter string `json:"old_voter,omitempty"`
	NewVoter string `json:"new_voter,omitempty"`

	// relinquish_quorum recipient of the protected resource.
	NewOwner string `json:"new_owner,omitempty"`

	// external action descriptor; Digest identifies the payload the external
	// collaborator will execute against the issued authorization.
	Name   string `json:"name,omitempty"`
	Digest string `json:"digest,omitempty"`
}

// ActionResult reports what an executed action did. For external actions the
// caller mints and persists the authorization from Name/Digest.
type ActionResult struct {
	Kind          ActionKind
	VotesCounted  int
	RequiredVotes int
	Voter         string
	OldVoter      string
	NewVoter      string
	NewOwner      string
	Relinquished  bool
	Resource      ProtectedResource
	Name          string
	Digest        string
}

// validate checks payload shape only. Preconditions that depend on store
// state (membership, duplicates) are checked at execution time.
func (a Action) validate() error {
	switch a.Kind {
	case ActionAddVoter, ActionRemoveVoter:
		if strings.TrimSpace(a.Voter) == "" {
			return domainerrors.ErrInvalidActionInput
		}
		if a.NewThreshold != nil && *a.NewThreshold < 1 {
			return domainerrors.ErrInvalidActionInput
		}
	case ActionReplaceVoter:
		if strings.TrimSpace(a.OldVoter) == "" || strings.TrimSpace(a.NewVoter) == "" {
			return domainerrors.ErrInvalidActionInput
		}
	case ActionUpdateThreshold:
		if a.NewThreshold == nil || *a.NewThreshold < 1 {
			return domainerrors.ErrInvalidActionInput
		}
	case ActionRelinquishQuorum:
		if strings.TrimSpace(a.NewOwner) == "" {
			return domainerrors.ErrInvalidActionInput
		}
	case ActionExternal:
		if strings.TrimSpace(a.Name) == "" {
			return domainerrors.ErrInvalidActionInput
		}
	default:
		return domainerrors.ErrInvalidActionInput
	}
	return nil
}

// ExecuteProposal is the single audited path through which governance actions
// mutate a store. The effective vote count is recomputed here against the
// store's current voter set; counts at proposal-creation or vote-casting time
// carry no weight. On any error the store is left unchanged.
func ExecuteProposal(store *GovernanceStore, proposal *Proposal, now time.Time) (ActionResult, error) {
	effective := proposal.EffectiveVotes(store.Voters)
	if effective < store.RequiredVotes {
		return ActionResult{}, domainerrors.ErrQuorumNotReached
	}
	result, err := applyAction(store, proposal.Action, now)
	if err != nil {
		return ActionResult{}, err
	}
	result.VotesCounted = effective
	store.UntrackProposal(proposal.ProposalID)
	return result, nil
}

func applyAction(store *GovernanceStore, action Action, now time.Time) (ActionResult, error) {
	switch action.Kind {
	case ActionAddVoter:
		if err := store.addVoter(action.Voter, now); err != nil {
			return ActionResult{}, err
		}
		if action.NewThreshold != nil {
			if err := store.setRequiredVotes(*action.NewThreshold, now); err != nil {
				return ActionResult{}, err
			}
		}
		return ActionResult{
			Kind:          ActionAddVoter,
			Voter:         strings.TrimSpace(action.Voter),
			RequiredVotes: store.RequiredVotes,
		}, nil
	case ActionRemoveVoter:
		if err := store.removeVoter(action.Voter, now); err != nil {
			return ActionResult{}, err
		}
		if action.NewThreshold != nil {
			if err := store.setRequiredVotes(*action.NewThreshold, now); err != nil {
				return ActionResult{}, err
			}
		}
		return ActionResult{
			Kind:          ActionRemoveVoter,
			Voter:         strings.TrimSpace(action.Voter),
			RequiredVotes: store.RequiredVotes,
		}, nil
	case ActionReplaceVoter:
		if err := store.replaceVoter(action.OldVoter, action.NewVoter, now); err != nil {
			return ActionResult{}, err
		}
		return ActionResult{
			Kind:          ActionReplaceVoter,
			OldVoter:      strings.TrimSpace(action.OldVoter),
			NewVoter:      strings.TrimSpace(action.NewVoter),
			RequiredVotes: store.RequiredVotes,
		}, nil
	case ActionUpdateThreshold:
		if err := store.setRequiredVotes(*action.NewThreshold, now); err != nil {
			return ActionResult{}, err
		}
		return ActionResult{
			Kind:          ActionUpdateThreshold,
			RequiredVotes: store.RequiredVotes,
		}, nil
	case ActionRelinquishQuorum:
		released, err := store.relinquish(action.NewOwner, now)
		if err != nil {
			return ActionResult{}, err
		}
		return ActionResult{
			Kind:          ActionRelinquishQuorum,
			NewOwner:      strings.TrimSpace(action.NewOwner),
			Relinquished:  true,
			Resource:      released,
			RequiredVotes: store.RequiredVotes,
		}, nil
	case ActionExternal:
		return ActionResult{
			Kind:          ActionExternal,
			Name:          strings.TrimSpace(action.Name),
			Digest:        strings.TrimSpace(action.Digest),
			RequiredVotes: store.RequiredVotes,
		}, nil
	default:
		return ActionResult{}, domainerrors.ErrInvalidActionInput
	}
}
