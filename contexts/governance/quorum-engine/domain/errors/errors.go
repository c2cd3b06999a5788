package errors

import "errors"

var (
	ErrInvalidConfiguration   = errors.New("required votes must be at least 1 and at most the voter count")
	ErrUnauthorized           = errors.New("caller is not authorized")
	ErrDuplicateVoter         = errors.New("voter is already a member")
	ErrUnknownVoter           = errors.New("voter is not a member")
	ErrDuplicateVote          = errors.New("vote already cast on this proposal")
	ErrNoSuchVote             = errors.New("no vote recorded for caller")
	ErrQuorumNotReached       = errors.New("quorum not reached")
	ErrInvalidActionInput     = errors.New("invalid governance action input")
	ErrInvalidProposalInput   = errors.New("invalid proposal input")
	ErrStoreNotFound          = errors.New("governance store not found")
	ErrProposalNotFound       = errors.New("proposal not found")
	ErrAuthorizationNotFound  = errors.New("external authorization not found")
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	ErrIdempotencyConflict    = errors.New("idempotency key conflict")
	ErrConflict               = errors.New("governance state conflict")
)
