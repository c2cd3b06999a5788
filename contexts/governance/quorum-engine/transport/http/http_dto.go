package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CreateStoreRequest struct {
	ResourceKind      string   `json:"resource_kind"`
	ResourceReference string   `json:"resource_reference,omitempty"`
	RequiredVotes     int      `json:"required_votes"`
	Voters            []string `json:"voters"`
}

type StoreResponse struct {
	StoreID         string   `json:"store_id"`
	ResourceKind    string   `json:"resource_kind"`
	ResourceOwner   string   `json:"resource_owner"`
	RequiredVotes   int      `json:"required_votes"`
	Voters          []string `json:"voters"`
	OpenProposalIDs []string `json:"open_proposal_ids"`
}

type ReplaceSelfRequest struct {
	NewVoter string `json:"new_voter"`
}

type ActionRequest struct {
	Kind         string `json:"kind"`
	Voter        string `json:"voter,omitempty"`
	OldVoter     string `json:"old_voter,omitempty"`
	NewVoter     string `json:"new_voter,omitempty"`
	NewThreshold *int   `json:"new_threshold,omitempty"`
	NewOwner     string `json:"new_owner,omitempty"`
	Name         string `json:"name,omitempty"`
	Digest       string `json:"digest,omitempty"`
}

type ProposeRequest struct {
	Action   ActionRequest     `json:"action"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type ProposalResponse struct {
	ProposalID     string            `json:"proposal_id"`
	StoreID        string            `json:"store_id"`
	Creator        string            `json:"creator"`
	ActionKind     string            `json:"action_kind"`
	Votes          []string          `json:"votes"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	EffectiveVotes int               `json:"effective_votes"`
	RequiredVotes  int               `json:"required_votes"`
	QuorumReached  bool              `json:"quorum_reached"`
	Replayed       bool              `json:"replayed,omitempty"`
}

type ProposalListResponse struct {
	StoreID string             `json:"store_id"`
	Items   []ProposalResponse `json:"items"`
}

type VoteRequest struct {
	StoreID string `json:"store_id"`
}

type ExecuteRequest struct {
	StoreID string `json:"store_id"`
}

type ExecuteResponse struct {
	ProposalID    string                 `json:"proposal_id"`
	StoreID       string                 `json:"store_id"`
	ActionKind    string                 `json:"action_kind"`
	VotesCounted  int                    `json:"votes_counted"`
	RequiredVotes int                    `json:"required_votes"`
	Relinquished  bool                   `json:"relinquished,omitempty"`
	NewOwner      string                 `json:"new_owner,omitempty"`
	Authorization *AuthorizationResponse `json:"authorization,omitempty"`
}

type AuthorizationResponse struct {
	AuthorizationID string `json:"authorization_id"`
	StoreID         string `json:"store_id"`
	ProposalID      string `json:"proposal_id"`
	Name            string `json:"name"`
	Digest          string `json:"digest,omitempty"`
	VotesCounted    int    `json:"votes_counted"`
	IssuedAt        string `json:"issued_at"`
}

type AuditRecordItem struct {
	AuditID    string `json:"audit_id"`
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	OccurredAt string `json:"occurred_at"`
	Payload    string `json:"payload"`
}

type AuditListResponse struct {
	StoreID string            `json:"store_id"`
	Items   []AuditRecordItem `json:"items"`
}
