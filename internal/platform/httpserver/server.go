package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	quorumengine "custos/contexts/governance/quorum-engine"
	governanceerrors "custos/contexts/governance/quorum-engine/domain/errors"
	governancehttp "custos/contexts/governance/quorum-engine/transport/http"

	_ "custos/internal/platform/httpserver/docs"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Server struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	addr       string
	governance quorumengine.Module
}

func New(
	governance quorumengine.Module,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:        http.NewServeMux(),
		logger:     logger,
		addr:       addr,
		governance: governance,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /api/governance/v1/stores", s.handleCreateStore)
	s.mux.HandleFunc("GET /api/governance/v1/stores/{store_id}", s.handleGetStore)
	s.mux.HandleFunc("POST /api/governance/v1/stores/{store_id}/replace-self", s.handleReplaceSelf)
	s.mux.HandleFunc("POST /api/governance/v1/stores/{store_id}/proposals", s.handlePropose)
	s.mux.HandleFunc("GET /api/governance/v1/stores/{store_id}/proposals", s.handleListProposals)
	s.mux.HandleFunc("GET /api/governance/v1/stores/{store_id}/audit", s.handleListAudit)
	s.mux.HandleFunc("GET /api/governance/v1/proposals/{proposal_id}", s.handleGetProposal)
	s.mux.HandleFunc("POST /api/governance/v1/proposals/{proposal_id}/votes", s.handleVote)
	s.mux.HandleFunc("DELETE /api/governance/v1/proposals/{proposal_id}/votes", s.handleRetractVote)
	s.mux.HandleFunc("DELETE /api/governance/v1/proposals/{proposal_id}", s.handleDeleteProposal)
	s.mux.HandleFunc("POST /api/governance/v1/proposals/{proposal_id}/execute", s.handleExecute)
	s.mux.HandleFunc("GET /api/governance/v1/authorizations/{authorization_id}", s.handleGetAuthorization)
}

func (s *Server) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	var req governancehttp.CreateStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.governance.Handler.CreateStoreHandler(r.Context(), req)
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetStore(w http.ResponseWriter, r *http.Request) {
	resp, err := s.governance.Handler.GetStoreHandler(r.Context(), r.PathValue("store_id"))
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReplaceSelf(w http.ResponseWriter, r *http.Request) {
	voterID, ok := resolveVoterID(w, r)
	if !ok {
		return
	}
	var req governancehttp.ReplaceSelfRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.governance.Handler.ReplaceSelfHandler(r.Context(), r.PathValue("store_id"), voterID, req)
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	voterID, ok := resolveVoterID(w, r)
	if !ok {
		return
	}
	var req governancehttp.ProposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.governance.Handler.ProposeHandler(
		r.Context(),
		r.PathValue("store_id"),
		voterID,
		r.Header.Get("Idempotency-Key"),
		req,
	)
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	resp, err := s.governance.Handler.ListProposalsHandler(r.Context(), r.PathValue("store_id"))
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	resp, err := s.governance.Handler.GetProposalHandler(r.Context(), r.PathValue("proposal_id"))
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	voterID, ok := resolveVoterID(w, r)
	if !ok {
		return
	}
	var req governancehttp.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.governance.Handler.VoteHandler(
		r.Context(),
		r.PathValue("proposal_id"),
		voterID,
		r.Header.Get("Idempotency-Key"),
		req,
	)
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRetractVote(w http.ResponseWriter, r *http.Request) {
	voterID, ok := resolveVoterID(w, r)
	if !ok {
		return
	}
	var req governancehttp.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.governance.Handler.RetractVoteHandler(
		r.Context(),
		r.PathValue("proposal_id"),
		voterID,
		r.Header.Get("Idempotency-Key"),
		req,
	)
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteProposal(w http.ResponseWriter, r *http.Request) {
	voterID, ok := resolveVoterID(w, r)
	if !ok {
		return
	}
	if err := s.governance.Handler.DeleteProposalHandler(r.Context(), r.PathValue("proposal_id"), voterID); err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req governancehttp.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.governance.Handler.ExecuteHandler(r.Context(), r.PathValue("proposal_id"), req)
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetAuthorization(w http.ResponseWriter, r *http.Request) {
	resp, err := s.governance.Handler.GetAuthorizationHandler(r.Context(), r.PathValue("authorization_id"))
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	resp, err := s.governance.Handler.ListAuditHandler(r.Context(), r.PathValue("store_id"))
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func resolveVoterID(w http.ResponseWriter, r *http.Request) (string, bool) {
	voterID := strings.TrimSpace(r.Header.Get("X-Voter-Id"))
	if voterID == "" {
		writeGovernanceError(w, http.StatusUnauthorized, "missing_voter", "X-Voter-Id header is required")
		return "", false
	}
	return voterID, true
}

func writeGovernanceDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, governanceerrors.ErrInvalidConfiguration):
		writeGovernanceError(w, http.StatusUnprocessableEntity, "invalid_configuration", err.Error())
	case errors.Is(err, governanceerrors.ErrInvalidActionInput),
		errors.Is(err, governanceerrors.ErrInvalidProposalInput):
		writeGovernanceError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, governanceerrors.ErrUnauthorized):
		writeGovernanceError(w, http.StatusForbidden, "unauthorized_voter", err.Error())
	case errors.Is(err, governanceerrors.ErrStoreNotFound),
		errors.Is(err, governanceerrors.ErrProposalNotFound),
		errors.Is(err, governanceerrors.ErrAuthorizationNotFound):
		writeGovernanceError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, governanceerrors.ErrDuplicateVoter),
		errors.Is(err, governanceerrors.ErrUnknownVoter),
		errors.Is(err, governanceerrors.ErrDuplicateVote),
		errors.Is(err, governanceerrors.ErrNoSuchVote),
		errors.Is(err, governanceerrors.ErrIdempotencyConflict),
		errors.Is(err, governanceerrors.ErrConflict):
		writeGovernanceError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, governanceerrors.ErrQuorumNotReached):
		writeGovernanceError(w, http.StatusConflict, "quorum_not_reached", err.Error())
	case errors.Is(err, governanceerrors.ErrIdempotencyKeyRequired):
		writeGovernanceError(w, http.StatusBadRequest, "idempotency_key_required", err.Error())
	default:
		writeGovernanceError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeGovernanceError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, governancehttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
