package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	quorumengine "custos/contexts/governance/quorum-engine"
	governancehttp "custos/contexts/governance/quorum-engine/transport/http"
)

func newTestServer() *Server {
	return New(quorumengine.NewInMemoryModule(nil), nil, ":0")
}

func doJSON(t *testing.T, server *Server, method string, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request failed: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	return rr
}

func createTestStore(t *testing.T, server *Server) governancehttp.StoreResponse {
	t.Helper()
	rr := doJSON(t, server, http.MethodPost, "/api/governance/v1/stores", governancehttp.CreateStoreRequest{
		ResourceKind:  "deploy_key",
		RequiredVotes: 2,
		Voters:        []string{"alice", "bob", "carol"},
	}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create store expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var store governancehttp.StoreResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &store); err != nil {
		t.Fatalf("decode store failed: %v", err)
	}
	return store
}

func TestCreateStoreRejectsBadThreshold(t *testing.T) {
	server := newTestServer()
	rr := doJSON(t, server, http.MethodPost, "/api/governance/v1/stores", governancehttp.CreateStoreRequest{
		ResourceKind:  "deploy_key",
		RequiredVotes: 4,
		Voters:        []string{"alice", "bob"},
	}, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestProposeRequiresVoterHeader(t *testing.T) {
	server := newTestServer()
	store := createTestStore(t, server)

	rr := doJSON(t, server, http.MethodPost,
		fmt.Sprintf("/api/governance/v1/stores/%s/proposals", store.StoreID),
		governancehttp.ProposeRequest{Action: governancehttp.ActionRequest{Kind: "external", Name: "rotate"}},
		map[string]string{"Idempotency-Key": "idem-1"},
	)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without X-Voter-Id, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestProposeVoteExecuteLifecycle(t *testing.T) {
	server := newTestServer()
	store := createTestStore(t, server)

	rr := doJSON(t, server, http.MethodPost,
		fmt.Sprintf("/api/governance/v1/stores/%s/proposals", store.StoreID),
		governancehttp.ProposeRequest{Action: governancehttp.ActionRequest{Kind: "add_voter", Voter: "dave"}},
		map[string]string{"X-Voter-Id": "alice", "Idempotency-Key": "idem-propose"},
	)
	if rr.Code != http.StatusCreated {
		t.Fatalf("propose expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var proposal governancehttp.ProposalResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &proposal); err != nil {
		t.Fatalf("decode proposal failed: %v", err)
	}
	if proposal.EffectiveVotes != 1 || proposal.QuorumReached {
		t.Fatalf("expected creator-only vote, got %+v", proposal)
	}

	rr = doJSON(t, server, http.MethodPost,
		fmt.Sprintf("/api/governance/v1/proposals/%s/execute", proposal.ProposalID),
		governancehttp.ExecuteRequest{StoreID: store.StoreID}, nil,
	)
	if rr.Code != http.StatusConflict {
		t.Fatalf("premature execute expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost,
		fmt.Sprintf("/api/governance/v1/proposals/%s/votes", proposal.ProposalID),
		governancehttp.VoteRequest{StoreID: store.StoreID},
		map[string]string{"X-Voter-Id": "bob", "Idempotency-Key": "idem-vote"},
	)
	if rr.Code != http.StatusOK {
		t.Fatalf("vote expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost,
		fmt.Sprintf("/api/governance/v1/proposals/%s/execute", proposal.ProposalID),
		governancehttp.ExecuteRequest{StoreID: store.StoreID}, nil,
	)
	if rr.Code != http.StatusOK {
		t.Fatalf("execute expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var executed governancehttp.ExecuteResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &executed); err != nil {
		t.Fatalf("decode execute response failed: %v", err)
	}
	if executed.ActionKind != "add_voter" || executed.VotesCounted != 2 {
		t.Fatalf("unexpected execute response: %+v", executed)
	}

	rr = doJSON(t, server, http.MethodGet,
		fmt.Sprintf("/api/governance/v1/stores/%s", store.StoreID), nil, nil,
	)
	if rr.Code != http.StatusOK {
		t.Fatalf("get store expected 200, got %d", rr.Code)
	}
	var updated governancehttp.StoreResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode store failed: %v", err)
	}
	if len(updated.Voters) != 4 {
		t.Fatalf("expected dave added, got voters %v", updated.Voters)
	}
}

func TestExternalExecutionExposesAuthorization(t *testing.T) {
	server := newTestServer()
	store := createTestStore(t, server)

	rr := doJSON(t, server, http.MethodPost,
		fmt.Sprintf("/api/governance/v1/stores/%s/proposals", store.StoreID),
		governancehttp.ProposeRequest{
			Action: governancehttp.ActionRequest{Kind: "external", Name: "rotate_signing_key", Digest: "sha256:abcd"},
		},
		map[string]string{"X-Voter-Id": "alice", "Idempotency-Key": "idem-propose"},
	)
	if rr.Code != http.StatusCreated {
		t.Fatalf("propose expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var proposal governancehttp.ProposalResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &proposal); err != nil {
		t.Fatalf("decode proposal failed: %v", err)
	}

	rr = doJSON(t, server, http.MethodPost,
		fmt.Sprintf("/api/governance/v1/proposals/%s/votes", proposal.ProposalID),
		governancehttp.VoteRequest{StoreID: store.StoreID},
		map[string]string{"X-Voter-Id": "carol", "Idempotency-Key": "idem-vote"},
	)
	if rr.Code != http.StatusOK {
		t.Fatalf("vote expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost,
		fmt.Sprintf("/api/governance/v1/proposals/%s/execute", proposal.ProposalID),
		governancehttp.ExecuteRequest{StoreID: store.StoreID}, nil,
	)
	if rr.Code != http.StatusOK {
		t.Fatalf("execute expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var executed governancehttp.ExecuteResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &executed); err != nil {
		t.Fatalf("decode execute response failed: %v", err)
	}
	if executed.Authorization == nil {
		t.Fatalf("expected authorization in response")
	}

	rr = doJSON(t, server, http.MethodGet,
		fmt.Sprintf("/api/governance/v1/authorizations/%s", executed.Authorization.AuthorizationID), nil, nil,
	)
	if rr.Code != http.StatusOK {
		t.Fatalf("get authorization expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var authorization governancehttp.AuthorizationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &authorization); err != nil {
		t.Fatalf("decode authorization failed: %v", err)
	}
	if authorization.Name != "rotate_signing_key" || authorization.VotesCounted != 2 {
		t.Fatalf("unexpected authorization: %+v", authorization)
	}
}
