package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	app "github.com/taskforge/platform/internal/app"
	bountyDomain "github.com/taskforge/platform/internal/app/domain/bounty"
	disputeDomain "github.com/taskforge/platform/internal/app/domain/dispute"
	"github.com/taskforge/platform/internal/app/domain/ledger"
	submissionDomain "github.com/taskforge/platform/internal/app/domain/submission"
	"github.com/taskforge/platform/internal/app/httpapi"
	"github.com/taskforge/platform/internal/app/storage/memory"
	"github.com/taskforge/platform/internal/auth"
)

var (
	publisherHdr = map[string]string{"X-Actor-Id": "pub-1", "X-Actor-Role": "publisher"}
	agentHdr     = map[string]string{"X-Actor-Id": "agent-1", "X-Actor-Role": "agent"}
	adminHdr     = map[string]string{"X-Actor-Id": "root", "X-Actor-Role": "admin"}
)

func newServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	application := app.New(app.Stores{
		Bounties:     store,
		Submissions:  store,
		Disputes:     store,
		Ledger:       store,
		Reputation:   store,
		Verification: store,
		Settlements:  store,
	}, app.Options{})
	if _, err := store.CreditWallet(context.Background(), "pub-1", 100000); err != nil {
		t.Fatalf("seed wallet: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewHandler(application, httpapi.Options{}))
	t.Cleanup(srv.Close)
	return srv, store
}

func do(t *testing.T, srv *httptest.Server, method, path string, hdr map[string]string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func createBounty(t *testing.T, srv *httptest.Server) bountyDomain.Bounty {
	t.Helper()
	resp := do(t, srv, http.MethodPost, "/bounties", publisherHdr, map[string]interface{}{
		"title":           "Implement CSV parser",
		"description":     "Parse RFC 4180 CSV with quoted fields and report row counts.",
		"reward_amount":   10000,
		"deadline":        time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
		"max_submissions": 3,
		"criteria": []map[string]interface{}{
			{"Text": "Handles quoted fields", "Type": "binary", "Weight": 1},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create bounty status = %d", resp.StatusCode)
	}
	var b bountyDomain.Bounty
	decode(t, resp, &b)
	return b
}

func submit(t *testing.T, srv *httptest.Server, bountyID string) submissionDomain.Submission {
	t.Helper()
	resp := do(t, srv, http.MethodPost, "/bounties/"+bountyID+"/submissions", agentHdr,
		map[string]string{"content": "https://example.com/solutions/csv-parser"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit status = %d", resp.StatusCode)
	}
	var sub submissionDomain.Submission
	decode(t, resp, &sub)
	return sub
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t)
	resp := do(t, srv, http.MethodGet, "/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv, _ := newServer(t)
	resp := do(t, srv, http.MethodGet, "/bounties", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without actor headers", resp.StatusCode)
	}
}

func TestCreateBountyHoldsEscrow(t *testing.T) {
	srv, _ := newServer(t)
	b := createBounty(t, srv)
	if b.Status != bountyDomain.StatusOpen {
		t.Fatalf("status = %q, want open", b.Status)
	}

	resp := do(t, srv, http.MethodGet, "/wallets/pub-1", publisherHdr, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("wallet status = %d", resp.StatusCode)
	}
	var w ledger.Wallet
	decode(t, resp, &w)
	if w.Balance != 90000 {
		t.Fatalf("balance = %d, want 90000 after escrow hold", w.Balance)
	}
}

func TestCreateBountyValidationStatus(t *testing.T) {
	srv, _ := newServer(t)
	resp := do(t, srv, http.MethodPost, "/bounties", publisherHdr, map[string]interface{}{
		"title":         "x",
		"reward_amount": -5,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid payload", resp.StatusCode)
	}
	var body map[string]string
	decode(t, resp, &body)
	if body["error"] == "" {
		t.Fatalf("body = %v, want error message", body)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	srv, _ := newServer(t)
	resp := do(t, srv, http.MethodPost, "/bounties", publisherHdr,
		map[string]interface{}{"title": "x", "bogus": true})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown field", resp.StatusCode)
	}
}

func TestDuplicateBidConflicts(t *testing.T) {
	srv, _ := newServer(t)
	b := createBounty(t, srv)

	resp := do(t, srv, http.MethodPost, "/bounties/"+b.ID+"/bids", agentHdr,
		map[string]string{"note": "on it"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first bid status = %d", resp.StatusCode)
	}
	resp = do(t, srv, http.MethodPost, "/bounties/"+b.ID+"/bids", agentHdr,
		map[string]string{"note": "again"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate bid status = %d, want 409", resp.StatusCode)
	}
}

func TestAwardPaysAgent(t *testing.T) {
	srv, _ := newServer(t)
	b := createBounty(t, srv)
	sub := submit(t, srv, b.ID)

	resp := do(t, srv, http.MethodPost, "/bounties/"+b.ID+"/award", publisherHdr, map[string]interface{}{
		"submission_id": sub.ID,
		"quality_score": 5,
		"review_notes":  "clean implementation",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("award status = %d", resp.StatusCode)
	}

	resp = do(t, srv, http.MethodGet, "/wallets/agent-1", agentHdr, nil)
	var w ledger.Wallet
	decode(t, resp, &w)
	if w.Balance != 9000 {
		t.Fatalf("agent balance = %d, want 9000 after fee", w.Balance)
	}

	resp = do(t, srv, http.MethodGet, "/bounties/"+b.ID+"/transactions", publisherHdr, nil)
	var txs []ledger.Transaction
	decode(t, resp, &txs)
	if len(txs) < 3 {
		t.Fatalf("transactions = %d, want hold, payout and fee", len(txs))
	}
}

func TestAwardByStrangerForbidden(t *testing.T) {
	srv, _ := newServer(t)
	b := createBounty(t, srv)
	sub := submit(t, srv, b.ID)

	resp := do(t, srv, http.MethodPost, "/bounties/"+b.ID+"/award",
		map[string]string{"X-Actor-Id": "pub-2", "X-Actor-Role": "publisher"},
		map[string]interface{}{"submission_id": sub.ID, "quality_score": 4})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestDisputeLifecycleOverHTTP(t *testing.T) {
	srv, _ := newServer(t)
	b := createBounty(t, srv)
	sub := submit(t, srv, b.ID)

	resp := do(t, srv, http.MethodPost, "/submissions/"+sub.ID+"/reject", publisherHdr,
		map[string]string{"reason": "output format does not match the acceptance criteria"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reject status = %d", resp.StatusCode)
	}

	resp = do(t, srv, http.MethodPost, "/submissions/"+sub.ID+"/disputes", agentHdr, map[string]interface{}{
		"grounds":   []string{string(disputeDomain.GroundsNoReason)},
		"statement": "The rejection cites a format issue the criteria never mention.",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("file dispute status = %d", resp.StatusCode)
	}
	var d disputeDomain.Dispute
	decode(t, resp, &d)
	if d.Status != disputeDomain.StatusFiled {
		t.Fatalf("dispute status = %q, want filed", d.Status)
	}

	resp = do(t, srv, http.MethodPost, "/disputes/"+d.ID+"/response", publisherHdr,
		map[string]string{"response": "The criteria require RFC 4180 output and the submission does not comply."})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("respond status = %d", resp.StatusCode)
	}

	resp = do(t, srv, http.MethodPost, "/disputes/"+d.ID+"/resolution", agentHdr,
		map[string]interface{}{"outcome": string(disputeDomain.StatusResolvedAgentFull)})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin resolve status = %d, want 403", resp.StatusCode)
	}

	resp = do(t, srv, http.MethodPost, "/disputes/"+d.ID+"/resolution", adminHdr, map[string]interface{}{
		"outcome": string(disputeDomain.StatusResolvedAgentFull),
		"notes":   "rejection grounds not supported by the criteria",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %d", resp.StatusCode)
	}
	decode(t, resp, &d)
	if d.Status != disputeDomain.StatusResolvedAgentFull {
		t.Fatalf("dispute status = %q, want resolved_agent_full", d.Status)
	}
	if d.ResolutionAmount != 9000 {
		t.Fatalf("resolution amount = %d, want 9000", d.ResolutionAmount)
	}

	resp = do(t, srv, http.MethodGet, "/wallets/agent-1", agentHdr, nil)
	var w ledger.Wallet
	decode(t, resp, &w)
	if w.Balance != 9000 {
		t.Fatalf("agent balance = %d, want 9000", w.Balance)
	}
}

func TestEvidenceEndpoints(t *testing.T) {
	srv, _ := newServer(t)
	b := createBounty(t, srv)
	sub := submit(t, srv, b.ID)

	do(t, srv, http.MethodPost, "/submissions/"+sub.ID+"/reject", publisherHdr,
		map[string]string{"reason": "incomplete coverage of the listed criteria"})
	resp := do(t, srv, http.MethodPost, "/submissions/"+sub.ID+"/disputes", agentHdr, map[string]interface{}{
		"grounds":   []string{string(disputeDomain.GroundsCriteriaMet)},
		"statement": "All listed criteria are demonstrably satisfied by the submission.",
	})
	var d disputeDomain.Dispute
	decode(t, resp, &d)

	resp = do(t, srv, http.MethodPost, "/disputes/"+d.ID+"/evidence", agentHdr, map[string]interface{}{
		"artifact_type":   "test_output",
		"content":         "all 12 cases green",
		"criterion_index": 0,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("evidence status = %d", resp.StatusCode)
	}

	resp = do(t, srv, http.MethodGet, "/disputes/"+d.ID+"/evidence", publisherHdr, nil)
	var list []disputeDomain.Evidence
	decode(t, resp, &list)
	if len(list) != 1 {
		t.Fatalf("evidence count = %d, want 1", len(list))
	}
}

func TestWalletIsPrivate(t *testing.T) {
	srv, _ := newServer(t)
	resp := do(t, srv, http.MethodGet, "/wallets/pub-1", agentHdr, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for another actor's wallet", resp.StatusCode)
	}
	resp = do(t, srv, http.MethodGet, "/wallets/pub-1", adminHdr, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 for admin", resp.StatusCode)
	}
}

func TestReputationEndpoint(t *testing.T) {
	srv, _ := newServer(t)
	createBounty(t, srv)

	resp := do(t, srv, http.MethodGet, "/publishers/pub-1/reputation", agentHdr, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var score struct {
		Final float64
	}
	decode(t, resp, &score)
	if score.Final <= 0 {
		t.Fatalf("final score = %v, want positive", score.Final)
	}
}

func TestAuditLogAdminOnly(t *testing.T) {
	srv, _ := newServer(t)
	createBounty(t, srv)

	resp := do(t, srv, http.MethodGet, "/admin/audit", agentHdr, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for non-admin", resp.StatusCode)
	}

	resp = do(t, srv, http.MethodGet, "/admin/audit", adminHdr, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 for admin", resp.StatusCode)
	}
	var entries []map[string]interface{}
	decode(t, resp, &entries)
	if len(entries) == 0 {
		t.Fatalf("audit log empty, want at least the create request")
	}
	first := entries[0]
	if first["resource"] != "bounty" || first["method"] != "POST" {
		t.Fatalf("first entry = %v, want the bounty creation", first)
	}
}

func TestLoginIssuesUsableToken(t *testing.T) {
	store := memory.New()
	application := app.New(app.Stores{
		Bounties: store, Submissions: store, Disputes: store, Ledger: store,
		Reputation: store, Verification: store, Settlements: store,
	}, app.Options{})
	mgr := auth.NewManager("test-secret", []auth.User{
		{Username: "pub-1", Password: "hunter22", Role: auth.RolePublisher},
	})
	srv := httptest.NewServer(httpapi.NewHandler(application, httpapi.Options{Auth: mgr}))
	t.Cleanup(srv.Close)

	resp := do(t, srv, http.MethodPost, "/auth/login", nil,
		map[string]string{"username": "pub-1", "password": "hunter22"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var body map[string]string
	decode(t, resp, &body)
	if body["token"] == "" {
		t.Fatalf("login returned no token")
	}

	// Header identities are ignored once a manager is configured.
	resp = do(t, srv, http.MethodGet, "/bounties", publisherHdr, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without bearer token", resp.StatusCode)
	}

	resp = do(t, srv, http.MethodGet, "/bounties",
		map[string]string{"Authorization": "Bearer " + body["token"]}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 with bearer token", resp.StatusCode)
	}

	resp = do(t, srv, http.MethodPost, "/auth/login", nil,
		map[string]string{"username": "pub-1", "password": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d, want 401", resp.StatusCode)
	}
}

func TestAdminSweepEndpoint(t *testing.T) {
	srv, _ := newServer(t)

	resp := do(t, srv, http.MethodPost, "/admin/sweep", agentHdr, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for non-admin", resp.StatusCode)
	}

	resp = do(t, srv, http.MethodPost, "/admin/sweep", adminHdr, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 for admin", resp.StatusCode)
	}
	var report struct {
		BountiesExpired  int
		DisputesResolved int
		Failed           []string
	}
	decode(t, resp, &report)
	if report.BountiesExpired != 0 || len(report.Failed) != 0 {
		t.Fatalf("report = %+v, want an empty sweep", report)
	}
}

func TestSubmissionCapOverHTTP(t *testing.T) {
	srv, _ := newServer(t)
	b := createBounty(t, srv) // max_submissions = 3

	for i := 0; i < 3; i++ {
		hdr := map[string]string{"X-Actor-Id": fmt.Sprintf("agent-%d", i+1), "X-Actor-Role": "agent"}
		resp := do(t, srv, http.MethodPost, "/bounties/"+b.ID+"/submissions", hdr,
			map[string]string{"content": "https://example.com/sol"})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("submission %d status = %d", i+1, resp.StatusCode)
		}
	}
	resp := do(t, srv, http.MethodPost, "/bounties/"+b.ID+"/submissions",
		map[string]string{"X-Actor-Id": "agent-4", "X-Actor-Role": "agent"},
		map[string]string{"content": "https://example.com/sol"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("over-cap status = %d, want 409", resp.StatusCode)
	}
}
