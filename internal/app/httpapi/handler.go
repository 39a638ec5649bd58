// Package httpapi exposes the marketplace over a REST surface. Authentication
// yields an auth.Identity; the services decide ownership and role questions.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	app "github.com/taskforge/platform/internal/app"
	bountyDomain "github.com/taskforge/platform/internal/app/domain/bounty"
	disputeDomain "github.com/taskforge/platform/internal/app/domain/dispute"
	"github.com/taskforge/platform/internal/app/domain/fault"
	verificationDomain "github.com/taskforge/platform/internal/app/domain/verification"
	bountysvc "github.com/taskforge/platform/internal/app/services/bounty"
	disputesvc "github.com/taskforge/platform/internal/app/services/dispute"
	submissionsvc "github.com/taskforge/platform/internal/app/services/submission"
	"github.com/taskforge/platform/internal/auth"
	"github.com/taskforge/platform/pkg/logger"
)

// Options configures the optional handler collaborators.
type Options struct {
	Auth          *auth.Manager
	Logger        *logger.Logger
	AuditMax      int
	AuditFilePath string
}

type handler struct {
	app   *app.Application
	auth  *auth.Manager
	audit *auditLog
	log   *logger.Logger
}

// NewHandler returns a mux exposing the core REST API.
func NewHandler(application *app.Application, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	sink, err := newFileAuditSink(opts.AuditFilePath)
	if err != nil {
		log.WithError(err).Warn("audit file sink unavailable")
	}

	h := &handler{
		app:   application,
		auth:  opts.Auth,
		audit: newAuditLog(opts.AuditMax, sink),
		log:   log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.health)
	mux.HandleFunc("/auth/login", h.login)
	mux.HandleFunc("/bounties", h.withIdentity(h.bounties))
	mux.HandleFunc("/bounties/", h.withIdentity(h.bountyResources))
	mux.HandleFunc("/submissions/", h.withIdentity(h.submissionResources))
	mux.HandleFunc("/disputes/", h.withIdentity(h.disputeResources))
	mux.HandleFunc("/publishers/", h.withIdentity(h.publisherResources))
	mux.HandleFunc("/wallets/", h.withIdentity(h.wallets))
	mux.HandleFunc("/admin/audit", h.withIdentity(h.auditEntries))
	mux.HandleFunc("/admin/sweep", h.withIdentity(h.runSweep))
	if application.Metrics != nil {
		mux.Handle("/metrics", application.Metrics.Handler())
	}
	return h.instrument(mux)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.auth == nil {
		writeError(w, http.StatusNotImplemented, errors.New("authentication not configured"))
		return
	}
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	token, err := h.auth.Authenticate(payload.Username, payload.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Bounties -----------------------------------------------------------------

func (h *handler) bounties(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Title          string                   `json:"title"`
			Description    string                   `json:"description"`
			RewardAmount   int64                    `json:"reward_amount"`
			Deadline       time.Time                `json:"deadline"`
			MaxSubmissions int                      `json:"max_submissions"`
			Criteria       []bountyDomain.Criterion `json:"criteria"`
			Tags           []string                 `json:"tags"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		b, err := h.app.Bounties.Create(r.Context(), actor.Subject, bountysvc.CreateInput{
			Title:          payload.Title,
			Description:    payload.Description,
			RewardAmount:   payload.RewardAmount,
			Deadline:       payload.Deadline,
			MaxSubmissions: payload.MaxSubmissions,
			Criteria:       payload.Criteria,
			Tags:           payload.Tags,
		})
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, b)

	case http.MethodGet:
		bounties, err := h.app.Bounties.List(r.Context(), r.URL.Query().Get("publisher_id"))
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusOK, bounties)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) bountyResources(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	parts := pathParts(r.URL.Path, "/bounties")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	bountyID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		b, err := h.app.Bounties.Get(r.Context(), bountyID)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
		return
	}

	switch parts[1] {
	case "cancel":
		h.cancelBounty(w, r, actor, bountyID)
	case "bids":
		h.bids(w, r, actor, bountyID)
	case "submissions":
		h.bountySubmissions(w, r, actor, bountyID)
	case "award":
		h.award(w, r, actor, bountyID)
	case "transactions":
		h.transactions(w, r, bountyID)
	case "test-cases":
		h.testCases(w, r, actor, bountyID)
	case "disputes":
		h.bountyDisputes(w, r, bountyID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) cancelBounty(w http.ResponseWriter, r *http.Request, actor auth.Identity, bountyID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	b, err := h.app.Bounties.Cancel(r.Context(), actor, bountyID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *handler) bids(w http.ResponseWriter, r *http.Request, actor auth.Identity, bountyID string) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Note string `json:"note"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		bid, err := h.app.Bounties.PlaceBid(r.Context(), actor.Subject, bountyID, payload.Note)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, bid)

	case http.MethodGet:
		bids, err := h.app.Bounties.ListBids(r.Context(), bountyID)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusOK, bids)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) bountySubmissions(w http.ResponseWriter, r *http.Request, actor auth.Identity, bountyID string) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Content string `json:"content"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sub, err := h.app.Submissions.Submit(r.Context(), actor.Subject, bountyID, payload.Content)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sub)

	case http.MethodGet:
		subs, err := h.app.Submissions.List(r.Context(), bountyID)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusOK, subs)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) award(w http.ResponseWriter, r *http.Request, actor auth.Identity, bountyID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		SubmissionID    string `json:"submission_id"`
		QualityScore    int    `json:"quality_score"`
		ReviewNotes     string `json:"review_notes"`
		CriterionScores []int  `json:"criterion_scores"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sub, err := h.app.Submissions.Award(r.Context(), actor, bountyID, payload.SubmissionID, submissionsvc.AwardInput{
		QualityScore:    payload.QualityScore,
		ReviewNotes:     payload.ReviewNotes,
		CriterionScores: payload.CriterionScores,
	})
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *handler) transactions(w http.ResponseWriter, r *http.Request, bountyID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	txs, err := h.app.Bounties.Transactions(r.Context(), bountyID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *handler) testCases(w http.ResponseWriter, r *http.Request, actor auth.Identity, bountyID string) {
	if h.app.Verification == nil {
		writeError(w, http.StatusNotImplemented, errors.New("verification service not configured"))
		return
	}
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Stdin          string `json:"stdin"`
			ExpectedOutput string `json:"expected_output"`
			Public         bool   `json:"public"`
			TimeLimitMS    int64  `json:"time_limit_ms"`
			MemoryLimitKB  int64  `json:"memory_limit_kb"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		tc, err := h.app.Verification.AddTestCase(r.Context(), verificationDomain.TestCase{
			BountyID:       bountyID,
			Stdin:          payload.Stdin,
			ExpectedOutput: payload.ExpectedOutput,
			Public:         payload.Public,
			TimeLimitMS:    payload.TimeLimitMS,
			MemoryLimitKB:  payload.MemoryLimitKB,
		})
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, tc)

	case http.MethodGet:
		cases, err := h.app.Verification.ListTestCases(r.Context(), bountyID)
		if err != nil {
			writeFault(w, err)
			return
		}
		// Hidden inputs and outputs stay hidden for non-admins.
		if !actor.IsAdmin() {
			filtered := make([]verificationDomain.TestCase, 0, len(cases))
			for _, tc := range cases {
				if !tc.Public {
					tc.Stdin = ""
					tc.ExpectedOutput = ""
				}
				filtered = append(filtered, tc)
			}
			cases = filtered
		}
		writeJSON(w, http.StatusOK, cases)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) bountyDisputes(w http.ResponseWriter, r *http.Request, bountyID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	disputes, err := h.app.Disputes.List(r.Context(), bountyID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, disputes)
}

// Submissions --------------------------------------------------------------

func (h *handler) submissionResources(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	parts := pathParts(r.URL.Path, "/submissions")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	submissionID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		sub, err := h.app.Submissions.Get(r.Context(), submissionID)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sub)
		return
	}

	switch parts[1] {
	case "reject":
		h.reject(w, r, actor, submissionID)
	case "disputes":
		h.fileDispute(w, r, actor, submissionID)
	case "verify":
		h.verify(w, r, submissionID)
	case "verification":
		h.verificationResult(w, r, submissionID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) reject(w http.ResponseWriter, r *http.Request, actor auth.Identity, submissionID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sub, err := h.app.Submissions.Reject(r.Context(), actor, submissionID, payload.Reason)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *handler) fileDispute(w http.ResponseWriter, r *http.Request, actor auth.Identity, submissionID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Grounds   []disputeDomain.Grounds `json:"grounds"`
		Statement string                  `json:"statement"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	d, err := h.app.Disputes.File(r.Context(), actor.Subject, submissionID, payload.Grounds, payload.Statement)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *handler) verify(w http.ResponseWriter, r *http.Request, submissionID string) {
	if h.app.Verification == nil {
		writeError(w, http.StatusNotImplemented, errors.New("verification service not configured"))
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		BountyID string `json:"bounty_id"`
		Language string `json:"language"`
		Source   string `json:"source"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := h.app.Verification.Verify(r.Context(), submissionID, payload.BountyID, payload.Language, payload.Source)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) verificationResult(w http.ResponseWriter, r *http.Request, submissionID string) {
	if h.app.Verification == nil {
		writeError(w, http.StatusNotImplemented, errors.New("verification service not configured"))
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	result, err := h.app.Verification.Result(r.Context(), submissionID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Disputes -----------------------------------------------------------------

func (h *handler) disputeResources(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	parts := pathParts(r.URL.Path, "/disputes")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	disputeID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		d, err := h.app.Disputes.Get(r.Context(), disputeID)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
		return
	}

	switch parts[1] {
	case "response":
		h.respond(w, r, actor, disputeID)
	case "review":
		h.startReview(w, r, actor, disputeID)
	case "resolution":
		h.resolve(w, r, actor, disputeID)
	case "withdraw":
		h.withdraw(w, r, actor, disputeID)
	case "evidence":
		h.evidence(w, r, actor, disputeID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) respond(w http.ResponseWriter, r *http.Request, actor auth.Identity, disputeID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Response string `json:"response"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	d, err := h.app.Disputes.Respond(r.Context(), actor, disputeID, payload.Response)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handler) startReview(w http.ResponseWriter, r *http.Request, actor auth.Identity, disputeID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	d, err := h.app.Disputes.StartReview(r.Context(), actor, disputeID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handler) resolve(w http.ResponseWriter, r *http.Request, actor auth.Identity, disputeID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Outcome  string `json:"outcome"`
		SplitBPS int    `json:"split_bps"`
		Notes    string `json:"notes"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	d, err := h.app.Disputes.Resolve(r.Context(), actor, disputeID,
		disputeDomain.Status(payload.Outcome), payload.SplitBPS, payload.Notes)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request, actor auth.Identity, disputeID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	d, err := h.app.Disputes.Withdraw(r.Context(), actor.Subject, disputeID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handler) evidence(w http.ResponseWriter, r *http.Request, actor auth.Identity, disputeID string) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			ArtifactType   string `json:"artifact_type"`
			Content        string `json:"content"`
			CriterionIndex *int   `json:"criterion_index"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		idx := -1
		if payload.CriterionIndex != nil {
			idx = *payload.CriterionIndex
		}
		ev, err := h.app.Disputes.SubmitEvidence(r.Context(), actor, disputeID, disputesvc.EvidenceInput{
			ArtifactType:   disputeDomain.ArtifactType(payload.ArtifactType),
			Content:        payload.Content,
			CriterionIndex: idx,
		})
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ev)

	case http.MethodGet:
		list, err := h.app.Disputes.ListEvidence(r.Context(), disputeID)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Reputation and wallets ---------------------------------------------------

func (h *handler) publisherResources(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	parts := pathParts(r.URL.Path, "/publishers")
	if len(parts) != 2 || parts[1] != "reputation" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	score, err := h.app.Reputation.Score(r.Context(), parts[0])
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (h *handler) wallets(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	parts := pathParts(r.URL.Path, "/wallets")
	if len(parts) != 1 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ownerID := parts[0]
	if ownerID != actor.Subject && !actor.IsAdmin() {
		writeError(w, http.StatusForbidden, errors.New("wallets are private"))
		return
	}
	wallet, err := h.app.Bounties.Wallet(r.Context(), ownerID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (h *handler) runSweep(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !actor.IsAdmin() {
		writeError(w, http.StatusForbidden, errors.New("administrators only"))
		return
	}
	report, err := h.app.Sweeper.Sweep(r.Context())
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) auditEntries(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !actor.IsAdmin() {
		writeError(w, http.StatusForbidden, errors.New("administrators only"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

// Helpers ------------------------------------------------------------------

func pathParts(path, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// writeFault maps domain sentinel errors onto HTTP status codes.
func writeFault(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fault.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, fault.ErrForbidden):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, fault.ErrConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, fault.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, fault.ErrValidation):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, fault.ErrUpstream):
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
