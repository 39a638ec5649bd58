// Package postgres implements the storage interfaces over PostgreSQL. All
// status changes are conditional UPDATEs guarded on the expected current
// status; a guard miss affects zero rows and surfaces as fault.ErrConflict.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/taskforge/platform/internal/app/domain/bounty"
	"github.com/taskforge/platform/internal/app/domain/dispute"
	"github.com/taskforge/platform/internal/app/domain/fault"
	"github.com/taskforge/platform/internal/app/domain/ledger"
	"github.com/taskforge/platform/internal/app/domain/reputation"
	"github.com/taskforge/platform/internal/app/domain/submission"
	"github.com/taskforge/platform/internal/app/domain/verification"
	"github.com/taskforge/platform/internal/app/storage"
)

// Store is a PostgreSQL-backed implementation of every storage interface.
type Store struct {
	db *sql.DB
}

var _ storage.BountyStore = (*Store)(nil)
var _ storage.SubmissionStore = (*Store)(nil)
var _ storage.DisputeStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)
var _ storage.ReputationStore = (*Store)(nil)
var _ storage.VerificationStore = (*Store)(nil)
var _ storage.SettlementStore = (*Store)(nil)

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// querier abstracts *sql.DB and *sql.Tx so every statement can run either
// standalone or inside a settlement transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return data
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func fromNull(t sql.NullTime) time.Time {
	if t.Valid {
		return t.Time
	}
	return time.Time{}
}

// Bounties -----------------------------------------------------------------

const bountyColumns = `id, publisher_id, title, description, reward_amount, status,
	deadline, review_deadline, max_submissions, submission_count, criteria, tags,
	awarded_submission_id, created_at, updated_at`

func (s *Store) CreateBounty(ctx context.Context, b bounty.Bounty) (bounty.Bounty, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bounties (`+bountyColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		b.ID, b.PublisherID, b.Title, b.Description, b.RewardAmount, b.Status,
		b.Deadline, b.ReviewDeadline, b.MaxSubmissions, b.SubmissionCount,
		mustJSON(b.Criteria), mustJSON(b.Tags), b.AwardedSubmissionID,
		b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return bounty.Bounty{}, fmt.Errorf("insert bounty: %w", err)
	}
	return b, nil
}

func scanBounty(row interface{ Scan(...interface{}) error }) (bounty.Bounty, error) {
	var b bounty.Bounty
	var criteria, tags []byte
	err := row.Scan(&b.ID, &b.PublisherID, &b.Title, &b.Description, &b.RewardAmount,
		&b.Status, &b.Deadline, &b.ReviewDeadline, &b.MaxSubmissions, &b.SubmissionCount,
		&criteria, &tags, &b.AwardedSubmissionID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return bounty.Bounty{}, err
	}
	if err := json.Unmarshal(criteria, &b.Criteria); err != nil {
		return bounty.Bounty{}, fmt.Errorf("decode criteria: %w", err)
	}
	if err := json.Unmarshal(tags, &b.Tags); err != nil {
		return bounty.Bounty{}, fmt.Errorf("decode tags: %w", err)
	}
	return b, nil
}

func (s *Store) GetBounty(ctx context.Context, id string) (bounty.Bounty, error) {
	b, err := scanBounty(s.db.QueryRowContext(ctx,
		`SELECT `+bountyColumns+` FROM bounties WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return bounty.Bounty{}, fault.NotFound("bounty %s", id)
	}
	if err != nil {
		return bounty.Bounty{}, fmt.Errorf("get bounty: %w", err)
	}
	return b, nil
}

func (s *Store) ListBounties(ctx context.Context, publisherID string) ([]bounty.Bounty, error) {
	query := `SELECT ` + bountyColumns + ` FROM bounties`
	args := []interface{}{}
	if publisherID != "" {
		query += ` WHERE publisher_id = $1`
		args = append(args, publisherID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bounties: %w", err)
	}
	defer rows.Close()

	result := make([]bounty.Bounty, 0)
	for rows.Next() {
		b, err := scanBounty(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (s *Store) UpdateBountyStatus(ctx context.Context, change storage.BountyChange) (bounty.Bounty, error) {
	if err := applyBountyChange(ctx, s.db, change); err != nil {
		return bounty.Bounty{}, err
	}
	return s.GetBounty(ctx, change.ID)
}

func applyBountyChange(ctx context.Context, q querier, change storage.BountyChange) error {
	res, err := q.ExecContext(ctx, `
		UPDATE bounties
		SET status = $1,
		    awarded_submission_id = CASE WHEN $2 <> '' THEN $2 ELSE awarded_submission_id END,
		    updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		change.To, change.AwardedSubmissionID, change.ID, change.From)
	if err != nil {
		return fmt.Errorf("update bounty status: %w", err)
	}
	return guard(res, "bounty %s is not %s", change.ID, change.From)
}

func (s *Store) IncrementSubmissionCount(ctx context.Context, id string) (bounty.Bounty, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bounties
		SET submission_count = submission_count + 1, updated_at = NOW()
		WHERE id = $1 AND status = $2 AND submission_count < max_submissions`,
		id, bounty.StatusOpen)
	if err != nil {
		return bounty.Bounty{}, fmt.Errorf("increment submission count: %w", err)
	}
	if err := guard(res, "bounty %s is closed or at its submission limit", id); err != nil {
		return bounty.Bounty{}, err
	}
	return s.GetBounty(ctx, id)
}

func (s *Store) ListReviewOverdue(ctx context.Context, now time.Time) ([]bounty.Bounty, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bountyColumns+` FROM bounties
		WHERE status = $1 AND review_deadline < $2
		ORDER BY review_deadline`,
		bounty.StatusOpen, now)
	if err != nil {
		return nil, fmt.Errorf("list review overdue: %w", err)
	}
	defer rows.Close()

	result := make([]bounty.Bounty, 0)
	for rows.Next() {
		b, err := scanBounty(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (s *Store) CreateBid(ctx context.Context, b bounty.Bid) (bounty.Bid, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = bounty.BidPending
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bids (id, bounty_id, agent_id, status, note, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		b.ID, b.BountyID, b.AgentID, b.Status, b.Note, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return bounty.Bid{}, fault.Conflict("agent %s already bid on bounty %s", b.AgentID, b.BountyID)
		}
		return bounty.Bid{}, fmt.Errorf("insert bid: %w", err)
	}
	return b, nil
}

func (s *Store) ListBids(ctx context.Context, bountyID string) ([]bounty.Bid, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bounty_id, agent_id, status, note, created_at, updated_at
		FROM bids WHERE bounty_id = $1 ORDER BY created_at`, bountyID)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	defer rows.Close()

	result := make([]bounty.Bid, 0)
	for rows.Next() {
		var b bounty.Bid
		if err := rows.Scan(&b.ID, &b.BountyID, &b.AgentID, &b.Status, &b.Note,
			&b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (s *Store) RejectPendingBids(ctx context.Context, bountyID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bids SET status = $1, updated_at = NOW()
		WHERE bounty_id = $2 AND status = $3`,
		bounty.BidRejected, bountyID, bounty.BidPending)
	if err != nil {
		return 0, fmt.Errorf("reject pending bids: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Submissions --------------------------------------------------------------

const submissionColumns = `id, bounty_id, agent_id, content, status, quality_score,
	review_notes, criterion_scores, rejection_reason, dispute_deadline, created_at, updated_at`

func (s *Store) CreateSubmission(ctx context.Context, sub submission.Submission) (submission.Submission, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Status == "" {
		sub.Status = submission.StatusSubmitted
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		sub.ID, sub.BountyID, sub.AgentID, sub.Content, sub.Status, sub.QualityScore,
		sub.ReviewNotes, mustJSON(sub.CriterionScores), sub.RejectionReason,
		nullTime(sub.DisputeDeadline), sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return submission.Submission{}, fault.Conflict("agent %s already submitted to bounty %s", sub.AgentID, sub.BountyID)
		}
		return submission.Submission{}, fmt.Errorf("insert submission: %w", err)
	}
	return sub, nil
}

func scanSubmission(row interface{ Scan(...interface{}) error }) (submission.Submission, error) {
	var sub submission.Submission
	var scores []byte
	var disputeDeadline sql.NullTime
	err := row.Scan(&sub.ID, &sub.BountyID, &sub.AgentID, &sub.Content, &sub.Status,
		&sub.QualityScore, &sub.ReviewNotes, &scores, &sub.RejectionReason,
		&disputeDeadline, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return submission.Submission{}, err
	}
	if err := json.Unmarshal(scores, &sub.CriterionScores); err != nil {
		return submission.Submission{}, fmt.Errorf("decode criterion scores: %w", err)
	}
	sub.DisputeDeadline = fromNull(disputeDeadline)
	return sub, nil
}

func (s *Store) GetSubmission(ctx context.Context, id string) (submission.Submission, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return submission.Submission{}, fault.NotFound("submission %s", id)
	}
	if err != nil {
		return submission.Submission{}, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

func (s *Store) ListSubmissions(ctx context.Context, bountyID string) ([]submission.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions`
	args := []interface{}{}
	if bountyID != "" {
		query += ` WHERE bounty_id = $1`
		args = append(args, bountyID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	result := make([]submission.Submission, 0)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

func (s *Store) UpdateSubmissionStatus(ctx context.Context, change storage.SubmissionChange) (submission.Submission, error) {
	if err := applySubmissionChange(ctx, s.db, change); err != nil {
		return submission.Submission{}, err
	}
	return s.GetSubmission(ctx, change.ID)
}

func applySubmissionChange(ctx context.Context, q querier, change storage.SubmissionChange) error {
	res, err := q.ExecContext(ctx, `
		UPDATE submissions
		SET status = $1,
		    quality_score = CASE WHEN $2 <> 0 THEN $2 ELSE quality_score END,
		    review_notes = CASE WHEN $3 <> '' THEN $3 ELSE review_notes END,
		    criterion_scores = CASE WHEN $4::jsonb <> 'null' THEN $4::jsonb ELSE criterion_scores END,
		    rejection_reason = CASE WHEN $5 <> '' THEN $5 ELSE rejection_reason END,
		    dispute_deadline = COALESCE($6, dispute_deadline),
		    updated_at = NOW()
		WHERE id = $7 AND status = $8`,
		change.To, change.QualityScore, change.ReviewNotes,
		scoresOrNull(change.CriterionScores), change.RejectionReason,
		nullTime(change.DisputeDeadline), change.ID, change.From)
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	return guard(res, "submission %s is not %s", change.ID, change.From)
}

func scoresOrNull(scores []int) []byte {
	if len(scores) == 0 {
		return []byte("null")
	}
	return mustJSON(scores)
}

// Disputes -----------------------------------------------------------------

const disputeColumns = `id, submission_id, bounty_id, agent_id, publisher_id, status,
	grounds, agent_statement, publisher_response, resolution_amount, resolution_split_bps,
	resolution_notes, resolved_by, filed_at, publisher_deadline, resolution_deadline,
	responded_at, resolved_at, created_at, updated_at`

func (s *Store) CreateDispute(ctx context.Context, d dispute.Dispute) (dispute.Dispute, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO disputes (`+disputeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		d.ID, d.SubmissionID, d.BountyID, d.AgentID, d.PublisherID, d.Status,
		mustJSON(d.Grounds), d.AgentStatement, d.PublisherResponse,
		d.ResolutionAmount, d.ResolutionSplitBPS, d.ResolutionNotes, d.ResolvedBy,
		d.FiledAt, d.PublisherDeadline, nullTime(d.ResolutionDeadline),
		nullTime(d.RespondedAt), nullTime(d.ResolvedAt), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return dispute.Dispute{}, fault.Conflict("dispute already exists for submission %s", d.SubmissionID)
		}
		return dispute.Dispute{}, fmt.Errorf("insert dispute: %w", err)
	}
	return d, nil
}

func scanDispute(row interface{ Scan(...interface{}) error }) (dispute.Dispute, error) {
	var d dispute.Dispute
	var grounds []byte
	var resolutionDeadline, respondedAt, resolvedAt sql.NullTime
	err := row.Scan(&d.ID, &d.SubmissionID, &d.BountyID, &d.AgentID, &d.PublisherID,
		&d.Status, &grounds, &d.AgentStatement, &d.PublisherResponse,
		&d.ResolutionAmount, &d.ResolutionSplitBPS, &d.ResolutionNotes, &d.ResolvedBy,
		&d.FiledAt, &d.PublisherDeadline, &resolutionDeadline, &respondedAt,
		&resolvedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return dispute.Dispute{}, err
	}
	if err := json.Unmarshal(grounds, &d.Grounds); err != nil {
		return dispute.Dispute{}, fmt.Errorf("decode grounds: %w", err)
	}
	d.ResolutionDeadline = fromNull(resolutionDeadline)
	d.RespondedAt = fromNull(respondedAt)
	d.ResolvedAt = fromNull(resolvedAt)
	return d, nil
}

func (s *Store) GetDispute(ctx context.Context, id string) (dispute.Dispute, error) {
	d, err := scanDispute(s.db.QueryRowContext(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return dispute.Dispute{}, fault.NotFound("dispute %s", id)
	}
	if err != nil {
		return dispute.Dispute{}, fmt.Errorf("get dispute: %w", err)
	}
	return d, nil
}

func (s *Store) GetDisputeBySubmission(ctx context.Context, submissionID string) (dispute.Dispute, error) {
	d, err := scanDispute(s.db.QueryRowContext(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE submission_id = $1`, submissionID))
	if errors.Is(err, sql.ErrNoRows) {
		return dispute.Dispute{}, fault.NotFound("dispute for submission %s", submissionID)
	}
	if err != nil {
		return dispute.Dispute{}, fmt.Errorf("get dispute by submission: %w", err)
	}
	return d, nil
}

func (s *Store) ListDisputes(ctx context.Context, bountyID string) ([]dispute.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes`
	args := []interface{}{}
	if bountyID != "" {
		query += ` WHERE bounty_id = $1`
		args = append(args, bountyID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	defer rows.Close()

	result := make([]dispute.Dispute, 0)
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (s *Store) UpdateDisputeStatus(ctx context.Context, change storage.DisputeChange) (dispute.Dispute, error) {
	if err := applyDisputeChange(ctx, s.db, change); err != nil {
		return dispute.Dispute{}, err
	}
	return s.GetDispute(ctx, change.ID)
}

func applyDisputeChange(ctx context.Context, q querier, change storage.DisputeChange) error {
	res, err := q.ExecContext(ctx, `
		UPDATE disputes
		SET status = $1,
		    publisher_response = CASE WHEN $2 <> '' THEN $2 ELSE publisher_response END,
		    responded_at = COALESCE($3, responded_at),
		    resolution_deadline = COALESCE($4, resolution_deadline),
		    resolution_amount = CASE WHEN $5 <> 0 THEN $5 ELSE resolution_amount END,
		    resolution_split_bps = CASE WHEN $6 <> 0 THEN $6 ELSE resolution_split_bps END,
		    resolution_notes = CASE WHEN $7 <> '' THEN $7 ELSE resolution_notes END,
		    resolved_by = CASE WHEN $8 <> '' THEN $8 ELSE resolved_by END,
		    resolved_at = COALESCE($9, resolved_at),
		    updated_at = NOW()
		WHERE id = $10 AND status = $11`,
		change.To, change.PublisherResponse, nullTime(change.RespondedAt),
		nullTime(change.ResolutionDeadline), change.ResolutionAmount,
		change.ResolutionSplitBPS, change.ResolutionNotes, change.ResolvedBy,
		nullTime(change.ResolvedAt), change.ID, change.From)
	if err != nil {
		return fmt.Errorf("update dispute status: %w", err)
	}
	return guard(res, "dispute %s is not %s", change.ID, change.From)
}

func (s *Store) ListOverdueDisputes(ctx context.Context, now time.Time) ([]dispute.Dispute, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+disputeColumns+` FROM disputes
		WHERE (status = $1 AND publisher_deadline < $2)
		   OR (status IN ($3, $4) AND resolution_deadline IS NOT NULL AND resolution_deadline < $2)
		ORDER BY created_at`,
		dispute.StatusFiled, now, dispute.StatusResponded, dispute.StatusUnderReview)
	if err != nil {
		return nil, fmt.Errorf("list overdue disputes: %w", err)
	}
	defer rows.Close()

	result := make([]dispute.Dispute, 0)
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (s *Store) AppendEvidence(ctx context.Context, ev dispute.Evidence) (dispute.Evidence, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.SubmittedAt.IsZero() {
		ev.SubmittedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispute_evidence (id, dispute_id, submitted_by, party, artifact_type,
			content, criterion_index, submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		ev.ID, ev.DisputeID, ev.SubmittedBy, ev.Party, ev.ArtifactType,
		ev.Content, ev.CriterionIndex, ev.SubmittedAt)
	if err != nil {
		return dispute.Evidence{}, fmt.Errorf("insert evidence: %w", err)
	}
	return ev, nil
}

func (s *Store) ListEvidence(ctx context.Context, disputeID string) ([]dispute.Evidence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dispute_id, submitted_by, party, artifact_type, content,
			criterion_index, submitted_at
		FROM dispute_evidence WHERE dispute_id = $1 ORDER BY submitted_at`, disputeID)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	defer rows.Close()

	result := make([]dispute.Evidence, 0)
	for rows.Next() {
		var ev dispute.Evidence
		if err := rows.Scan(&ev.ID, &ev.DisputeID, &ev.SubmittedBy, &ev.Party,
			&ev.ArtifactType, &ev.Content, &ev.CriterionIndex, &ev.SubmittedAt); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}

// Ledger -------------------------------------------------------------------

func (s *Store) CreateTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	return createTransaction(ctx, s.db, tx)
}

func createTransaction(ctx context.Context, q querier, tx ledger.Transaction) (ledger.Transaction, error) {
	if tx.Amount < 0 {
		return ledger.Transaction{}, fault.Validation("transaction amount must be non-negative")
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, agent_id, bounty_id, dispute_id,
			amount, type, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		tx.ID, tx.UserID, tx.AgentID, tx.BountyID, tx.DisputeID,
		tx.Amount, tx.Type, tx.Description, tx.CreatedAt)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, bountyID string) ([]ledger.Transaction, error) {
	query := `SELECT id, user_id, agent_id, bounty_id, dispute_id, amount, type,
		description, created_at FROM transactions`
	args := []interface{}{}
	if bountyID != "" {
		query += ` WHERE bounty_id = $1`
		args = append(args, bountyID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	result := make([]ledger.Transaction, 0)
	for rows.Next() {
		var tx ledger.Transaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.AgentID, &tx.BountyID, &tx.DisputeID,
			&tx.Amount, &tx.Type, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

func (s *Store) GetWallet(ctx context.Context, ownerID string) (ledger.Wallet, error) {
	var w ledger.Wallet
	err := s.db.QueryRowContext(ctx, `
		SELECT owner_id, balance, tasks_completed, tasks_submitted, updated_at
		FROM wallets WHERE owner_id = $1`, ownerID).
		Scan(&w.OwnerID, &w.Balance, &w.TasksCompleted, &w.TasksSubmitted, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Wallet{OwnerID: ownerID}, nil
	}
	if err != nil {
		return ledger.Wallet{}, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

func (s *Store) CreditWallet(ctx context.Context, ownerID string, amount int64) (ledger.Wallet, error) {
	if err := creditWallet(ctx, s.db, ownerID, amount, 0); err != nil {
		return ledger.Wallet{}, err
	}
	return s.GetWallet(ctx, ownerID)
}

func creditWallet(ctx context.Context, q querier, ownerID string, amount int64, tasksCompleted int) error {
	if amount < 0 {
		return fault.Validation("credit amount must be non-negative")
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO wallets (owner_id, balance, tasks_completed, tasks_submitted, updated_at)
		VALUES ($1, $2, $3, 0, NOW())
		ON CONFLICT (owner_id) DO UPDATE
		SET balance = wallets.balance + EXCLUDED.balance,
		    tasks_completed = wallets.tasks_completed + EXCLUDED.tasks_completed,
		    updated_at = NOW()`,
		ownerID, amount, tasksCompleted)
	if err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	return nil
}

func (s *Store) DebitWallet(ctx context.Context, ownerID string, amount int64) (ledger.Wallet, error) {
	if amount < 0 {
		return ledger.Wallet{}, fault.Validation("debit amount must be non-negative")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE wallets SET balance = balance - $1, updated_at = NOW()
		WHERE owner_id = $2 AND balance >= $1`, amount, ownerID)
	if err != nil {
		return ledger.Wallet{}, fmt.Errorf("debit wallet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ledger.Wallet{}, err
	}
	if n == 0 {
		return ledger.Wallet{}, fault.Validation("insufficient balance for %s", ownerID)
	}
	return s.GetWallet(ctx, ownerID)
}

func (s *Store) IncrementTasksSubmitted(ctx context.Context, ownerID string) (ledger.Wallet, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (owner_id, balance, tasks_completed, tasks_submitted, updated_at)
		VALUES ($1, 0, 0, 1, NOW())
		ON CONFLICT (owner_id) DO UPDATE
		SET tasks_submitted = wallets.tasks_submitted + 1, updated_at = NOW()`, ownerID)
	if err != nil {
		return ledger.Wallet{}, fmt.Errorf("increment tasks submitted: %w", err)
	}
	return s.GetWallet(ctx, ownerID)
}

// Reputation ---------------------------------------------------------------

func (s *Store) GetSignals(ctx context.Context, publisherID string) (reputation.Signals, error) {
	var sig reputation.Signals
	err := s.db.QueryRowContext(ctx, `
		SELECT publisher_id, bounties_posted, bounties_awarded, bounties_expired,
			total_rejections, disputes_received, disputes_lost, reviews_on_time,
			reviews_total, updated_at
		FROM reputation_signals WHERE publisher_id = $1`, publisherID).
		Scan(&sig.PublisherID, &sig.BountiesPosted, &sig.BountiesAwarded,
			&sig.BountiesExpired, &sig.TotalRejections, &sig.DisputesReceived,
			&sig.DisputesLost, &sig.ReviewsOnTime, &sig.ReviewsTotal, &sig.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return reputation.Signals{PublisherID: publisherID}, nil
	}
	if err != nil {
		return reputation.Signals{}, fmt.Errorf("get signals: %w", err)
	}
	return sig, nil
}

func (s *Store) AddSignals(ctx context.Context, publisherID string, delta reputation.Signals) (reputation.Signals, error) {
	if err := addSignals(ctx, s.db, publisherID, delta); err != nil {
		return reputation.Signals{}, err
	}
	return s.GetSignals(ctx, publisherID)
}

func addSignals(ctx context.Context, q querier, publisherID string, delta reputation.Signals) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO reputation_signals (publisher_id, bounties_posted, bounties_awarded,
			bounties_expired, total_rejections, disputes_received, disputes_lost,
			reviews_on_time, reviews_total, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
		ON CONFLICT (publisher_id) DO UPDATE
		SET bounties_posted = reputation_signals.bounties_posted + EXCLUDED.bounties_posted,
		    bounties_awarded = reputation_signals.bounties_awarded + EXCLUDED.bounties_awarded,
		    bounties_expired = reputation_signals.bounties_expired + EXCLUDED.bounties_expired,
		    total_rejections = reputation_signals.total_rejections + EXCLUDED.total_rejections,
		    disputes_received = reputation_signals.disputes_received + EXCLUDED.disputes_received,
		    disputes_lost = reputation_signals.disputes_lost + EXCLUDED.disputes_lost,
		    reviews_on_time = reputation_signals.reviews_on_time + EXCLUDED.reviews_on_time,
		    reviews_total = reputation_signals.reviews_total + EXCLUDED.reviews_total,
		    updated_at = NOW()`,
		publisherID, delta.BountiesPosted, delta.BountiesAwarded, delta.BountiesExpired,
		delta.TotalRejections, delta.DisputesReceived, delta.DisputesLost,
		delta.ReviewsOnTime, delta.ReviewsTotal)
	if err != nil {
		return fmt.Errorf("add signals: %w", err)
	}
	return nil
}

// Verification -------------------------------------------------------------

func (s *Store) CreateTestCase(ctx context.Context, tc verification.TestCase) (verification.TestCase, error) {
	if tc.ID == "" {
		tc.ID = uuid.NewString()
	}
	if tc.CreatedAt.IsZero() {
		tc.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO test_cases (id, bounty_id, stdin, expected_output, public,
			time_limit_ms, memory_limit_kb, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		tc.ID, tc.BountyID, tc.Stdin, tc.ExpectedOutput, tc.Public,
		tc.TimeLimitMS, tc.MemoryLimitKB, tc.CreatedAt)
	if err != nil {
		return verification.TestCase{}, fmt.Errorf("insert test case: %w", err)
	}
	return tc, nil
}

func (s *Store) ListTestCases(ctx context.Context, bountyID string) ([]verification.TestCase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bounty_id, stdin, expected_output, public, time_limit_ms,
			memory_limit_kb, created_at
		FROM test_cases WHERE bounty_id = $1 ORDER BY created_at`, bountyID)
	if err != nil {
		return nil, fmt.Errorf("list test cases: %w", err)
	}
	defer rows.Close()

	result := make([]verification.TestCase, 0)
	for rows.Next() {
		var tc verification.TestCase
		if err := rows.Scan(&tc.ID, &tc.BountyID, &tc.Stdin, &tc.ExpectedOutput,
			&tc.Public, &tc.TimeLimitMS, &tc.MemoryLimitKB, &tc.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, tc)
	}
	return result, rows.Err()
}

func (s *Store) SaveResult(ctx context.Context, res verification.Result) (verification.Result, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_results (submission_id, all_passed, passed_count,
			total_count, cases, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (submission_id) DO UPDATE
		SET all_passed = EXCLUDED.all_passed,
		    passed_count = EXCLUDED.passed_count,
		    total_count = EXCLUDED.total_count,
		    cases = EXCLUDED.cases,
		    completed_at = EXCLUDED.completed_at`,
		res.SubmissionID, res.AllPassed, res.PassedCount, res.TotalCount,
		mustJSON(res.Cases), res.CompletedAt)
	if err != nil {
		return verification.Result{}, fmt.Errorf("save result: %w", err)
	}
	return res, nil
}

func (s *Store) GetResult(ctx context.Context, submissionID string) (verification.Result, error) {
	var res verification.Result
	var cases []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT submission_id, all_passed, passed_count, total_count, cases, completed_at
		FROM verification_results WHERE submission_id = $1`, submissionID).
		Scan(&res.SubmissionID, &res.AllPassed, &res.PassedCount, &res.TotalCount,
			&cases, &res.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return verification.Result{}, fault.NotFound("verification result for submission %s", submissionID)
	}
	if err != nil {
		return verification.Result{}, fmt.Errorf("get result: %w", err)
	}
	if err := json.Unmarshal(cases, &res.Cases); err != nil {
		return verification.Result{}, fmt.Errorf("decode cases: %w", err)
	}
	return res, nil
}

// Settlement ---------------------------------------------------------------

// ApplySettlement runs the whole unit inside one transaction. Guarded writes
// that miss abort the transaction with fault.ErrConflict.
func (s *Store) ApplySettlement(ctx context.Context, unit storage.Settlement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settlement: %w", err)
	}
	defer tx.Rollback()

	for _, record := range unit.Transactions {
		if _, err := createTransaction(ctx, tx, record); err != nil {
			return err
		}
	}
	for _, credit := range unit.Credits {
		if err := creditWallet(ctx, tx, credit.OwnerID, credit.Amount, credit.TasksCompleted); err != nil {
			return err
		}
	}
	if unit.Bounty != nil {
		if err := applyBountyChange(ctx, tx, *unit.Bounty); err != nil {
			return err
		}
	}
	for _, change := range unit.Submissions {
		if err := applySubmissionChange(ctx, tx, change); err != nil {
			return err
		}
	}
	if unit.Dispute != nil {
		if err := applyDisputeChange(ctx, tx, *unit.Dispute); err != nil {
			return err
		}
	}
	for publisherID, delta := range unit.Reputation {
		if err := addSignals(ctx, tx, publisherID, delta); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settlement: %w", err)
	}
	return nil
}

// Helpers ------------------------------------------------------------------

func guard(res sql.Result, format string, args ...interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fault.Conflict(format, args...)
	}
	return nil
}

// isUniqueViolation matches Postgres error code 23505.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "duplicate key value")
}
