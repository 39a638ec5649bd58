// Package storage defines the persistence interfaces of the marketplace core.
// Implementations must translate whatever the physical store returns into the
// canonical domain shapes; services never see raw rows.
package storage

import (
	"context"
	"time"

	"github.com/taskforge/platform/internal/app/domain/bounty"
	"github.com/taskforge/platform/internal/app/domain/dispute"
	"github.com/taskforge/platform/internal/app/domain/ledger"
	"github.com/taskforge/platform/internal/app/domain/reputation"
	"github.com/taskforge/platform/internal/app/domain/submission"
	"github.com/taskforge/platform/internal/app/domain/verification"
)

// BountyStore persists bounties and bids.
type BountyStore interface {
	CreateBounty(ctx context.Context, b bounty.Bounty) (bounty.Bounty, error)
	GetBounty(ctx context.Context, id string) (bounty.Bounty, error)
	ListBounties(ctx context.Context, publisherID string) ([]bounty.Bounty, error)
	// UpdateBountyStatus performs a conditional write guarded on the current
	// status. A guard miss returns fault.ErrConflict and writes nothing.
	UpdateBountyStatus(ctx context.Context, change BountyChange) (bounty.Bounty, error)
	// IncrementSubmissionCount bumps the counter while the bounty is open and
	// under its max; fault.ErrConflict otherwise.
	IncrementSubmissionCount(ctx context.Context, id string) (bounty.Bounty, error)
	// ListReviewOverdue returns open bounties whose review deadline has passed.
	ListReviewOverdue(ctx context.Context, now time.Time) ([]bounty.Bounty, error)

	CreateBid(ctx context.Context, b bounty.Bid) (bounty.Bid, error)
	ListBids(ctx context.Context, bountyID string) ([]bounty.Bid, error)
	RejectPendingBids(ctx context.Context, bountyID string) (int, error)
}

// SubmissionStore persists submissions.
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, sub submission.Submission) (submission.Submission, error)
	GetSubmission(ctx context.Context, id string) (submission.Submission, error)
	ListSubmissions(ctx context.Context, bountyID string) ([]submission.Submission, error)
	// UpdateSubmissionStatus is a status-guarded conditional write carrying the
	// fields that change with the edge (score, rejection reason, deadline).
	UpdateSubmissionStatus(ctx context.Context, change SubmissionChange) (submission.Submission, error)
}

// DisputeStore persists disputes and their evidence trail.
type DisputeStore interface {
	CreateDispute(ctx context.Context, d dispute.Dispute) (dispute.Dispute, error)
	GetDispute(ctx context.Context, id string) (dispute.Dispute, error)
	GetDisputeBySubmission(ctx context.Context, submissionID string) (dispute.Dispute, error)
	ListDisputes(ctx context.Context, bountyID string) ([]dispute.Dispute, error)
	// UpdateDisputeStatus is a status-guarded conditional write.
	UpdateDisputeStatus(ctx context.Context, change DisputeChange) (dispute.Dispute, error)
	// ListOverdueDisputes returns filed disputes past their publisher deadline
	// and responded/under-review disputes past their resolution deadline.
	ListOverdueDisputes(ctx context.Context, now time.Time) ([]dispute.Dispute, error)

	AppendEvidence(ctx context.Context, ev dispute.Evidence) (dispute.Evidence, error)
	ListEvidence(ctx context.Context, disputeID string) ([]dispute.Evidence, error)
}

// LedgerStore persists transactions and wallets. Transactions are append-only.
type LedgerStore interface {
	CreateTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error)
	ListTransactions(ctx context.Context, bountyID string) ([]ledger.Transaction, error)
	GetWallet(ctx context.Context, ownerID string) (ledger.Wallet, error)
	// CreditWallet adds amount to the owner's balance, creating the wallet on
	// first use.
	CreditWallet(ctx context.Context, ownerID string, amount int64) (ledger.Wallet, error)
	// DebitWallet subtracts amount; fault.ErrValidation when the balance would
	// go negative.
	DebitWallet(ctx context.Context, ownerID string, amount int64) (ledger.Wallet, error)
	// IncrementTasksSubmitted bumps the agent's submission counter.
	IncrementTasksSubmitted(ctx context.Context, ownerID string) (ledger.Wallet, error)
}

// ReputationStore persists cumulative publisher signals.
type ReputationStore interface {
	GetSignals(ctx context.Context, publisherID string) (reputation.Signals, error)
	// AddSignals accumulates the counters of delta onto the stored record,
	// creating it on first use.
	AddSignals(ctx context.Context, publisherID string, delta reputation.Signals) (reputation.Signals, error)
}

// VerificationStore persists test cases and judged results.
type VerificationStore interface {
	CreateTestCase(ctx context.Context, tc verification.TestCase) (verification.TestCase, error)
	ListTestCases(ctx context.Context, bountyID string) ([]verification.TestCase, error)
	SaveResult(ctx context.Context, res verification.Result) (verification.Result, error)
	GetResult(ctx context.Context, submissionID string) (verification.Result, error)
}

// SettlementStore applies the atomic write unit of one settlement event.
type SettlementStore interface {
	// ApplySettlement writes everything in s or nothing. Every status change
	// inside s is guarded on its expected current value; any guard miss aborts
	// the whole unit with fault.ErrConflict.
	ApplySettlement(ctx context.Context, s Settlement) error
}

// BountyChange is one guarded bounty status edge.
type BountyChange struct {
	ID                  string
	From                bounty.Status
	To                  bounty.Status
	AwardedSubmissionID string
}

// SubmissionChange is one guarded submission status edge plus the fields that
// travel with it.
type SubmissionChange struct {
	ID              string
	From            submission.Status
	To              submission.Status
	QualityScore    int
	ReviewNotes     string
	CriterionScores []int
	RejectionReason string
	DisputeDeadline time.Time
}

// DisputeChange is one guarded dispute status edge plus the fields that travel
// with it.
type DisputeChange struct {
	ID                 string
	From               dispute.Status
	To                 dispute.Status
	PublisherResponse  string
	RespondedAt        time.Time
	ResolutionDeadline time.Time
	ResolutionAmount   int64
	ResolutionSplitBPS int
	ResolutionNotes    string
	ResolvedBy         string
	ResolvedAt         time.Time
}

// WalletCredit is one wallet mutation inside a settlement.
type WalletCredit struct {
	OwnerID        string
	Amount         int64
	TasksCompleted int
}

// Settlement is the all-or-nothing write unit for one award, refund or dispute
// resolution. Only the populated members are written.
type Settlement struct {
	Transactions []ledger.Transaction
	Credits      []WalletCredit
	Bounty       *BountyChange
	Submissions  []SubmissionChange
	Dispute      *DisputeChange
	// Reputation accumulates signal deltas keyed by publisher.
	Reputation map[string]reputation.Signals
}
