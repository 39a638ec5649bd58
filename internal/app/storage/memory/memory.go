// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/taskforge/platform/internal/app/domain/bounty"
	"github.com/taskforge/platform/internal/app/domain/dispute"
	"github.com/taskforge/platform/internal/app/domain/fault"
	"github.com/taskforge/platform/internal/app/domain/ledger"
	"github.com/taskforge/platform/internal/app/domain/reputation"
	"github.com/taskforge/platform/internal/app/domain/submission"
	"github.com/taskforge/platform/internal/app/domain/verification"
	"github.com/taskforge/platform/internal/app/storage"
)

// Store is an in-memory implementation of every storage interface.
type Store struct {
	mu     sync.RWMutex
	nextID int64

	bounties      map[string]bounty.Bounty
	bids          map[string][]bounty.Bid // bountyID -> bids
	submissions   map[string]submission.Submission
	disputes      map[string]dispute.Dispute
	disputesBySub map[string]string // submissionID -> disputeID
	evidence      map[string][]dispute.Evidence
	transactions  map[string]ledger.Transaction
	txOrder       []string
	wallets       map[string]ledger.Wallet
	signals       map[string]reputation.Signals
	testCases     map[string][]verification.TestCase
	results       map[string]verification.Result
}

var _ storage.BountyStore = (*Store)(nil)
var _ storage.SubmissionStore = (*Store)(nil)
var _ storage.DisputeStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)
var _ storage.ReputationStore = (*Store)(nil)
var _ storage.VerificationStore = (*Store)(nil)
var _ storage.SettlementStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		nextID:        1,
		bounties:      make(map[string]bounty.Bounty),
		bids:          make(map[string][]bounty.Bid),
		submissions:   make(map[string]submission.Submission),
		disputes:      make(map[string]dispute.Dispute),
		disputesBySub: make(map[string]string),
		evidence:      make(map[string][]dispute.Evidence),
		transactions:  make(map[string]ledger.Transaction),
		wallets:       make(map[string]ledger.Wallet),
		signals:       make(map[string]reputation.Signals),
		testCases:     make(map[string][]verification.TestCase),
		results:       make(map[string]verification.Result),
	}
}

func (m *Store) nextIDLocked() string {
	id := m.nextID
	m.nextID++
	return fmt.Sprintf("%d", id)
}

// BountyStore implementation ---------------------------------------------------

func (m *Store) CreateBounty(_ context.Context, b bounty.Bounty) (bounty.Bounty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b.ID == "" {
		b.ID = m.nextIDLocked()
	} else if _, exists := m.bounties[b.ID]; exists {
		return bounty.Bounty{}, fault.Conflict("bounty %s already exists", b.ID)
	}

	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Criteria = append([]bounty.Criterion(nil), b.Criteria...)
	b.Tags = append([]string(nil), b.Tags...)

	m.bounties[b.ID] = b
	return cloneBounty(b), nil
}

func (m *Store) GetBounty(_ context.Context, id string) (bounty.Bounty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bounties[id]
	if !ok {
		return bounty.Bounty{}, fault.NotFound("bounty %s", id)
	}
	return cloneBounty(b), nil
}

func (m *Store) ListBounties(_ context.Context, publisherID string) ([]bounty.Bounty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]bounty.Bounty, 0)
	for _, b := range m.bounties {
		if publisherID == "" || b.PublisherID == publisherID {
			result = append(result, cloneBounty(b))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Store) UpdateBountyStatus(_ context.Context, change storage.BountyChange) (bounty.Bounty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyBountyChangeLocked(change)
}

func (m *Store) applyBountyChangeLocked(change storage.BountyChange) (bounty.Bounty, error) {
	b, ok := m.bounties[change.ID]
	if !ok {
		return bounty.Bounty{}, fault.NotFound("bounty %s", change.ID)
	}
	if b.Status != change.From {
		return bounty.Bounty{}, fault.Conflict("bounty %s is %s, expected %s", change.ID, b.Status, change.From)
	}

	b.Status = change.To
	if change.AwardedSubmissionID != "" {
		b.AwardedSubmissionID = change.AwardedSubmissionID
	}
	b.UpdatedAt = time.Now().UTC()
	m.bounties[b.ID] = b
	return cloneBounty(b), nil
}

func (m *Store) IncrementSubmissionCount(_ context.Context, id string) (bounty.Bounty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bounties[id]
	if !ok {
		return bounty.Bounty{}, fault.NotFound("bounty %s", id)
	}
	if b.Status != bounty.StatusOpen {
		return bounty.Bounty{}, fault.Conflict("bounty %s is %s, expected open", id, b.Status)
	}
	if b.MaxSubmissions > 0 && b.SubmissionCount >= b.MaxSubmissions {
		return bounty.Bounty{}, fault.Conflict("bounty %s submission limit reached", id)
	}

	b.SubmissionCount++
	b.UpdatedAt = time.Now().UTC()
	m.bounties[b.ID] = b
	return cloneBounty(b), nil
}

func (m *Store) ListReviewOverdue(_ context.Context, now time.Time) ([]bounty.Bounty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]bounty.Bounty, 0)
	for _, b := range m.bounties {
		if b.Status == bounty.StatusOpen && b.ReviewDeadline.Before(now) {
			result = append(result, cloneBounty(b))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Store) CreateBid(_ context.Context, b bounty.Bid) (bounty.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.bids[b.BountyID] {
		if existing.AgentID == b.AgentID {
			return bounty.Bid{}, fault.Conflict("agent %s already bid on bounty %s", b.AgentID, b.BountyID)
		}
	}

	if b.ID == "" {
		b.ID = m.nextIDLocked()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	if b.Status == "" {
		b.Status = bounty.BidPending
	}

	m.bids[b.BountyID] = append(m.bids[b.BountyID], b)
	return b, nil
}

func (m *Store) ListBids(_ context.Context, bountyID string) ([]bounty.Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]bounty.Bid(nil), m.bids[bountyID]...), nil
}

func (m *Store) RejectPendingBids(_ context.Context, bountyID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	list := m.bids[bountyID]
	for i, b := range list {
		if b.Status == bounty.BidPending {
			list[i].Status = bounty.BidRejected
			list[i].UpdatedAt = time.Now().UTC()
			count++
		}
	}
	m.bids[bountyID] = list
	return count, nil
}

// SubmissionStore implementation -----------------------------------------------

func (m *Store) CreateSubmission(_ context.Context, sub submission.Submission) (submission.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.submissions {
		if existing.BountyID == sub.BountyID && existing.AgentID == sub.AgentID {
			return submission.Submission{}, fault.Conflict("agent %s already submitted to bounty %s", sub.AgentID, sub.BountyID)
		}
	}

	if sub.ID == "" {
		sub.ID = m.nextIDLocked()
	} else if _, exists := m.submissions[sub.ID]; exists {
		return submission.Submission{}, fault.Conflict("submission %s already exists", sub.ID)
	}

	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	if sub.Status == "" {
		sub.Status = submission.StatusSubmitted
	}
	sub.CriterionScores = append([]int(nil), sub.CriterionScores...)

	m.submissions[sub.ID] = sub
	return cloneSubmission(sub), nil
}

func (m *Store) GetSubmission(_ context.Context, id string) (submission.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.submissions[id]
	if !ok {
		return submission.Submission{}, fault.NotFound("submission %s", id)
	}
	return cloneSubmission(sub), nil
}

func (m *Store) ListSubmissions(_ context.Context, bountyID string) ([]submission.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]submission.Submission, 0)
	for _, sub := range m.submissions {
		if bountyID == "" || sub.BountyID == bountyID {
			result = append(result, cloneSubmission(sub))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Store) UpdateSubmissionStatus(_ context.Context, change storage.SubmissionChange) (submission.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applySubmissionChangeLocked(change)
}

func (m *Store) applySubmissionChangeLocked(change storage.SubmissionChange) (submission.Submission, error) {
	sub, ok := m.submissions[change.ID]
	if !ok {
		return submission.Submission{}, fault.NotFound("submission %s", change.ID)
	}
	if sub.Status != change.From {
		return submission.Submission{}, fault.Conflict("submission %s is %s, expected %s", change.ID, sub.Status, change.From)
	}

	sub.Status = change.To
	if change.QualityScore != 0 {
		sub.QualityScore = change.QualityScore
	}
	if change.ReviewNotes != "" {
		sub.ReviewNotes = change.ReviewNotes
	}
	if len(change.CriterionScores) > 0 {
		sub.CriterionScores = append([]int(nil), change.CriterionScores...)
	}
	if change.RejectionReason != "" {
		sub.RejectionReason = change.RejectionReason
	}
	if !change.DisputeDeadline.IsZero() {
		sub.DisputeDeadline = change.DisputeDeadline
	}
	sub.UpdatedAt = time.Now().UTC()
	m.submissions[sub.ID] = sub
	return cloneSubmission(sub), nil
}

// DisputeStore implementation --------------------------------------------------

func (m *Store) CreateDispute(_ context.Context, d dispute.Dispute) (dispute.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.disputesBySub[d.SubmissionID]; exists {
		return dispute.Dispute{}, fault.Conflict("dispute already exists for submission %s", d.SubmissionID)
	}

	if d.ID == "" {
		d.ID = m.nextIDLocked()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	d.Grounds = append([]dispute.Grounds(nil), d.Grounds...)

	m.disputes[d.ID] = d
	m.disputesBySub[d.SubmissionID] = d.ID
	return cloneDispute(d), nil
}

func (m *Store) GetDispute(_ context.Context, id string) (dispute.Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.disputes[id]
	if !ok {
		return dispute.Dispute{}, fault.NotFound("dispute %s", id)
	}
	return cloneDispute(d), nil
}

func (m *Store) GetDisputeBySubmission(_ context.Context, submissionID string) (dispute.Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.disputesBySub[submissionID]
	if !ok {
		return dispute.Dispute{}, fault.NotFound("dispute for submission %s", submissionID)
	}
	return cloneDispute(m.disputes[id]), nil
}

func (m *Store) ListDisputes(_ context.Context, bountyID string) ([]dispute.Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]dispute.Dispute, 0)
	for _, d := range m.disputes {
		if bountyID == "" || d.BountyID == bountyID {
			result = append(result, cloneDispute(d))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Store) UpdateDisputeStatus(_ context.Context, change storage.DisputeChange) (dispute.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyDisputeChangeLocked(change)
}

func (m *Store) applyDisputeChangeLocked(change storage.DisputeChange) (dispute.Dispute, error) {
	d, ok := m.disputes[change.ID]
	if !ok {
		return dispute.Dispute{}, fault.NotFound("dispute %s", change.ID)
	}
	if d.Status != change.From {
		return dispute.Dispute{}, fault.Conflict("dispute %s is %s, expected %s", change.ID, d.Status, change.From)
	}

	d.Status = change.To
	if change.PublisherResponse != "" {
		d.PublisherResponse = change.PublisherResponse
	}
	if !change.RespondedAt.IsZero() {
		d.RespondedAt = change.RespondedAt
	}
	if !change.ResolutionDeadline.IsZero() {
		d.ResolutionDeadline = change.ResolutionDeadline
	}
	if change.ResolutionAmount != 0 {
		d.ResolutionAmount = change.ResolutionAmount
	}
	if change.ResolutionSplitBPS != 0 {
		d.ResolutionSplitBPS = change.ResolutionSplitBPS
	}
	if change.ResolutionNotes != "" {
		d.ResolutionNotes = change.ResolutionNotes
	}
	if change.ResolvedBy != "" {
		d.ResolvedBy = change.ResolvedBy
	}
	if !change.ResolvedAt.IsZero() {
		d.ResolvedAt = change.ResolvedAt
	}
	d.UpdatedAt = time.Now().UTC()
	m.disputes[d.ID] = d
	return cloneDispute(d), nil
}

func (m *Store) ListOverdueDisputes(_ context.Context, now time.Time) ([]dispute.Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]dispute.Dispute, 0)
	for _, d := range m.disputes {
		if overdue(d, now) {
			result = append(result, cloneDispute(d))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func overdue(d dispute.Dispute, now time.Time) bool {
	switch d.Status {
	case dispute.StatusFiled:
		return d.PublisherDeadline.Before(now)
	case dispute.StatusResponded, dispute.StatusUnderReview:
		return !d.ResolutionDeadline.IsZero() && d.ResolutionDeadline.Before(now)
	}
	return false
}

func (m *Store) AppendEvidence(_ context.Context, ev dispute.Evidence) (dispute.Evidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.disputes[ev.DisputeID]; !ok {
		return dispute.Evidence{}, fault.NotFound("dispute %s", ev.DisputeID)
	}
	if ev.ID == "" {
		ev.ID = m.nextIDLocked()
	}
	if ev.SubmittedAt.IsZero() {
		ev.SubmittedAt = time.Now().UTC()
	}
	m.evidence[ev.DisputeID] = append(m.evidence[ev.DisputeID], ev)
	return ev, nil
}

func (m *Store) ListEvidence(_ context.Context, disputeID string) ([]dispute.Evidence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]dispute.Evidence(nil), m.evidence[disputeID]...), nil
}

// LedgerStore implementation ---------------------------------------------------

func (m *Store) CreateTransaction(_ context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createTransactionLocked(tx)
}

func (m *Store) createTransactionLocked(tx ledger.Transaction) (ledger.Transaction, error) {
	if tx.Amount < 0 {
		return ledger.Transaction{}, fault.Validation("transaction amount must be non-negative")
	}
	if tx.ID == "" {
		tx.ID = m.nextIDLocked()
	} else if _, exists := m.transactions[tx.ID]; exists {
		return ledger.Transaction{}, fault.Conflict("transaction %s already exists", tx.ID)
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	m.transactions[tx.ID] = tx
	m.txOrder = append(m.txOrder, tx.ID)
	return tx, nil
}

func (m *Store) ListTransactions(_ context.Context, bountyID string) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Transaction, 0)
	for _, id := range m.txOrder {
		tx := m.transactions[id]
		if bountyID == "" || tx.BountyID == bountyID {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (m *Store) GetWallet(_ context.Context, ownerID string) (ledger.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.wallets[ownerID]
	if !ok {
		return ledger.Wallet{OwnerID: ownerID}, nil
	}
	return w, nil
}

func (m *Store) CreditWallet(_ context.Context, ownerID string, amount int64) (ledger.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creditWalletLocked(ownerID, amount, 0)
}

func (m *Store) creditWalletLocked(ownerID string, amount int64, tasksCompleted int) (ledger.Wallet, error) {
	if amount < 0 {
		return ledger.Wallet{}, fault.Validation("credit amount must be non-negative")
	}
	w := m.wallets[ownerID]
	w.OwnerID = ownerID
	w.Balance += amount
	w.TasksCompleted += tasksCompleted
	w.UpdatedAt = time.Now().UTC()
	m.wallets[ownerID] = w
	return w, nil
}

func (m *Store) DebitWallet(_ context.Context, ownerID string, amount int64) (ledger.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount < 0 {
		return ledger.Wallet{}, fault.Validation("debit amount must be non-negative")
	}
	w := m.wallets[ownerID]
	if w.Balance < amount {
		return ledger.Wallet{}, fault.Validation("insufficient balance: have %d, need %d", w.Balance, amount)
	}
	w.OwnerID = ownerID
	w.Balance -= amount
	w.UpdatedAt = time.Now().UTC()
	m.wallets[ownerID] = w
	return w, nil
}

func (m *Store) IncrementTasksSubmitted(_ context.Context, ownerID string) (ledger.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.wallets[ownerID]
	w.OwnerID = ownerID
	w.TasksSubmitted++
	w.UpdatedAt = time.Now().UTC()
	m.wallets[ownerID] = w
	return w, nil
}

// ReputationStore implementation -----------------------------------------------

func (m *Store) GetSignals(_ context.Context, publisherID string) (reputation.Signals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sig, ok := m.signals[publisherID]
	if !ok {
		return reputation.Signals{PublisherID: publisherID}, nil
	}
	return sig, nil
}

func (m *Store) AddSignals(_ context.Context, publisherID string, delta reputation.Signals) (reputation.Signals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addSignalsLocked(publisherID, delta), nil
}

func (m *Store) addSignalsLocked(publisherID string, delta reputation.Signals) reputation.Signals {
	sig := m.signals[publisherID]
	sig.PublisherID = publisherID
	sig.BountiesPosted += delta.BountiesPosted
	sig.BountiesAwarded += delta.BountiesAwarded
	sig.BountiesExpired += delta.BountiesExpired
	sig.TotalRejections += delta.TotalRejections
	sig.DisputesReceived += delta.DisputesReceived
	sig.DisputesLost += delta.DisputesLost
	sig.ReviewsOnTime += delta.ReviewsOnTime
	sig.ReviewsTotal += delta.ReviewsTotal
	sig.UpdatedAt = time.Now().UTC()
	m.signals[publisherID] = sig
	return sig
}

// VerificationStore implementation ---------------------------------------------

func (m *Store) CreateTestCase(_ context.Context, tc verification.TestCase) (verification.TestCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tc.ID == "" {
		tc.ID = m.nextIDLocked()
	}
	if tc.CreatedAt.IsZero() {
		tc.CreatedAt = time.Now().UTC()
	}
	m.testCases[tc.BountyID] = append(m.testCases[tc.BountyID], tc)
	return tc, nil
}

func (m *Store) ListTestCases(_ context.Context, bountyID string) ([]verification.TestCase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]verification.TestCase(nil), m.testCases[bountyID]...), nil
}

func (m *Store) SaveResult(_ context.Context, res verification.Result) (verification.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res.Cases = append([]verification.CaseResult(nil), res.Cases...)
	m.results[res.SubmissionID] = res
	return res, nil
}

func (m *Store) GetResult(_ context.Context, submissionID string) (verification.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res, ok := m.results[submissionID]
	if !ok {
		return verification.Result{}, fault.NotFound("verification result for submission %s", submissionID)
	}
	res.Cases = append([]verification.CaseResult(nil), res.Cases...)
	return res, nil
}

// SettlementStore implementation -----------------------------------------------

// ApplySettlement validates every status guard under the write lock before
// mutating anything, so a guard miss leaves the store untouched.
func (m *Store) ApplySettlement(_ context.Context, s storage.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.Bounty != nil {
		b, ok := m.bounties[s.Bounty.ID]
		if !ok {
			return fault.NotFound("bounty %s", s.Bounty.ID)
		}
		if b.Status != s.Bounty.From {
			return fault.Conflict("bounty %s is %s, expected %s", s.Bounty.ID, b.Status, s.Bounty.From)
		}
	}
	for _, change := range s.Submissions {
		sub, ok := m.submissions[change.ID]
		if !ok {
			return fault.NotFound("submission %s", change.ID)
		}
		if sub.Status != change.From {
			return fault.Conflict("submission %s is %s, expected %s", change.ID, sub.Status, change.From)
		}
	}
	if s.Dispute != nil {
		d, ok := m.disputes[s.Dispute.ID]
		if !ok {
			return fault.NotFound("dispute %s", s.Dispute.ID)
		}
		if d.Status != s.Dispute.From {
			return fault.Conflict("dispute %s is %s, expected %s", s.Dispute.ID, d.Status, s.Dispute.From)
		}
	}
	for _, tx := range s.Transactions {
		if tx.Amount < 0 {
			return fault.Validation("transaction amount must be non-negative")
		}
	}
	for _, credit := range s.Credits {
		if credit.Amount < 0 {
			return fault.Validation("credit amount must be non-negative")
		}
	}

	// Guards hold; apply everything.
	for _, tx := range s.Transactions {
		if _, err := m.createTransactionLocked(tx); err != nil {
			return err
		}
	}
	for _, credit := range s.Credits {
		if _, err := m.creditWalletLocked(credit.OwnerID, credit.Amount, credit.TasksCompleted); err != nil {
			return err
		}
	}
	if s.Bounty != nil {
		if _, err := m.applyBountyChangeLocked(*s.Bounty); err != nil {
			return err
		}
	}
	for _, change := range s.Submissions {
		if _, err := m.applySubmissionChangeLocked(change); err != nil {
			return err
		}
	}
	if s.Dispute != nil {
		if _, err := m.applyDisputeChangeLocked(*s.Dispute); err != nil {
			return err
		}
	}
	for publisherID, delta := range s.Reputation {
		m.addSignalsLocked(publisherID, delta)
	}
	return nil
}

// Helpers ----------------------------------------------------------------------

func cloneBounty(b bounty.Bounty) bounty.Bounty {
	b.Criteria = append([]bounty.Criterion(nil), b.Criteria...)
	b.Tags = append([]string(nil), b.Tags...)
	return b
}

func cloneSubmission(sub submission.Submission) submission.Submission {
	sub.CriterionScores = append([]int(nil), sub.CriterionScores...)
	return sub
}

func cloneDispute(d dispute.Dispute) dispute.Dispute {
	d.Grounds = append([]dispute.Grounds(nil), d.Grounds...)
	return d
}
