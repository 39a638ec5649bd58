package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskforge/platform/internal/app/domain/bounty"
	"github.com/taskforge/platform/internal/app/domain/fault"
	"github.com/taskforge/platform/internal/app/domain/ledger"
	"github.com/taskforge/platform/internal/app/domain/reputation"
	"github.com/taskforge/platform/internal/app/domain/submission"
	"github.com/taskforge/platform/internal/app/storage"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedBounty(t *testing.T, m *Store) bounty.Bounty {
	t.Helper()
	b, err := m.CreateBounty(context.Background(), bounty.Bounty{
		PublisherID:    "pub-1",
		Title:          "Build a widget",
		RewardAmount:   10000,
		Status:         bounty.StatusOpen,
		Deadline:       testNow.Add(24 * time.Hour),
		ReviewDeadline: testNow.Add(24*time.Hour + bounty.ReviewWindow),
		MaxSubmissions: 2,
	})
	if err != nil {
		t.Fatalf("CreateBounty: %v", err)
	}
	return b
}

func TestStatusGuardRejectsStaleWrites(t *testing.T) {
	m := New()
	ctx := context.Background()
	b := seedBounty(t, m)

	if _, err := m.UpdateBountyStatus(ctx, storage.BountyChange{
		ID: b.ID, From: bounty.StatusOpen, To: bounty.StatusCancelled,
	}); err != nil {
		t.Fatalf("first transition: %v", err)
	}

	_, err := m.UpdateBountyStatus(ctx, storage.BountyChange{
		ID: b.ID, From: bounty.StatusOpen, To: bounty.StatusExpired,
	})
	if !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict for a stale guard", err)
	}
}

func TestIncrementSubmissionCountStopsAtCap(t *testing.T) {
	m := New()
	ctx := context.Background()
	b := seedBounty(t, m) // cap of 2

	for i := 0; i < 2; i++ {
		if _, err := m.IncrementSubmissionCount(ctx, b.ID); err != nil {
			t.Fatalf("increment %d: %v", i+1, err)
		}
	}
	if _, err := m.IncrementSubmissionCount(ctx, b.ID); !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict at the cap", err)
	}
}

func TestDuplicateBidRejected(t *testing.T) {
	m := New()
	ctx := context.Background()
	b := seedBounty(t, m)

	if _, err := m.CreateBid(ctx, bounty.Bid{BountyID: b.ID, AgentID: "agent-1"}); err != nil {
		t.Fatalf("first bid: %v", err)
	}
	_, err := m.CreateBid(ctx, bounty.Bid{BountyID: b.ID, AgentID: "agent-1"})
	if !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict for a duplicate bid", err)
	}
}

func TestDebitWalletInsufficientFunds(t *testing.T) {
	m := New()
	ctx := context.Background()

	if _, err := m.CreditWallet(ctx, "pub-1", 500); err != nil {
		t.Fatalf("CreditWallet: %v", err)
	}
	_, err := m.DebitWallet(ctx, "pub-1", 600)
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	w, err := m.GetWallet(ctx, "pub-1")
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if w.Balance != 500 {
		t.Fatalf("balance = %d, want untouched 500", w.Balance)
	}
}

func TestApplySettlementIsAllOrNothing(t *testing.T) {
	m := New()
	ctx := context.Background()
	b := seedBounty(t, m)

	sub, err := m.CreateSubmission(ctx, submission.Submission{
		BountyID: b.ID, AgentID: "agent-1", Status: submission.StatusSubmitted,
	})
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}

	// The submission guard is wrong, so nothing may change.
	err = m.ApplySettlement(ctx, storage.Settlement{
		Transactions: []ledger.Transaction{{
			AgentID: "agent-1", BountyID: b.ID, Amount: 9000, Type: ledger.EntryBountyPayout,
		}},
		Credits: []storage.WalletCredit{{OwnerID: "agent-1", Amount: 9000}},
		Bounty: &storage.BountyChange{
			ID: b.ID, From: bounty.StatusOpen, To: bounty.StatusAwarded, AwardedSubmissionID: sub.ID,
		},
		Submissions: []storage.SubmissionChange{{
			ID: sub.ID, From: submission.StatusRejected, To: submission.StatusAccepted,
		}},
	})
	if !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	got, _ := m.GetBounty(ctx, b.ID)
	if got.Status != bounty.StatusOpen {
		t.Fatalf("bounty status = %q, want open after failed settlement", got.Status)
	}
	w, _ := m.GetWallet(ctx, "agent-1")
	if w.Balance != 0 {
		t.Fatalf("balance = %d, want 0 after failed settlement", w.Balance)
	}
	txs, _ := m.ListTransactions(ctx, b.ID)
	if len(txs) != 0 {
		t.Fatalf("transactions = %d, want none", len(txs))
	}
}

func TestApplySettlementRecordsSignals(t *testing.T) {
	m := New()
	ctx := context.Background()
	b := seedBounty(t, m)

	err := m.ApplySettlement(ctx, storage.Settlement{
		Bounty: &storage.BountyChange{ID: b.ID, From: bounty.StatusOpen, To: bounty.StatusExpired},
		Reputation: map[string]reputation.Signals{
			"pub-1": {BountiesExpired: 1, ReviewsTotal: 1},
		},
	})
	if err != nil {
		t.Fatalf("ApplySettlement: %v", err)
	}

	sig, err := m.GetSignals(ctx, "pub-1")
	if err != nil {
		t.Fatalf("GetSignals: %v", err)
	}
	if sig.BountiesExpired != 1 || sig.ReviewsTotal != 1 {
		t.Fatalf("signals = %+v, want expired and review counted", sig)
	}
}

func TestListReviewOverdueFilters(t *testing.T) {
	m := New()
	ctx := context.Background()

	overdue, err := m.CreateBounty(ctx, bounty.Bounty{
		PublisherID: "pub-1", Title: "late", RewardAmount: 100,
		Status: bounty.StatusOpen, ReviewDeadline: testNow.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateBounty: %v", err)
	}
	if _, err := m.CreateBounty(ctx, bounty.Bounty{
		PublisherID: "pub-1", Title: "fresh", RewardAmount: 100,
		Status: bounty.StatusOpen, ReviewDeadline: testNow.Add(time.Hour),
	}); err != nil {
		t.Fatalf("CreateBounty: %v", err)
	}
	if _, err := m.CreateBounty(ctx, bounty.Bounty{
		PublisherID: "pub-1", Title: "done", RewardAmount: 100,
		Status: bounty.StatusAwarded, ReviewDeadline: testNow.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("CreateBounty: %v", err)
	}

	list, err := m.ListReviewOverdue(ctx, testNow)
	if err != nil {
		t.Fatalf("ListReviewOverdue: %v", err)
	}
	if len(list) != 1 || list[0].ID != overdue.ID {
		t.Fatalf("overdue = %+v, want only the late open bounty", list)
	}
}

func TestRejectPendingBids(t *testing.T) {
	m := New()
	ctx := context.Background()
	b := seedBounty(t, m)

	for _, agent := range []string{"agent-1", "agent-2"} {
		if _, err := m.CreateBid(ctx, bounty.Bid{BountyID: b.ID, AgentID: agent, Status: bounty.BidPending}); err != nil {
			t.Fatalf("bid %s: %v", agent, err)
		}
	}

	n, err := m.RejectPendingBids(ctx, b.ID)
	if err != nil {
		t.Fatalf("RejectPendingBids: %v", err)
	}
	if n != 2 {
		t.Fatalf("rejected = %d, want 2", n)
	}

	bids, _ := m.ListBids(ctx, b.ID)
	for _, bid := range bids {
		if bid.Status != bounty.BidRejected {
			t.Fatalf("bid %s status = %q, want rejected", bid.AgentID, bid.Status)
		}
	}
}
