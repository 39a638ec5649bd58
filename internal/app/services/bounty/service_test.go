package bounty

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/taskforge/platform/internal/app/domain/bounty"
	"github.com/taskforge/platform/internal/app/domain/fault"
	"github.com/taskforge/platform/internal/app/domain/ledger"
	reputationDomain "github.com/taskforge/platform/internal/app/domain/reputation"
	"github.com/taskforge/platform/internal/app/services/reputation"
	"github.com/taskforge/platform/internal/app/storage/memory"
	"github.com/taskforge/platform/internal/auth"
)

var (
	testNow   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	publisher = auth.Identity{Subject: "pub-1", Role: auth.RolePublisher}
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	rep := reputation.New(store, nil)
	svc := New(store, store, store, rep, nil, nil).WithClock(func() time.Time { return testNow })
	if _, err := store.CreditWallet(context.Background(), publisher.Subject, 100000); err != nil {
		t.Fatalf("seed wallet: %v", err)
	}
	return svc, store
}

func validInput() CreateInput {
	return CreateInput{
		Title:          "implement a rate limiter",
		Description:    "fixed window, keyed by caller",
		RewardAmount:   10000,
		Deadline:       testNow.Add(48 * time.Hour),
		MaxSubmissions: 5,
		Criteria: []domain.Criterion{
			{Text: "passes the provided cases", Type: domain.CriterionBinary, Weight: 1},
		},
		Tags: []string{"go", "concurrency"},
	}
}

func TestCreateHoldsEscrow(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, publisher.Subject, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.Status != domain.StatusOpen {
		t.Fatalf("status = %s, want open", b.Status)
	}
	if want := b.Deadline.Add(domain.ReviewWindow); !b.ReviewDeadline.Equal(want) {
		t.Fatalf("review deadline = %v, want %v", b.ReviewDeadline, want)
	}

	wallet, _ := store.GetWallet(ctx, publisher.Subject)
	if wallet.Balance != 90000 {
		t.Fatalf("publisher balance = %d, want 90000 after escrow", wallet.Balance)
	}

	txs, _ := store.ListTransactions(ctx, b.ID)
	if len(txs) != 1 || txs[0].Type != ledger.EntryEscrowHold {
		t.Fatalf("transactions = %+v, want one escrow hold", txs)
	}

	sig, _ := store.GetSignals(ctx, publisher.Subject)
	if sig.BountiesPosted != 1 {
		t.Fatalf("BountiesPosted = %d, want 1", sig.BountiesPosted)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"empty title", func(in *CreateInput) { in.Title = "  " }},
		{"zero reward", func(in *CreateInput) { in.RewardAmount = 0 }},
		{"negative reward", func(in *CreateInput) { in.RewardAmount = -5 }},
		{"past deadline", func(in *CreateInput) { in.Deadline = testNow.Add(-time.Hour) }},
		{"zero max submissions", func(in *CreateInput) { in.MaxSubmissions = 0 }},
		{"blank criterion", func(in *CreateInput) { in.Criteria[0].Text = "" }},
		{"bad criterion type", func(in *CreateInput) { in.Criteria[0].Type = "fuzzy" }},
		{"zero criterion weight", func(in *CreateInput) { in.Criteria[0].Weight = 0 }},
	}
	for _, tc := range cases {
		in := validInput()
		tc.mutate(&in)
		if _, err := svc.Create(ctx, publisher.Subject, in); !errors.Is(err, fault.ErrValidation) {
			t.Errorf("%s: err = %v, want ErrValidation", tc.name, err)
		}
	}
}

func TestCreateInsufficientBalance(t *testing.T) {
	svc, _ := newService(t)
	in := validInput()
	in.RewardAmount = 100001

	_, err := svc.Create(context.Background(), publisher.Subject, in)
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation for insufficient balance", err)
	}
}

func TestCreateBlockedForUntrustedPublisher(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	// Enough bad history to pin the publisher below every tier floor.
	if _, err := store.AddSignals(ctx, publisher.Subject, reputationDomain.Signals{
		BountiesPosted:   40,
		BountiesExpired:  35,
		BountiesAwarded:  5,
		TotalRejections:  40,
		DisputesReceived: 30,
		DisputesLost:     30,
		ReviewsTotal:     40,
	}); err != nil {
		t.Fatalf("seed signals: %v", err)
	}

	_, err := svc.Create(ctx, publisher.Subject, validInput())
	if !errors.Is(err, fault.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden for untrusted publisher", err)
	}
}

func TestPlaceBid(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, publisher.Subject, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	bid, err := svc.PlaceBid(ctx, "agent-1", b.ID, "I can do this by Friday")
	if err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}
	if bid.Status != domain.BidPending {
		t.Fatalf("bid status = %s, want pending", bid.Status)
	}

	if _, err := svc.PlaceBid(ctx, "agent-1", b.ID, "again"); !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("duplicate bid: err = %v, want ErrConflict", err)
	}

	bids, err := svc.ListBids(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListBids: %v", err)
	}
	if len(bids) != 1 {
		t.Fatalf("bid count = %d, want 1", len(bids))
	}
}

func TestCancelRefundsAndRejectsBids(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, publisher.Subject, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.PlaceBid(ctx, "agent-1", b.ID, ""); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}

	cancelled, err := svc.Cancel(ctx, publisher, b.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}

	wallet, _ := store.GetWallet(ctx, publisher.Subject)
	if wallet.Balance != 100000 {
		t.Fatalf("publisher balance = %d, want full 100000 back", wallet.Balance)
	}

	bids, _ := store.ListBids(ctx, b.ID)
	if len(bids) != 1 || bids[0].Status != domain.BidRejected {
		t.Fatalf("bids = %+v, want one rejected bid", bids)
	}
}

func TestCancelAuthorization(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, publisher.Subject, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	stranger := auth.Identity{Subject: "pub-2", Role: auth.RolePublisher}
	if _, err := svc.Cancel(ctx, stranger, b.ID); !errors.Is(err, fault.ErrForbidden) {
		t.Fatalf("stranger cancel: err = %v, want ErrForbidden", err)
	}

	admin := auth.Identity{Subject: "admin-1", Role: auth.RoleAdmin}
	if _, err := svc.Cancel(ctx, admin, b.ID); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
}

func TestCancelTwiceFails(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, publisher.Subject, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Cancel(ctx, publisher, b.ID); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if _, err := svc.Cancel(ctx, publisher, b.ID); !errors.Is(err, fault.ErrInvalidTransition) {
		t.Fatalf("second cancel: err = %v, want ErrInvalidTransition", err)
	}
}
