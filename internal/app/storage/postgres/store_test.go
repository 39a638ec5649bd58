package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/taskforge/platform/internal/app/domain/bounty"
	"github.com/taskforge/platform/internal/app/domain/fault"
	"github.com/taskforge/platform/internal/app/domain/ledger"
	"github.com/taskforge/platform/internal/app/domain/submission"
	"github.com/taskforge/platform/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestUpdateBountyStatusGuardMiss(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE bounties`).
		WithArgs(bounty.StatusAwarded, "sub-1", "b-1", bounty.StatusOpen).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.UpdateBountyStatus(context.Background(), storage.BountyChange{
		ID:                  "b-1",
		From:                bounty.StatusOpen,
		To:                  bounty.StatusAwarded,
		AwardedSubmissionID: "sub-1",
	})
	if !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict on zero rows", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIncrementSubmissionCountAtCap(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE bounties`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.IncrementSubmissionCount(context.Background(), "b-1")
	if !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict at cap", err)
	}
}

func TestCreateBidUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO bids`).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := store.CreateBid(context.Background(), bounty.Bid{BountyID: "b-1", AgentID: "a-1"})
	if !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict on duplicate bid", err)
	}
}

func TestDebitWalletInsufficientBalance(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE wallets`).
		WithArgs(int64(500), "pub-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.DebitWallet(context.Background(), "pub-1", 500)
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation for insufficient balance", err)
	}
}

func TestGetWalletDefaultsWhenMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT owner_id, balance`).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "balance", "tasks_completed", "tasks_submitted", "updated_at"}))

	w, err := store.GetWallet(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if w.OwnerID != "nobody" || w.Balance != 0 {
		t.Fatalf("wallet = %+v, want zero wallet", w)
	}
}

func TestApplySettlementCommitsWholeUnit(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO transactions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO wallets`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE bounties`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE submissions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.ApplySettlement(context.Background(), storage.Settlement{
		Transactions: []ledger.Transaction{{
			AgentID: "a-1", BountyID: "b-1", Amount: 9000, Type: ledger.EntryBountyPayout,
		}},
		Credits: []storage.WalletCredit{{OwnerID: "a-1", Amount: 9000, TasksCompleted: 1}},
		Bounty: &storage.BountyChange{
			ID: "b-1", From: bounty.StatusOpen, To: bounty.StatusAwarded, AwardedSubmissionID: "s-1",
		},
		Submissions: []storage.SubmissionChange{{
			ID: "s-1", From: submission.StatusSubmitted, To: submission.StatusAccepted, QualityScore: 5,
		}},
	})
	if err != nil {
		t.Fatalf("ApplySettlement: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplySettlementRollsBackOnGuardMiss(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO transactions`).WillReturnResult(sqlmock.NewResult(0, 1))
	// The bounty guard misses; the whole unit must roll back.
	mock.ExpectExec(`UPDATE bounties`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.ApplySettlement(context.Background(), storage.Settlement{
		Transactions: []ledger.Transaction{{
			BountyID: "b-1", Amount: 1000, Type: ledger.EntryBountyRefund,
		}},
		Bounty: &storage.BountyChange{ID: "b-1", From: bounty.StatusOpen, To: bounty.StatusCancelled},
	})
	if !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListOverdueDisputesQuery(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "submission_id", "bounty_id", "agent_id", "publisher_id", "status",
		"grounds", "agent_statement", "publisher_response", "resolution_amount",
		"resolution_split_bps", "resolution_notes", "resolved_by", "filed_at",
		"publisher_deadline", "resolution_deadline", "responded_at", "resolved_at",
		"created_at", "updated_at",
	}).AddRow(
		"d-1", "s-1", "b-1", "a-1", "p-1", "filed",
		[]byte(`["insufficient_reason"]`), "statement", "", 0,
		0, "", "", now.Add(-72*time.Hour),
		now.Add(-24*time.Hour), nil, nil, nil,
		now.Add(-72*time.Hour), now.Add(-72*time.Hour),
	)
	mock.ExpectQuery(`SELECT (.+) FROM disputes`).WillReturnRows(rows)

	disputes, err := store.ListOverdueDisputes(context.Background(), now)
	if err != nil {
		t.Fatalf("ListOverdueDisputes: %v", err)
	}
	if len(disputes) != 1 || disputes[0].ID != "d-1" {
		t.Fatalf("disputes = %+v, want one overdue dispute", disputes)
	}
	if disputes[0].ResolutionDeadline != (time.Time{}) {
		t.Fatalf("resolution deadline = %v, want zero", disputes[0].ResolutionDeadline)
	}
}
