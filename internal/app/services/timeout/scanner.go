// Package timeout sweeps past-due bounties and disputes. Bounties whose
// review deadline lapsed without an award are expired and refunded; disputes
// whose active deadline lapsed resolve in favor of the waiting agent.
package timeout

import (
	"context"
	"errors"
	"time"

	bountyDomain "github.com/taskforge/platform/internal/app/domain/bounty"
	"github.com/taskforge/platform/internal/app/domain/fault"
	"github.com/taskforge/platform/internal/app/domain/ledger"
	reputationDomain "github.com/taskforge/platform/internal/app/domain/reputation"
	submissionDomain "github.com/taskforge/platform/internal/app/domain/submission"
	"github.com/taskforge/platform/internal/app/metrics"
	"github.com/taskforge/platform/internal/app/services/dispute"
	"github.com/taskforge/platform/internal/app/storage"
	"github.com/taskforge/platform/pkg/logger"
)

// Scanner performs one sweep per invocation. Each item settles independently;
// one failure never stops the rest of the sweep.
type Scanner struct {
	bounties    storage.BountyStore
	submissions storage.SubmissionStore
	disputeSt   storage.DisputeStore
	settle      storage.SettlementStore
	disputes    *dispute.Service
	metrics     *metrics.Metrics
	log         *logger.Logger

	now func() time.Time
}

// NewScanner constructs a sweep over the given stores.
func NewScanner(bounties storage.BountyStore, submissions storage.SubmissionStore, disputeStore storage.DisputeStore, settle storage.SettlementStore, disputes *dispute.Service, log *logger.Logger) *Scanner {
	if log == nil {
		log = logger.NewDefault("timeout")
	}
	return &Scanner{
		bounties:    bounties,
		submissions: submissions,
		disputeSt:   disputeStore,
		settle:      settle,
		disputes:    disputes,
		log:         log,
		now:         time.Now,
	}
}

// WithMetrics attaches sweep instruments.
func (s *Scanner) WithMetrics(m *metrics.Metrics) *Scanner {
	s.metrics = m
	return s
}

// WithClock overrides the time source, for tests.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

// Report summarizes one sweep.
type Report struct {
	BountiesExpired  int
	DisputesResolved int
	Failed           []string
}

// Sweep expires overdue bounties and force-resolves overdue disputes.
func (s *Scanner) Sweep(ctx context.Context) (Report, error) {
	now := s.now().UTC()
	var report Report

	if s.metrics != nil {
		s.metrics.SweepRuns.Inc()
	}

	overdueBounties, err := s.bounties.ListReviewOverdue(ctx, now)
	if err != nil {
		return report, err
	}
	for _, b := range overdueBounties {
		if err := s.expireBounty(ctx, b); err != nil {
			// A concurrent award or cancel got there first; nothing to do.
			if errors.Is(err, fault.ErrConflict) {
				continue
			}
			report.Failed = append(report.Failed, "bounty:"+b.ID)
			s.countItem("bounty", "failed")
			s.log.WithError(err).WithField("bounty_id", b.ID).Error("bounty expiry failed")
			continue
		}
		report.BountiesExpired++
		s.countItem("bounty", "expired")
	}

	overdueDisputes, err := s.disputeSt.ListOverdueDisputes(ctx, now)
	if err != nil {
		return report, err
	}
	for _, d := range overdueDisputes {
		if _, err := s.disputes.ResolveExpired(ctx, d); err != nil {
			if errors.Is(err, fault.ErrConflict) || errors.Is(err, fault.ErrInvalidTransition) {
				continue
			}
			report.Failed = append(report.Failed, "dispute:"+d.ID)
			s.countItem("dispute", "failed")
			s.log.WithError(err).WithField("dispute_id", d.ID).Error("dispute expiry failed")
			continue
		}
		report.DisputesResolved++
		s.countItem("dispute", "resolved")
	}

	s.log.WithField("bounties_expired", report.BountiesExpired).
		WithField("disputes_resolved", report.DisputesResolved).
		WithField("failed", len(report.Failed)).
		Info("deadline sweep complete")
	return report, nil
}

// expireBounty refunds the publisher in full and rejects whatever is still
// pending, all as one settlement. The expired publisher is charged a missed
// review in the reputation record.
func (s *Scanner) expireBounty(ctx context.Context, b bountyDomain.Bounty) error {
	subs, err := s.submissions.ListSubmissions(ctx, b.ID)
	if err != nil {
		return err
	}

	settlement := storage.Settlement{
		Transactions: []ledger.Transaction{{
			UserID:      b.PublisherID,
			BountyID:    b.ID,
			Amount:      b.RewardAmount,
			Type:        ledger.EntryBountyRefund,
			Description: "review deadline passed without an award",
		}},
		Credits: []storage.WalletCredit{{OwnerID: b.PublisherID, Amount: b.RewardAmount}},
		Bounty: &storage.BountyChange{
			ID:   b.ID,
			From: bountyDomain.StatusOpen,
			To:   bountyDomain.StatusExpired,
		},
		Reputation: map[string]reputationDomain.Signals{
			b.PublisherID: {BountiesExpired: 1, ReviewsTotal: 1},
		},
	}
	for _, sub := range subs {
		if sub.Status != submissionDomain.StatusSubmitted {
			continue
		}
		settlement.Submissions = append(settlement.Submissions, storage.SubmissionChange{
			ID:              sub.ID,
			From:            submissionDomain.StatusSubmitted,
			To:              submissionDomain.StatusRejected,
			RejectionReason: "bounty expired before review",
		})
	}

	if err := s.settle.ApplySettlement(ctx, settlement); err != nil {
		return err
	}
	if _, err := s.bounties.RejectPendingBids(ctx, b.ID); err != nil {
		s.log.WithError(err).WithField("bounty_id", b.ID).Warn("pending bids not rejected on expiry")
	}
	return nil
}

func (s *Scanner) countItem(kind, outcome string) {
	if s.metrics != nil {
		s.metrics.SweepItemsTotal.WithLabelValues(kind, outcome).Inc()
	}
}
