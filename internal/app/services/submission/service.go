// Package submission manages agent submissions and the publisher's review
// actions over them.
package submission

import (
	"context"
	"fmt"
	"strings"
	"time"

	bountyDomain "github.com/taskforge/platform/internal/app/domain/bounty"
	"github.com/taskforge/platform/internal/app/domain/fault"
	"github.com/taskforge/platform/internal/app/domain/ledger"
	reputationDomain "github.com/taskforge/platform/internal/app/domain/reputation"
	domain "github.com/taskforge/platform/internal/app/domain/submission"
	"github.com/taskforge/platform/internal/app/services/escrow"
	"github.com/taskforge/platform/internal/app/services/reputation"
	"github.com/taskforge/platform/internal/app/storage"
	"github.com/taskforge/platform/internal/auth"
	"github.com/taskforge/platform/internal/ratelimit"
	"github.com/taskforge/platform/pkg/logger"
)

// Rejection reason bounds.
const (
	minReasonLen = 10
	maxReasonLen = 5000
)

// siblingRejectionReason is stamped on submissions displaced by an award.
const siblingRejectionReason = "another submission was accepted for this bounty"

// Service coordinates submissions against bounties.
type Service struct {
	bounties   storage.BountyStore
	store      storage.SubmissionStore
	ledger     storage.LedgerStore
	settle     storage.SettlementStore
	reputation *reputation.Service
	limiter    *ratelimit.Limiter
	log        *logger.Logger

	now func() time.Time
}

// New constructs a submission service.
func New(bounties storage.BountyStore, store storage.SubmissionStore, ledgerStore storage.LedgerStore, settle storage.SettlementStore, rep *reputation.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("submission")
	}
	return &Service{
		bounties:   bounties,
		store:      store,
		ledger:     ledgerStore,
		settle:     settle,
		reputation: rep,
		log:        log,
		now:        time.Now,
	}
}

// Submit records an agent's answer to an open bounty. One submission per
// agent per bounty; the bounty must be open, before its deadline, and under
// its submission cap.
func (s *Service) Submit(ctx context.Context, agentID, bountyID, content string) (domain.Submission, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return domain.Submission{}, fault.Validation("agent_id is required")
	}
	if strings.TrimSpace(content) == "" {
		return domain.Submission{}, fault.Validation("content is required")
	}
	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, agentID, "submit"); err != nil {
			return domain.Submission{}, err
		}
	}

	b, err := s.bounties.GetBounty(ctx, bountyID)
	if err != nil {
		return domain.Submission{}, err
	}
	if b.Status != bountyDomain.StatusOpen {
		return domain.Submission{}, fault.Transition("bounty %s is %s, not accepting submissions", bountyID, b.Status)
	}
	if !s.now().Before(b.Deadline) {
		return domain.Submission{}, fault.Validation("bounty %s is past its submission deadline", bountyID)
	}

	// The guarded counter bump enforces the cap under concurrent submitters.
	if _, err := s.bounties.IncrementSubmissionCount(ctx, bountyID); err != nil {
		return domain.Submission{}, err
	}

	sub, err := s.store.CreateSubmission(ctx, domain.Submission{
		BountyID: bountyID,
		AgentID:  agentID,
		Content:  content,
		Status:   domain.StatusSubmitted,
	})
	if err != nil {
		return domain.Submission{}, err
	}

	if _, err := s.ledger.IncrementTasksSubmitted(ctx, agentID); err != nil {
		s.log.WithError(err).WithField("agent_id", agentID).Warn("submitted counter not bumped")
	}

	s.log.WithField("submission_id", sub.ID).
		WithField("bounty_id", bountyID).
		WithField("agent_id", agentID).
		Info("submission received")
	return sub, nil
}

// Get retrieves one submission.
func (s *Service) Get(ctx context.Context, id string) (domain.Submission, error) {
	return s.store.GetSubmission(ctx, id)
}

// List returns submissions for a bounty.
func (s *Service) List(ctx context.Context, bountyID string) ([]domain.Submission, error) {
	return s.store.ListSubmissions(ctx, bountyID)
}

// AwardInput carries the review fields of an award.
type AwardInput struct {
	QualityScore    int
	ReviewNotes     string
	CriterionScores []int
}

// Award accepts the chosen submission, rejects its submitted siblings, moves
// the bounty to awarded and settles the escrow with a 90/10 agent/platform
// split. The whole write is one atomic unit.
func (s *Service) Award(ctx context.Context, actor auth.Identity, bountyID, submissionID string, in AwardInput) (domain.Submission, error) {
	if in.QualityScore < 1 || in.QualityScore > 5 {
		return domain.Submission{}, fault.Validation("quality_score must be between 1 and 5")
	}

	b, err := s.bounties.GetBounty(ctx, bountyID)
	if err != nil {
		return domain.Submission{}, err
	}
	if b.PublisherID != actor.Subject && !actor.IsAdmin() {
		return domain.Submission{}, fault.Forbidden("only the publisher may award bounty %s", bountyID)
	}
	if !bountyDomain.CanTransition(b.Status, bountyDomain.StatusAwarded) {
		return domain.Submission{}, fault.Transition("bounty %s cannot move from %s to awarded", bountyID, b.Status)
	}
	if b.Status != bountyDomain.StatusOpen {
		// A disputed bounty is awarded through dispute resolution.
		return domain.Submission{}, fault.Transition("bounty %s is under dispute", bountyID)
	}

	chosen, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return domain.Submission{}, err
	}
	if chosen.BountyID != bountyID {
		return domain.Submission{}, fault.Validation("submission %s does not belong to bounty %s", submissionID, bountyID)
	}
	if chosen.Status != domain.StatusSubmitted {
		return domain.Submission{}, fault.Transition("submission %s is %s, expected submitted", submissionID, chosen.Status)
	}

	payout, err := escrow.Award(b.RewardAmount)
	if err != nil {
		return domain.Submission{}, err
	}

	siblings, err := s.store.ListSubmissions(ctx, bountyID)
	if err != nil {
		return domain.Submission{}, err
	}

	now := s.now().UTC()
	settlement := storage.Settlement{
		Bounty: &storage.BountyChange{
			ID:                  b.ID,
			From:                bountyDomain.StatusOpen,
			To:                  bountyDomain.StatusAwarded,
			AwardedSubmissionID: chosen.ID,
		},
		Submissions: []storage.SubmissionChange{{
			ID:              chosen.ID,
			From:            domain.StatusSubmitted,
			To:              domain.StatusAccepted,
			QualityScore:    in.QualityScore,
			ReviewNotes:     in.ReviewNotes,
			CriterionScores: in.CriterionScores,
		}},
		Reputation: map[string]reputationDomain.Signals{
			b.PublisherID: awardSignals(b, now),
		},
	}
	for _, sib := range siblings {
		if sib.ID == chosen.ID || sib.Status != domain.StatusSubmitted {
			continue
		}
		settlement.Submissions = append(settlement.Submissions, storage.SubmissionChange{
			ID:              sib.ID,
			From:            domain.StatusSubmitted,
			To:              domain.StatusRejected,
			RejectionReason: siblingRejectionReason,
			DisputeDeadline: now.Add(domain.DisputeWindow),
		})
	}
	if payout.AgentAmount > 0 {
		settlement.Transactions = append(settlement.Transactions, ledger.Transaction{
			AgentID:     chosen.AgentID,
			BountyID:    b.ID,
			Amount:      payout.AgentAmount,
			Type:        ledger.EntryBountyPayout,
			Description: fmt.Sprintf("award for submission %s", chosen.ID),
		})
		settlement.Credits = append(settlement.Credits, storage.WalletCredit{
			OwnerID:        chosen.AgentID,
			Amount:         payout.AgentAmount,
			TasksCompleted: 1,
		})
	}
	if payout.PlatformFee > 0 {
		settlement.Transactions = append(settlement.Transactions, ledger.Transaction{
			BountyID:    b.ID,
			Amount:      payout.PlatformFee,
			Type:        ledger.EntryPlatformFee,
			Description: "platform fee on award",
		})
	}

	if err := s.settle.ApplySettlement(ctx, settlement); err != nil {
		return domain.Submission{}, err
	}

	awarded, err := s.store.GetSubmission(ctx, chosen.ID)
	if err != nil {
		return domain.Submission{}, err
	}
	s.log.WithField("bounty_id", b.ID).
		WithField("submission_id", chosen.ID).
		WithField("agent_amount", payout.AgentAmount).
		WithField("platform_fee", payout.PlatformFee).
		Info("bounty awarded")
	return awarded, nil
}

func awardSignals(b bountyDomain.Bounty, now time.Time) reputationDomain.Signals {
	sig := reputationDomain.Signals{BountiesAwarded: 1, ReviewsTotal: 1}
	if !now.After(b.ReviewDeadline) {
		sig.ReviewsOnTime = 1
	}
	return sig
}

// Reject declines a submission with a substantive reason and opens the
// agent's dispute-filing window. The bounty itself stays open.
func (s *Service) Reject(ctx context.Context, actor auth.Identity, submissionID, reason string) (domain.Submission, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < minReasonLen {
		return domain.Submission{}, fault.Validation("rejection reason must be at least %d characters", minReasonLen)
	}
	if len(reason) > maxReasonLen {
		return domain.Submission{}, fault.Validation("rejection reason must be at most %d characters", maxReasonLen)
	}

	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return domain.Submission{}, err
	}
	b, err := s.bounties.GetBounty(ctx, sub.BountyID)
	if err != nil {
		return domain.Submission{}, err
	}
	if b.PublisherID != actor.Subject && !actor.IsAdmin() {
		return domain.Submission{}, fault.Forbidden("only the publisher may reject submissions on bounty %s", b.ID)
	}
	if sub.Status != domain.StatusSubmitted {
		return domain.Submission{}, fault.Transition("submission %s is %s, expected submitted", submissionID, sub.Status)
	}

	updated, err := s.store.UpdateSubmissionStatus(ctx, storage.SubmissionChange{
		ID:              sub.ID,
		From:            domain.StatusSubmitted,
		To:              domain.StatusRejected,
		RejectionReason: reason,
		DisputeDeadline: s.now().UTC().Add(domain.DisputeWindow),
	})
	if err != nil {
		return domain.Submission{}, err
	}

	if s.reputation != nil {
		if _, err := s.reputation.Record(ctx, b.PublisherID, reputationDomain.Signals{TotalRejections: 1}); err != nil {
			s.log.WithError(err).WithField("publisher_id", b.PublisherID).Warn("rejection signal not recorded")
		}
	}

	s.log.WithField("submission_id", sub.ID).
		WithField("bounty_id", b.ID).
		Info("submission rejected")
	return updated, nil
}

// WithLimiter attaches a rate limiter applied to submissions.
func (s *Service) WithLimiter(l *ratelimit.Limiter) *Service {
	s.limiter = l
	return s
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}
