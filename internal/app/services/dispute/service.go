// Package dispute manages the dispute lifecycle: filing, response, evidence,
// resolution and withdrawal. Resolution settles the escrowed reward through a
// single atomic write unit.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	bountyDomain "github.com/taskforge/platform/internal/app/domain/bounty"
	domain "github.com/taskforge/platform/internal/app/domain/dispute"
	"github.com/taskforge/platform/internal/app/domain/fault"
	"github.com/taskforge/platform/internal/app/domain/ledger"
	reputationDomain "github.com/taskforge/platform/internal/app/domain/reputation"
	submissionDomain "github.com/taskforge/platform/internal/app/domain/submission"
	"github.com/taskforge/platform/internal/app/services/escrow"
	"github.com/taskforge/platform/internal/app/services/reputation"
	"github.com/taskforge/platform/internal/app/storage"
	"github.com/taskforge/platform/internal/auth"
	"github.com/taskforge/platform/internal/ratelimit"
	"github.com/taskforge/platform/pkg/logger"
)

const maxResponseLen = 10000

// ResolvedBySystem marks resolutions produced by the deadline sweep.
const ResolvedBySystem = "system:timeout"

// ResolvedByVerification marks resolutions produced by a full verification pass.
const ResolvedByVerification = "system:verification"

// Service coordinates disputes over rejected submissions.
type Service struct {
	bounties    storage.BountyStore
	submissions storage.SubmissionStore
	store       storage.DisputeStore
	verif       storage.VerificationStore
	settle      storage.SettlementStore
	reputation  *reputation.Service
	limiter     *ratelimit.Limiter
	log         *logger.Logger

	now func() time.Time
}

// New constructs a dispute service.
func New(bounties storage.BountyStore, submissions storage.SubmissionStore, store storage.DisputeStore, verif storage.VerificationStore, settle storage.SettlementStore, rep *reputation.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("dispute")
	}
	return &Service{
		bounties:    bounties,
		submissions: submissions,
		store:       store,
		verif:       verif,
		settle:      settle,
		reputation:  rep,
		log:         log,
		now:         time.Now,
	}
}

// WithLimiter attaches a rate limiter for filing.
func (s *Service) WithLimiter(l *ratelimit.Limiter) *Service {
	s.limiter = l
	return s
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// File opens a dispute over a rejected submission. The submission must still
// be inside its dispute window and carry no prior dispute; the bounty flips
// to disputed. If the bounty's criteria are fully objective and a passing
// verification result is on file, the dispute resolves immediately in the
// agent's favor.
func (s *Service) File(ctx context.Context, agentID, submissionID string, grounds []domain.Grounds, statement string) (domain.Dispute, error) {
	agentID = strings.TrimSpace(agentID)
	statement = strings.TrimSpace(statement)
	if agentID == "" {
		return domain.Dispute{}, fault.Validation("agent_id is required")
	}
	if len(grounds) == 0 {
		return domain.Dispute{}, fault.Validation("at least one dispute ground is required")
	}
	if statement == "" {
		return domain.Dispute{}, fault.Validation("agent statement is required")
	}

	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, agentID, "file-dispute"); err != nil {
			return domain.Dispute{}, err
		}
	}

	sub, err := s.submissions.GetSubmission(ctx, submissionID)
	if err != nil {
		return domain.Dispute{}, err
	}
	if sub.AgentID != agentID {
		return domain.Dispute{}, fault.Forbidden("submission %s belongs to another agent", submissionID)
	}
	if sub.Status != submissionDomain.StatusRejected {
		return domain.Dispute{}, fault.Transition("submission %s is %s, only rejected submissions can be disputed", submissionID, sub.Status)
	}
	now := s.now().UTC()
	if !now.Before(sub.DisputeDeadline) {
		return domain.Dispute{}, fault.Transition("dispute window for submission %s closed at %s", submissionID, sub.DisputeDeadline.Format(time.RFC3339))
	}

	if _, err := s.store.GetDisputeBySubmission(ctx, submissionID); err == nil {
		return domain.Dispute{}, fault.Conflict("submission %s already has a dispute", submissionID)
	} else if !errors.Is(err, fault.ErrNotFound) {
		return domain.Dispute{}, err
	}

	b, err := s.bounties.GetBounty(ctx, sub.BountyID)
	if err != nil {
		return domain.Dispute{}, err
	}
	if b.Status != bountyDomain.StatusDisputed && !bountyDomain.CanTransition(b.Status, bountyDomain.StatusDisputed) {
		return domain.Dispute{}, fault.Transition("bounty %s is %s and cannot enter dispute", b.ID, b.Status)
	}

	d, err := s.store.CreateDispute(ctx, domain.Dispute{
		SubmissionID:      submissionID,
		BountyID:          b.ID,
		AgentID:           agentID,
		PublisherID:       b.PublisherID,
		Status:            domain.StatusFiled,
		Grounds:           grounds,
		AgentStatement:    statement,
		FiledAt:           now,
		PublisherDeadline: now.Add(domain.PublisherWindow),
	})
	if err != nil {
		return domain.Dispute{}, err
	}

	if b.Status == bountyDomain.StatusOpen {
		if _, err := s.bounties.UpdateBountyStatus(ctx, storage.BountyChange{
			ID:   b.ID,
			From: bountyDomain.StatusOpen,
			To:   bountyDomain.StatusDisputed,
		}); err != nil && !errors.Is(err, fault.ErrConflict) {
			return domain.Dispute{}, err
		}
	}

	if s.reputation != nil {
		if _, err := s.reputation.Record(ctx, b.PublisherID, reputationDomain.Signals{DisputesReceived: 1}); err != nil {
			s.log.WithError(err).WithField("publisher_id", b.PublisherID).Warn("dispute signal not recorded")
		}
	}

	s.log.WithField("dispute_id", d.ID).
		WithField("submission_id", submissionID).
		WithField("bounty_id", b.ID).
		Info("dispute filed")

	// Objective bounties with a full verification pass skip the publisher
	// window entirely.
	if resolved, ok := s.tryVerificationResolve(ctx, d, b); ok {
		return resolved, nil
	}
	return d, nil
}

func (s *Service) tryVerificationResolve(ctx context.Context, d domain.Dispute, b bountyDomain.Bounty) (domain.Dispute, bool) {
	if s.verif == nil || !b.ObjectiveCriteria() {
		return domain.Dispute{}, false
	}
	res, err := s.verif.GetResult(ctx, d.SubmissionID)
	if err != nil || !res.AllPassed {
		return domain.Dispute{}, false
	}

	resolved, err := s.Resolve(ctx, auth.Identity{Subject: ResolvedByVerification, Role: auth.RoleAdmin}, d.ID, domain.StatusResolvedAgentFull, 0,
		fmt.Sprintf("auto-resolved: all %d verification cases passed on objective criteria", res.TotalCount))
	if err != nil {
		s.log.WithError(err).WithField("dispute_id", d.ID).Warn("verification auto-resolve failed")
		return domain.Dispute{}, false
	}
	return resolved, true
}

// Get retrieves one dispute.
func (s *Service) Get(ctx context.Context, id string) (domain.Dispute, error) {
	return s.store.GetDispute(ctx, id)
}

// List returns disputes for a bounty.
func (s *Service) List(ctx context.Context, bountyID string) ([]domain.Dispute, error) {
	return s.store.ListDisputes(ctx, bountyID)
}

// Respond records the publisher's rebuttal and opens the resolution window.
// Only legal from filed, before the publisher deadline.
func (s *Service) Respond(ctx context.Context, actor auth.Identity, disputeID, response string) (domain.Dispute, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return domain.Dispute{}, fault.Validation("response is required")
	}
	if len(response) > maxResponseLen {
		return domain.Dispute{}, fault.Validation("response must be at most %d characters", maxResponseLen)
	}

	d, err := s.store.GetDispute(ctx, disputeID)
	if err != nil {
		return domain.Dispute{}, err
	}
	if d.PublisherID != actor.Subject && !actor.IsAdmin() {
		return domain.Dispute{}, fault.Forbidden("only the publisher may respond to dispute %s", disputeID)
	}
	if d.Status != domain.StatusFiled {
		return domain.Dispute{}, fault.Transition("dispute %s is %s, responses are only accepted from filed", disputeID, d.Status)
	}
	now := s.now().UTC()
	if !now.Before(d.PublisherDeadline) {
		return domain.Dispute{}, fault.Transition("publisher deadline for dispute %s passed at %s", disputeID, d.PublisherDeadline.Format(time.RFC3339))
	}

	return s.store.UpdateDisputeStatus(ctx, storage.DisputeChange{
		ID:                 d.ID,
		From:               domain.StatusFiled,
		To:                 domain.StatusResponded,
		PublisherResponse:  response,
		RespondedAt:        now,
		ResolutionDeadline: now.Add(domain.ResolutionWindow),
	})
}

// StartReview moves a responded dispute under administrative review.
func (s *Service) StartReview(ctx context.Context, actor auth.Identity, disputeID string) (domain.Dispute, error) {
	if !actor.IsAdmin() {
		return domain.Dispute{}, fault.Forbidden("only administrators review disputes")
	}
	d, err := s.store.GetDispute(ctx, disputeID)
	if err != nil {
		return domain.Dispute{}, err
	}
	if !domain.CanTransition(d.Status, domain.StatusUnderReview) {
		return domain.Dispute{}, fault.Transition("dispute %s cannot move from %s to under_review", disputeID, d.Status)
	}
	return s.store.UpdateDisputeStatus(ctx, storage.DisputeChange{
		ID:   d.ID,
		From: d.Status,
		To:   domain.StatusUnderReview,
	})
}

// EvidenceInput carries one evidence artifact.
type EvidenceInput struct {
	ArtifactType   domain.ArtifactType
	Content        string
	CriterionIndex int // -1 when not tied to a criterion
}

// SubmitEvidence appends an artifact for either party while the dispute is
// live. Evidence locks once the dispute is terminal or an active deadline has
// silently elapsed.
func (s *Service) SubmitEvidence(ctx context.Context, actor auth.Identity, disputeID string, in EvidenceInput) (domain.Evidence, error) {
	if strings.TrimSpace(in.Content) == "" {
		return domain.Evidence{}, fault.Validation("evidence content is required")
	}
	switch in.ArtifactType {
	case domain.ArtifactText, domain.ArtifactURL, domain.ArtifactCodeReference,
		domain.ArtifactVerificationResult, domain.ArtifactCriterionResponse:
	default:
		return domain.Evidence{}, fault.Validation("unknown artifact type %q", in.ArtifactType)
	}

	d, err := s.store.GetDispute(ctx, disputeID)
	if err != nil {
		return domain.Evidence{}, err
	}

	var party domain.Party
	switch {
	case actor.IsAdmin():
		party = domain.PartyAdmin
	case actor.Subject == d.AgentID:
		party = domain.PartyAgent
	case actor.Subject == d.PublisherID:
		party = domain.PartyPublisher
	default:
		return domain.Evidence{}, fault.Forbidden("identity %s is not a party to dispute %s", actor.Subject, disputeID)
	}

	if domain.Terminal(d.Status) {
		return domain.Evidence{}, fault.Transition("dispute %s is closed", disputeID)
	}
	now := s.now().UTC()
	if d.Status == domain.StatusFiled && !now.Before(d.PublisherDeadline) {
		return domain.Evidence{}, fault.Transition("dispute %s is pending automatic resolution", disputeID)
	}
	if !d.ResolutionDeadline.IsZero() && !now.Before(d.ResolutionDeadline) {
		return domain.Evidence{}, fault.Transition("dispute %s is pending automatic resolution", disputeID)
	}

	return s.store.AppendEvidence(ctx, domain.Evidence{
		DisputeID:      disputeID,
		SubmittedBy:    actor.Subject,
		Party:          party,
		ArtifactType:   in.ArtifactType,
		Content:        in.Content,
		CriterionIndex: in.CriterionIndex,
		SubmittedAt:    now,
	})
}

// ListEvidence returns the evidence trail of a dispute.
func (s *Service) ListEvidence(ctx context.Context, disputeID string) ([]domain.Evidence, error) {
	return s.store.ListEvidence(ctx, disputeID)
}

// Resolve settles a dispute with one of the three outcomes, writing the
// ledger entries, wallet credits and status changes as one atomic unit.
// Administrative callers must hold the admin role; the sweep and the
// verification path use system identities.
func (s *Service) Resolve(ctx context.Context, actor auth.Identity, disputeID string, outcome domain.Status, splitBPS int, notes string) (domain.Dispute, error) {
	if !actor.IsAdmin() {
		return domain.Dispute{}, fault.Forbidden("only administrators resolve disputes")
	}
	if !domain.Resolved(outcome) {
		return domain.Dispute{}, fault.Validation("outcome %s is not a resolution", outcome)
	}

	d, err := s.store.GetDispute(ctx, disputeID)
	if err != nil {
		return domain.Dispute{}, err
	}
	if !domain.CanTransition(d.Status, outcome) {
		return domain.Dispute{}, fault.Transition("dispute %s cannot move from %s to %s", disputeID, d.Status, outcome)
	}

	b, err := s.bounties.GetBounty(ctx, d.BountyID)
	if err != nil {
		return domain.Dispute{}, err
	}
	agentWon := outcome != domain.StatusResolvedPublisher

	// The bounty edge must be legal too: once the bounty reached a settled
	// state through an award or a sibling dispute, the escrow is gone and no
	// further resolution may move money.
	target := bountyDomain.StatusAwarded
	if !agentWon {
		target = bountyDomain.StatusCancelled
	}
	if !bountyDomain.CanTransition(b.Status, target) {
		return domain.Dispute{}, fault.Transition("bounty %s is %s, its escrow is already settled", b.ID, b.Status)
	}

	payout, err := escrow.Resolve(b.RewardAmount, outcome, splitBPS)
	if err != nil {
		return domain.Dispute{}, err
	}

	settlement, err := s.buildResolution(ctx, d, b, outcome, splitBPS, payout, notes, actor.Subject)
	if err != nil {
		return domain.Dispute{}, err
	}
	if err := s.settle.ApplySettlement(ctx, settlement); err != nil {
		return domain.Dispute{}, err
	}

	resolved, err := s.store.GetDispute(ctx, disputeID)
	if err != nil {
		return domain.Dispute{}, err
	}
	s.log.WithField("dispute_id", disputeID).
		WithField("outcome", outcome).
		WithField("agent_amount", payout.AgentAmount).
		WithField("publisher_refund", payout.PublisherRefund).
		WithField("platform_fee", payout.PlatformFee).
		WithField("agent_won", agentWon).
		Info("dispute resolved")
	return resolved, nil
}

// buildResolution assembles the atomic write unit for one resolution.
func (s *Service) buildResolution(ctx context.Context, d domain.Dispute, b bountyDomain.Bounty, outcome domain.Status, splitBPS int, payout escrow.Payout, notes, resolvedBy string) (storage.Settlement, error) {
	agentWins := outcome == domain.StatusResolvedAgentFull || outcome == domain.StatusResolvedSplit
	now := s.now().UTC()

	if splitBPS == 0 && outcome == domain.StatusResolvedSplit {
		splitBPS = escrow.DefaultSplitBPS
	}

	settlement := storage.Settlement{
		Dispute: &storage.DisputeChange{
			ID:                 d.ID,
			From:               d.Status,
			To:                 outcome,
			ResolutionAmount:   payout.AgentAmount,
			ResolutionSplitBPS: splitBPS,
			ResolutionNotes:    notes,
			ResolvedBy:         resolvedBy,
			ResolvedAt:         now,
		},
	}

	// Only the non-zero money legs are written.
	if payout.AgentAmount > 0 {
		settlement.Transactions = append(settlement.Transactions, ledger.Transaction{
			AgentID:     d.AgentID,
			BountyID:    b.ID,
			DisputeID:   d.ID,
			Amount:      payout.AgentAmount,
			Type:        ledger.EntryDisputePayout,
			Description: fmt.Sprintf("dispute %s resolved %s", d.ID, outcome),
		})
		settlement.Credits = append(settlement.Credits, storage.WalletCredit{
			OwnerID:        d.AgentID,
			Amount:         payout.AgentAmount,
			TasksCompleted: 1,
		})
	}
	if payout.PublisherRefund > 0 {
		settlement.Transactions = append(settlement.Transactions, ledger.Transaction{
			UserID:      d.PublisherID,
			BountyID:    b.ID,
			DisputeID:   d.ID,
			Amount:      payout.PublisherRefund,
			Type:        ledger.EntryDisputeRefund,
			Description: fmt.Sprintf("dispute %s refund to publisher", d.ID),
		})
		settlement.Credits = append(settlement.Credits, storage.WalletCredit{
			OwnerID: d.PublisherID,
			Amount:  payout.PublisherRefund,
		})
	}
	if payout.PlatformFee > 0 {
		settlement.Transactions = append(settlement.Transactions, ledger.Transaction{
			BountyID:    b.ID,
			DisputeID:   d.ID,
			Amount:      payout.PlatformFee,
			Type:        ledger.EntryPlatformFee,
			Description: fmt.Sprintf("platform fee on dispute %s", d.ID),
		})
	}

	sub, err := s.submissions.GetSubmission(ctx, d.SubmissionID)
	if err != nil {
		return storage.Settlement{}, err
	}

	if agentWins {
		if sub.Status != submissionDomain.StatusAccepted {
			settlement.Submissions = append(settlement.Submissions, storage.SubmissionChange{
				ID:   sub.ID,
				From: sub.Status,
				To:   submissionDomain.StatusAccepted,
			})
		}
		siblings, err := s.submissions.ListSubmissions(ctx, b.ID)
		if err != nil {
			return storage.Settlement{}, err
		}
		for _, sib := range siblings {
			if sib.ID == sub.ID || sib.Status != submissionDomain.StatusSubmitted {
				continue
			}
			settlement.Submissions = append(settlement.Submissions, storage.SubmissionChange{
				ID:              sib.ID,
				From:            submissionDomain.StatusSubmitted,
				To:              submissionDomain.StatusRejected,
				RejectionReason: siblingRejectionOnResolution,
			})
		}
		settlement.Bounty = &storage.BountyChange{
			ID:                  b.ID,
			From:                b.Status,
			To:                  bountyDomain.StatusAwarded,
			AwardedSubmissionID: sub.ID,
		}
		settlement.Reputation = map[string]reputationDomain.Signals{
			d.PublisherID: {DisputesLost: 1},
		}
	} else {
		if sub.Status != submissionDomain.StatusRejected {
			settlement.Submissions = append(settlement.Submissions, storage.SubmissionChange{
				ID:   sub.ID,
				From: sub.Status,
				To:   submissionDomain.StatusRejected,
			})
		}
		settlement.Bounty = &storage.BountyChange{
			ID:   b.ID,
			From: b.Status,
			To:   bountyDomain.StatusCancelled,
		}
	}

	return settlement, nil
}

const siblingRejectionOnResolution = "bounty settled through dispute resolution"

// Withdraw lets the filing agent abandon a live dispute. While the escrow is
// still held the full reward is refunded to the publisher and the bounty is
// cancelled; on an already-settled bounty only the dispute closes.
func (s *Service) Withdraw(ctx context.Context, agentID, disputeID string) (domain.Dispute, error) {
	d, err := s.store.GetDispute(ctx, disputeID)
	if err != nil {
		return domain.Dispute{}, err
	}
	if d.AgentID != agentID {
		return domain.Dispute{}, fault.Forbidden("only the filing agent may withdraw dispute %s", disputeID)
	}
	if !domain.CanTransition(d.Status, domain.StatusWithdrawn) {
		return domain.Dispute{}, fault.Transition("dispute %s cannot move from %s to withdrawn", disputeID, d.Status)
	}

	b, err := s.bounties.GetBounty(ctx, d.BountyID)
	if err != nil {
		return domain.Dispute{}, err
	}

	settlement := storage.Settlement{
		Dispute: &storage.DisputeChange{
			ID:         d.ID,
			From:       d.Status,
			To:         domain.StatusWithdrawn,
			ResolvedAt: s.now().UTC(),
			ResolvedBy: agentID,
		},
	}
	// The refund leg exists only while the escrow is still held. A bounty
	// already settled through an award or a sibling dispute keeps its outcome;
	// withdrawing then merely closes this dispute.
	if bountyDomain.CanTransition(b.Status, bountyDomain.StatusCancelled) {
		settlement.Transactions = []ledger.Transaction{{
			UserID:      d.PublisherID,
			BountyID:    b.ID,
			DisputeID:   d.ID,
			Amount:      b.RewardAmount,
			Type:        ledger.EntryDisputeRefund,
			Description: fmt.Sprintf("dispute %s withdrawn by agent", d.ID),
		}}
		settlement.Credits = []storage.WalletCredit{{OwnerID: d.PublisherID, Amount: b.RewardAmount}}
		settlement.Bounty = &storage.BountyChange{
			ID:   b.ID,
			From: b.Status,
			To:   bountyDomain.StatusCancelled,
		}
	}

	if err := s.settle.ApplySettlement(ctx, settlement); err != nil {
		return domain.Dispute{}, err
	}

	withdrawn, err := s.store.GetDispute(ctx, disputeID)
	if err != nil {
		return domain.Dispute{}, err
	}
	s.log.WithField("dispute_id", disputeID).Info("dispute withdrawn")
	return withdrawn, nil
}

// ResolveExpired force-resolves an overdue dispute in the agent's favor: the
// party that failed to act forfeits. Used by the deadline sweep.
func (s *Service) ResolveExpired(ctx context.Context, d domain.Dispute) (domain.Dispute, error) {
	return s.Resolve(ctx, auth.Identity{Subject: ResolvedBySystem, Role: auth.RoleAdmin}, d.ID, domain.StatusResolvedAgentFull, 0,
		"auto-resolved: response deadline passed without action")
}
