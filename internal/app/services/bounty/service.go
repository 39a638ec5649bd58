// Package bounty manages bounty publication, bidding and cancellation.
package bounty

import (
	"context"
	"strings"
	"time"

	domain "github.com/taskforge/platform/internal/app/domain/bounty"
	"github.com/taskforge/platform/internal/app/domain/fault"
	"github.com/taskforge/platform/internal/app/domain/ledger"
	reputationDomain "github.com/taskforge/platform/internal/app/domain/reputation"
	"github.com/taskforge/platform/internal/app/notify"
	"github.com/taskforge/platform/internal/app/services/reputation"
	"github.com/taskforge/platform/internal/app/storage"
	"github.com/taskforge/platform/internal/auth"
	"github.com/taskforge/platform/pkg/logger"
)

// Service coordinates the bounty side of the marketplace.
type Service struct {
	store      storage.BountyStore
	ledger     storage.LedgerStore
	settle     storage.SettlementStore
	reputation *reputation.Service
	notifier   notify.Notifier
	log        *logger.Logger

	now func() time.Time
}

// New constructs a bounty service.
func New(store storage.BountyStore, ledgerStore storage.LedgerStore, settle storage.SettlementStore, rep *reputation.Service, notifier notify.Notifier, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("bounty")
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(log)
	}
	return &Service{
		store:      store,
		ledger:     ledgerStore,
		settle:     settle,
		reputation: rep,
		notifier:   notifier,
		log:        log,
		now:        time.Now,
	}
}

// CreateInput carries the fields of a new bounty.
type CreateInput struct {
	Title          string
	Description    string
	RewardAmount   int64
	Deadline       time.Time
	MaxSubmissions int
	Criteria       []domain.Criterion
	Tags           []string
}

// Create publishes a bounty and moves the reward from the publisher's wallet
// into escrow. The publisher's tier must permit posting.
func (s *Service) Create(ctx context.Context, publisherID string, in CreateInput) (domain.Bounty, error) {
	publisherID = strings.TrimSpace(publisherID)
	in.Title = strings.TrimSpace(in.Title)

	if publisherID == "" {
		return domain.Bounty{}, fault.Validation("publisher_id is required")
	}
	if in.Title == "" {
		return domain.Bounty{}, fault.Validation("title is required")
	}
	if in.RewardAmount <= 0 {
		return domain.Bounty{}, fault.Validation("reward_amount must be a positive integer")
	}
	if !in.Deadline.After(s.now()) {
		return domain.Bounty{}, fault.Validation("deadline must be in the future")
	}
	if in.MaxSubmissions <= 0 {
		return domain.Bounty{}, fault.Validation("max_submissions must be positive")
	}
	for i, c := range in.Criteria {
		if strings.TrimSpace(c.Text) == "" {
			return domain.Bounty{}, fault.Validation("criterion %d text is required", i)
		}
		if c.Type != domain.CriterionBinary && c.Type != domain.CriterionScored {
			return domain.Bounty{}, fault.Validation("criterion %d has unknown type %q", i, c.Type)
		}
		if c.Weight <= 0 {
			return domain.Bounty{}, fault.Validation("criterion %d weight must be positive", i)
		}
	}

	if s.reputation != nil {
		score, err := s.reputation.Score(ctx, publisherID)
		if err != nil {
			return domain.Bounty{}, err
		}
		if !reputation.CanPost(score.Tier) {
			return domain.Bounty{}, fault.Forbidden("publisher tier %s may not post bounties", score.Tier)
		}
	}

	// Escrow funding first; compensated if the bounty record cannot be written.
	if _, err := s.ledger.DebitWallet(ctx, publisherID, in.RewardAmount); err != nil {
		return domain.Bounty{}, err
	}

	b := domain.Bounty{
		PublisherID:    publisherID,
		Title:          in.Title,
		Description:    in.Description,
		RewardAmount:   in.RewardAmount,
		Status:         domain.StatusOpen,
		Deadline:       in.Deadline.UTC(),
		ReviewDeadline: in.Deadline.UTC().Add(domain.ReviewWindow),
		MaxSubmissions: in.MaxSubmissions,
		Criteria:       in.Criteria,
		Tags:           in.Tags,
	}
	b, err := s.store.CreateBounty(ctx, b)
	if err != nil {
		if _, creditErr := s.ledger.CreditWallet(ctx, publisherID, in.RewardAmount); creditErr != nil {
			s.log.WithError(creditErr).WithField("publisher_id", publisherID).
				Error("escrow compensation failed after bounty create error")
		}
		return domain.Bounty{}, err
	}

	if _, err := s.ledger.CreateTransaction(ctx, ledger.Transaction{
		UserID:      publisherID,
		BountyID:    b.ID,
		Amount:      in.RewardAmount,
		Type:        ledger.EntryEscrowHold,
		Description: "reward held in escrow",
	}); err != nil {
		s.log.WithError(err).WithField("bounty_id", b.ID).Warn("escrow hold entry not recorded")
	}

	if s.reputation != nil {
		if _, err := s.reputation.Record(ctx, publisherID, reputationDomain.Signals{BountiesPosted: 1}); err != nil {
			s.log.WithError(err).WithField("publisher_id", publisherID).Warn("posted signal not recorded")
		}
	}

	s.notifier.BountyCreated(ctx, b)

	s.log.WithField("bounty_id", b.ID).
		WithField("publisher_id", publisherID).
		WithField("reward", b.RewardAmount).
		Info("bounty published")
	return b, nil
}

// Get retrieves one bounty.
func (s *Service) Get(ctx context.Context, id string) (domain.Bounty, error) {
	return s.store.GetBounty(ctx, id)
}

// List returns bounties, optionally filtered by publisher.
func (s *Service) List(ctx context.Context, publisherID string) ([]domain.Bounty, error) {
	return s.store.ListBounties(ctx, publisherID)
}

// PlaceBid records an agent's intent to work an open bounty. At most one bid
// per agent per bounty.
func (s *Service) PlaceBid(ctx context.Context, agentID, bountyID, note string) (domain.Bid, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return domain.Bid{}, fault.Validation("agent_id is required")
	}

	b, err := s.store.GetBounty(ctx, bountyID)
	if err != nil {
		return domain.Bid{}, err
	}
	if b.Status != domain.StatusOpen {
		return domain.Bid{}, fault.Transition("bounty %s is %s, not open for bids", bountyID, b.Status)
	}
	if !s.now().Before(b.Deadline) {
		return domain.Bid{}, fault.Validation("bounty %s is past its submission deadline", bountyID)
	}

	return s.store.CreateBid(ctx, domain.Bid{
		BountyID: bountyID,
		AgentID:  agentID,
		Status:   domain.BidPending,
		Note:     strings.TrimSpace(note),
	})
}

// ListBids returns the bids on a bounty.
func (s *Service) ListBids(ctx context.Context, bountyID string) ([]domain.Bid, error) {
	return s.store.ListBids(ctx, bountyID)
}

// Cancel withdraws an open bounty and refunds the escrowed reward in full.
// Only the bounty's publisher or an administrator may cancel.
func (s *Service) Cancel(ctx context.Context, actor auth.Identity, bountyID string) (domain.Bounty, error) {
	b, err := s.store.GetBounty(ctx, bountyID)
	if err != nil {
		return domain.Bounty{}, err
	}
	if b.PublisherID != actor.Subject && !actor.IsAdmin() {
		return domain.Bounty{}, fault.Forbidden("only the publisher or an administrator may cancel bounty %s", bountyID)
	}
	if !domain.CanTransition(b.Status, domain.StatusCancelled) {
		return domain.Bounty{}, fault.Transition("bounty %s cannot move from %s to cancelled", bountyID, b.Status)
	}
	if b.Status != domain.StatusOpen {
		// Disputed bounties are cancelled through dispute resolution, not here.
		return domain.Bounty{}, fault.Transition("bounty %s is under dispute", bountyID)
	}

	err = s.settle.ApplySettlement(ctx, storage.Settlement{
		Transactions: []ledger.Transaction{{
			UserID:      b.PublisherID,
			BountyID:    b.ID,
			Amount:      b.RewardAmount,
			Type:        ledger.EntryBountyRefund,
			Description: "bounty cancelled by publisher",
		}},
		Credits: []storage.WalletCredit{{OwnerID: b.PublisherID, Amount: b.RewardAmount}},
		Bounty:  &storage.BountyChange{ID: b.ID, From: domain.StatusOpen, To: domain.StatusCancelled},
	})
	if err != nil {
		return domain.Bounty{}, err
	}

	if _, err := s.store.RejectPendingBids(ctx, b.ID); err != nil {
		s.log.WithError(err).WithField("bounty_id", b.ID).Warn("pending bids not rejected on cancel")
	}

	cancelled, err := s.store.GetBounty(ctx, b.ID)
	if err != nil {
		return domain.Bounty{}, err
	}
	s.notifier.BountySettled(ctx, cancelled)
	s.log.WithField("bounty_id", b.ID).Info("bounty cancelled and refunded")
	return cancelled, nil
}

// Transactions returns the ledger trail for a bounty.
func (s *Service) Transactions(ctx context.Context, bountyID string) ([]ledger.Transaction, error) {
	return s.ledger.ListTransactions(ctx, bountyID)
}

// Wallet returns the current balance and counters for an owner. Owners that
// never transacted get a zero-valued wallet.
func (s *Service) Wallet(ctx context.Context, ownerID string) (ledger.Wallet, error) {
	return s.ledger.GetWallet(ctx, ownerID)
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}
