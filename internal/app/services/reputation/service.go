// Package reputation derives publisher trust scores from cumulative signals.
package reputation

import (
	"context"
	"math"

	domain "github.com/taskforge/platform/internal/app/domain/reputation"
	"github.com/taskforge/platform/internal/app/storage"
	"github.com/taskforge/platform/pkg/logger"
)

// Blend weights and priors. The weights are tunable; the boundary behaviors
// (confidence scaling, tier bands, low-sample override) are contractual.
const (
	weightAwardRate      = 0.30
	weightCompletionRate = 0.20
	weightDisputeWinRate = 0.30
	weightTimeliness     = 0.20

	neutralPrior       = 60.0
	fullConfidenceAt   = 20 // bounties posted for confidence 1.0
	lowSampleThreshold = 3  // below this, tier is forced to good
)

// Service computes scores on read from stored signals.
type Service struct {
	store storage.ReputationStore
	log   *logger.Logger
}

// New constructs a reputation service.
func New(store storage.ReputationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("reputation")
	}
	return &Service{store: store, log: log}
}

// Score fetches the publisher's signals and derives the current score.
func (s *Service) Score(ctx context.Context, publisherID string) (domain.Score, error) {
	sig, err := s.store.GetSignals(ctx, publisherID)
	if err != nil {
		return domain.Score{}, err
	}
	return Compute(sig), nil
}

// Record accumulates a signal delta for the publisher.
func (s *Service) Record(ctx context.Context, publisherID string, delta domain.Signals) (domain.Signals, error) {
	return s.store.AddSignals(ctx, publisherID, delta)
}

// Compute derives the score and tier from raw signals. Undefined ratios (zero
// denominator) contribute 0 to the blend.
func Compute(sig domain.Signals) domain.Score {
	score := domain.Score{PublisherID: sig.PublisherID}

	if sig.BountiesPosted > 0 {
		score.AwardRate = 100 * float64(sig.BountiesAwarded) / float64(sig.BountiesPosted)
		score.CompletionRate = 100 * (1 - float64(sig.BountiesExpired)/float64(sig.BountiesPosted))
	}
	// A publisher with no disputes has a perfect dispute record.
	score.DisputeWinRate = 100 * (1 - float64(sig.DisputesLost)/math.Max(float64(sig.DisputesReceived), 1))
	if sig.ReviewsTotal > 0 {
		score.Timeliness = 100 * float64(sig.ReviewsOnTime) / float64(sig.ReviewsTotal)
	}

	score.AwardRate = clamp(score.AwardRate)
	score.CompletionRate = clamp(score.CompletionRate)
	score.DisputeWinRate = clamp(score.DisputeWinRate)
	score.Timeliness = clamp(score.Timeliness)

	score.Raw = weightAwardRate*score.AwardRate +
		weightCompletionRate*score.CompletionRate +
		weightDisputeWinRate*score.DisputeWinRate +
		weightTimeliness*score.Timeliness

	score.Confidence = math.Min(1, float64(sig.BountiesPosted)/float64(fullConfidenceAt))
	score.Final = score.Confidence*score.Raw + (1-score.Confidence)*neutralPrior
	score.Tier = tierFor(score.Final, sig.BountiesPosted)
	return score
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func tierFor(final float64, posted int) domain.Tier {
	if posted < lowSampleThreshold {
		return domain.TierGood
	}
	switch {
	case final >= 80:
		return domain.TierExcellent
	case final >= 60:
		return domain.TierGood
	case final >= 40:
		return domain.TierFair
	case final >= 20:
		return domain.TierPoor
	default:
		return domain.TierUntrusted
	}
}

// CanPost reports whether a publisher of the given tier may post bounties.
func CanPost(tier domain.Tier) bool {
	return tier != domain.TierUntrusted
}

// ShouldWarn reports whether agents should see a caution flag for the tier.
func ShouldWarn(tier domain.Tier) bool {
	return tier == domain.TierFair || tier == domain.TierPoor
}
