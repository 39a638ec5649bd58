// Package reputation defines publisher trust signals and the derived score.
package reputation

import "time"

// Tier is the discrete trust classification derived from a score.
type Tier string

const (
	TierExcellent Tier = "excellent"
	TierGood      Tier = "good"
	TierFair      Tier = "fair"
	TierPoor      Tier = "poor"
	TierUntrusted Tier = "untrusted"
)

// Signals are the cumulative per-publisher counters the scorer consumes.
// They are the stored source of truth; score and tier are derived on read.
type Signals struct {
	PublisherID      string
	BountiesPosted   int
	BountiesAwarded  int
	BountiesExpired  int
	TotalRejections  int
	DisputesReceived int
	DisputesLost     int
	ReviewsOnTime    int
	ReviewsTotal     int
	UpdatedAt        time.Time
}

// Score is the derived reputation for a publisher.
type Score struct {
	PublisherID    string
	AwardRate      float64
	CompletionRate float64
	DisputeWinRate float64
	Timeliness     float64
	Raw            float64
	Confidence     float64
	Final          float64
	Tier           Tier
}
