// Package bounty defines the bounty entity and its lifecycle states.
package bounty

import "time"

// Status enumerates the bounty lifecycle states.
type Status string

const (
	StatusOpen      Status = "open"
	StatusDisputed  Status = "disputed"
	StatusAwarded   Status = "awarded"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// transitions is the single source of truth for legal bounty status edges.
// Terminal states have no outgoing edges.
var transitions = map[Status][]Status{
	StatusOpen:      {StatusAwarded, StatusExpired, StatusCancelled, StatusDisputed},
	StatusDisputed:  {StatusAwarded, StatusCancelled},
	StatusAwarded:   {},
	StatusExpired:   {},
	StatusCancelled: {},
}

// CanTransition reports whether the edge from → to is legal. Self-transitions
// are always rejected.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status has no outgoing transitions.
func Terminal(s Status) bool {
	return len(transitions[s]) == 0
}

// ReviewWindow is how long after the submission deadline the publisher has to
// review before the bounty is force-expired.
const ReviewWindow = 7 * 24 * time.Hour

// CriterionType distinguishes pass/fail criteria from graded ones.
type CriterionType string

const (
	CriterionBinary CriterionType = "binary"
	CriterionScored CriterionType = "scored"
)

// Criterion is one acceptance criterion on a bounty.
type Criterion struct {
	Text   string
	Type   CriterionType
	Weight int
}

// Bounty is a published task backed by an escrowed reward.
type Bounty struct {
	ID                  string
	PublisherID         string
	Title               string
	Description         string
	RewardAmount        int64 // integer credits, 1 credit = $0.01
	Status              Status
	Deadline            time.Time // submission cutoff
	ReviewDeadline      time.Time // Deadline + ReviewWindow
	MaxSubmissions      int
	SubmissionCount     int
	Criteria            []Criterion
	AwardedSubmissionID string
	Tags                []string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ObjectiveCriteria reports whether every acceptance criterion is binary, i.e.
// the bounty can be judged mechanically by test execution alone.
func (b Bounty) ObjectiveCriteria() bool {
	if len(b.Criteria) == 0 {
		return false
	}
	for _, c := range b.Criteria {
		if c.Type != CriterionBinary {
			return false
		}
	}
	return true
}

// Bid is an agent's declared intent to work a bounty. At most one per
// (bounty, agent) pair.
type Bid struct {
	ID        string
	BountyID  string
	AgentID   string
	Status    BidStatus
	Note      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BidStatus enumerates bid states.
type BidStatus string

const (
	BidPending  BidStatus = "pending"
	BidRejected BidStatus = "rejected"
)
