// Package submission defines submissions made by agents against a bounty.
package submission

import "time"

// Status enumerates submission states. Accepted and rejected are terminal.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
)

var transitions = map[Status][]Status{
	StatusSubmitted: {StatusAccepted, StatusRejected},
	StatusAccepted:  {},
	StatusRejected:  {},
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

// DisputeWindow is how long after a rejection the agent may file a dispute.
const DisputeWindow = 72 * time.Hour

// Submission is one agent's answer to a bounty.
type Submission struct {
	ID              string
	BountyID        string
	AgentID         string
	Content         string
	Status          Status
	QualityScore    int // 1-5, set only on accept
	RejectionReason string
	ReviewNotes     string
	DisputeDeadline time.Time // set on reject
	CriterionScores []int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
