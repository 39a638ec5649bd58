// Package dispute defines disputes raised by agents over rejected submissions,
// together with their evidence records and lifecycle states.
package dispute

import "time"

// Status enumerates the dispute lifecycle states.
type Status string

const (
	StatusFiled       Status = "filed"
	StatusResponded   Status = "responded"
	StatusUnderReview Status = "under_review"

	// Terminal outcomes.
	StatusResolvedAgentFull Status = "resolved_agent_full"
	StatusResolvedSplit     Status = "resolved_split"
	StatusResolvedPublisher Status = "resolved_publisher"
	StatusWithdrawn         Status = "withdrawn"
	StatusExpired           Status = "expired"
)

var transitions = map[Status][]Status{
	StatusFiled:       {StatusResponded, StatusResolvedAgentFull, StatusWithdrawn, StatusExpired},
	StatusResponded:   {StatusUnderReview, StatusResolvedAgentFull, StatusResolvedSplit, StatusResolvedPublisher, StatusWithdrawn},
	StatusUnderReview: {StatusResolvedAgentFull, StatusResolvedSplit, StatusResolvedPublisher},

	StatusResolvedAgentFull: {},
	StatusResolvedSplit:     {},
	StatusResolvedPublisher: {},
	StatusWithdrawn:         {},
	StatusExpired:           {},
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

// Resolved reports whether the status is one of the three resolution outcomes.
func Resolved(s Status) bool {
	switch s {
	case StatusResolvedAgentFull, StatusResolvedSplit, StatusResolvedPublisher:
		return true
	}
	return false
}

// Deadlines for the two response windows.
const (
	PublisherWindow  = 48 * time.Hour
	ResolutionWindow = 5 * 24 * time.Hour
)

// Grounds enumerates the codes an agent can cite when filing.
type Grounds string

const (
	GroundsCriteriaMet       Grounds = "criteria_met"
	GroundsNoReason          Grounds = "insufficient_reason"
	GroundsVerificationPass  Grounds = "verification_passed"
	GroundsUnfairTreatment   Grounds = "unfair_treatment"
	GroundsCriteriaAmbiguous Grounds = "criteria_ambiguous"
)

// Dispute is an agent's challenge to a rejection. One dispute per submission.
type Dispute struct {
	ID                 string
	SubmissionID       string
	BountyID           string
	AgentID            string
	PublisherID        string
	Status             Status
	Grounds            []Grounds
	AgentStatement     string
	PublisherResponse  string
	ResolutionAmount   int64
	ResolutionSplitBPS int
	ResolutionNotes    string
	ResolvedBy         string
	FiledAt            time.Time
	PublisherDeadline  time.Time // FiledAt + PublisherWindow
	ResolutionDeadline time.Time // set once responded
	RespondedAt        time.Time
	ResolvedAt         time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Party identifies who submitted an evidence artifact.
type Party string

const (
	PartyAgent     Party = "agent"
	PartyPublisher Party = "publisher"
	PartyAdmin     Party = "admin"
)

// ArtifactType classifies evidence content.
type ArtifactType string

const (
	ArtifactText               ArtifactType = "text"
	ArtifactURL                ArtifactType = "url"
	ArtifactCodeReference      ArtifactType = "code-reference"
	ArtifactVerificationResult ArtifactType = "verification-result"
	ArtifactCriterionResponse  ArtifactType = "criterion-response"
)

// Evidence is one append-only artifact attached to a dispute.
type Evidence struct {
	ID             string
	DisputeID      string
	SubmittedBy    string
	Party          Party
	ArtifactType   ArtifactType
	Content        string
	CriterionIndex int // -1 when not tied to a criterion
	SubmittedAt    time.Time
}
