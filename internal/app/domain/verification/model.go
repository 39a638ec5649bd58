// Package verification defines test cases and the uniform verdict set the
// external code-execution service is mapped onto.
package verification

import "time"

// Verdict is the outcome classification of one automated test-case execution.
type Verdict string

const (
	VerdictAC  Verdict = "AC"  // accepted
	VerdictWA  Verdict = "WA"  // wrong answer
	VerdictTLE Verdict = "TLE" // time limit exceeded
	VerdictRE  Verdict = "RE"  // runtime error
	VerdictCE  Verdict = "CE"  // compile error
	VerdictMLE Verdict = "MLE" // memory limit exceeded
)

// TestCase is one input/expected-output pair attached to a bounty.
type TestCase struct {
	ID             string
	BountyID       string
	Stdin          string
	ExpectedOutput string
	Public         bool
	TimeLimitMS    int64
	MemoryLimitKB  int64
	CreatedAt      time.Time
}

// CaseResult is the judged outcome of one test case. ActualOutput is populated
// only for public test cases.
type CaseResult struct {
	TestCaseID   string
	Verdict      Verdict
	WallTimeMS   int64
	MemoryKB     int64
	ActualOutput string
	Public       bool
}

// Result aggregates a full verification run for one submission.
type Result struct {
	SubmissionID string
	AllPassed    bool
	PassedCount  int
	TotalCount   int
	Cases        []CaseResult
	CompletedAt  time.Time
}
