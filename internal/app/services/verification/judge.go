// Package verification adapts an external sandboxed code-execution service
// into the uniform verdict set consumed by dispute resolution.
package verification

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/taskforge/platform/internal/app/domain/fault"
	domain "github.com/taskforge/platform/internal/app/domain/verification"
	"github.com/taskforge/platform/internal/app/storage"
	"github.com/taskforge/platform/pkg/logger"
)

// Client submits batches to the execution service and polls their progress.
type Client interface {
	// SubmitBatch enqueues one run per test case and returns opaque tokens in
	// the same order as the cases.
	SubmitBatch(ctx context.Context, language, source string, cases []domain.TestCase) ([]string, error)
	// Poll fetches the current state of every token. Items not yet judged have
	// Done == false.
	Poll(ctx context.Context, tokens []string) ([]RawResult, error)
}

// RawResult is the service's view of one run before verdict mapping.
type RawResult struct {
	Token       string
	Done        bool
	StatusCode  int
	Description string
	Stdout      string
	WallTimeMS  int64
	MemoryKB    int64
}

// Status codes of the execution service.
const (
	rawStatusQueued     = 1
	rawStatusProcessing = 2
	rawStatusAccepted   = 3
	rawStatusWrongAns   = 4
	rawStatusTimeLimit  = 5
	rawStatusCompileErr = 6
	rawStatusMemLimit   = 13
	rawRuntimeErrLow    = 7
	rawRuntimeErrHigh   = 12
)

// MapVerdict translates a raw terminal status into the uniform verdict set.
func MapVerdict(statusCode int) (domain.Verdict, error) {
	switch {
	case statusCode == rawStatusAccepted:
		return domain.VerdictAC, nil
	case statusCode == rawStatusWrongAns:
		return domain.VerdictWA, nil
	case statusCode == rawStatusTimeLimit:
		return domain.VerdictTLE, nil
	case statusCode == rawStatusCompileErr:
		return domain.VerdictCE, nil
	case statusCode == rawStatusMemLimit:
		return domain.VerdictMLE, nil
	case statusCode >= rawRuntimeErrLow && statusCode <= rawRuntimeErrHigh:
		return domain.VerdictRE, nil
	}
	return "", fmt.Errorf("unmapped judge status %d", statusCode)
}

// Service runs verification batches and persists the aggregated results.
type Service struct {
	store   storage.VerificationStore
	client  Client
	limiter *rate.Limiter
	log     *logger.Logger

	attempts int
	interval time.Duration
}

// New constructs a verification service. The poll budget defaults to
// 20 attempts at 3s apart, a ceiling of roughly one minute per batch.
func New(store storage.VerificationStore, client Client, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("verification")
	}
	return &Service{
		store:    store,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(5), 10),
		log:      log,
		attempts: 20,
		interval: 3 * time.Second,
	}
}

// AddTestCase registers a test case for a bounty.
func (s *Service) AddTestCase(ctx context.Context, tc domain.TestCase) (domain.TestCase, error) {
	return s.store.CreateTestCase(ctx, tc)
}

// ListTestCases returns the cases registered on a bounty.
func (s *Service) ListTestCases(ctx context.Context, bountyID string) ([]domain.TestCase, error) {
	return s.store.ListTestCases(ctx, bountyID)
}

// Result returns a previously stored verification result.
func (s *Service) Result(ctx context.Context, submissionID string) (domain.Result, error) {
	return s.store.GetResult(ctx, submissionID)
}

// Verify runs every test case of the bounty against the submitted source and
// stores the aggregated result. This is a long-latency call and must never be
// invoked while holding a settlement transaction.
func (s *Service) Verify(ctx context.Context, submissionID, bountyID, language, source string) (domain.Result, error) {
	cases, err := s.store.ListTestCases(ctx, bountyID)
	if err != nil {
		return domain.Result{}, err
	}
	if len(cases) == 0 {
		return domain.Result{}, fmt.Errorf("bounty %s has no test cases", bountyID)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return domain.Result{}, err
	}

	tokens, err := s.client.SubmitBatch(ctx, language, source, cases)
	if err != nil {
		return domain.Result{}, fault.Upstream("submit batch: %v", err)
	}
	if len(tokens) != len(cases) {
		return domain.Result{}, fault.Upstream("judge returned %d tokens for %d cases", len(tokens), len(cases))
	}

	raw, err := s.awaitBatch(ctx, tokens)
	if err != nil {
		return domain.Result{}, err
	}

	result := domain.Result{
		SubmissionID: submissionID,
		TotalCount:   len(cases),
		AllPassed:    true,
		CompletedAt:  time.Now().UTC(),
	}
	for i, r := range raw {
		verdict, err := MapVerdict(r.StatusCode)
		if err != nil {
			return domain.Result{}, fault.Upstream("case %s: %v", cases[i].ID, err)
		}
		cr := domain.CaseResult{
			TestCaseID: cases[i].ID,
			Verdict:    verdict,
			WallTimeMS: r.WallTimeMS,
			MemoryKB:   r.MemoryKB,
			Public:     cases[i].Public,
		}
		// Private-case outputs never leave the adapter.
		if cases[i].Public {
			cr.ActualOutput = r.Stdout
		}
		if verdict == domain.VerdictAC {
			result.PassedCount++
		} else {
			result.AllPassed = false
		}
		result.Cases = append(result.Cases, cr)
	}

	stored, err := s.store.SaveResult(ctx, result)
	if err != nil {
		return domain.Result{}, err
	}
	s.log.WithField("submission_id", submissionID).
		WithField("passed", result.PassedCount).
		WithField("total", result.TotalCount).
		Info("verification completed")
	return stored, nil
}

// awaitBatch polls until every item is terminal or the attempt budget runs out.
func (s *Service) awaitBatch(ctx context.Context, tokens []string) ([]RawResult, error) {
	var last []RawResult
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.interval):
			}
		}

		raw, err := s.client.Poll(ctx, tokens)
		if err != nil {
			return nil, fault.Upstream("poll batch: %v", err)
		}
		if len(raw) != len(tokens) {
			return nil, fault.Upstream("judge returned %d items for %d tokens", len(raw), len(tokens))
		}
		last = raw

		allDone := true
		for _, r := range raw {
			if !r.Done {
				allDone = false
				break
			}
		}
		if allDone {
			return raw, nil
		}
	}

	pending := 0
	for _, r := range last {
		if !r.Done {
			pending++
		}
	}
	return nil, fault.Upstream("verification timed out with %d of %d cases unjudged", pending, len(tokens))
}
