package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskforge/platform/internal/app/domain/fault"
	domain "github.com/taskforge/platform/internal/app/domain/verification"
	"github.com/taskforge/platform/internal/app/storage/memory"
)

type fakeClient struct {
	polls     int
	pending   int // number of polls reporting unjudged items
	statuses  []int
	outputs   []string
	submitErr error
}

func (f *fakeClient) SubmitBatch(_ context.Context, _, _ string, cases []domain.TestCase) ([]string, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	tokens := make([]string, len(cases))
	for i := range cases {
		tokens[i] = cases[i].ID
	}
	return tokens, nil
}

func (f *fakeClient) Poll(_ context.Context, tokens []string) ([]RawResult, error) {
	f.polls++
	results := make([]RawResult, len(tokens))
	for i, token := range tokens {
		done := f.polls > f.pending
		results[i] = RawResult{
			Token:      token,
			Done:       done,
			StatusCode: f.statuses[i],
			Stdout:     f.outputs[i],
			WallTimeMS: 12,
			MemoryKB:   2048,
		}
	}
	return results, nil
}

func seedCases(t *testing.T, store *memory.Store) []domain.TestCase {
	t.Helper()
	public, err := store.CreateTestCase(context.Background(), domain.TestCase{
		BountyID: "b1", Stdin: "1 2", ExpectedOutput: "3", Public: true,
	})
	if err != nil {
		t.Fatalf("create public case: %v", err)
	}
	private, err := store.CreateTestCase(context.Background(), domain.TestCase{
		BountyID: "b1", Stdin: "5 5", ExpectedOutput: "10", Public: false,
	})
	if err != nil {
		t.Fatalf("create private case: %v", err)
	}
	return []domain.TestCase{public, private}
}

func TestVerify_AllPassed(t *testing.T) {
	store := memory.New()
	seedCases(t, store)

	client := &fakeClient{statuses: []int{3, 3}, outputs: []string{"3", "10"}}
	svc := New(store, client, nil)
	svc.interval = time.Millisecond

	res, err := svc.Verify(context.Background(), "s1", "b1", "go", "package main")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.AllPassed || res.PassedCount != 2 || res.TotalCount != 2 {
		t.Fatalf("unexpected aggregate: %+v", res)
	}

	// Public output is surfaced, private is withheld.
	if res.Cases[0].ActualOutput != "3" {
		t.Fatalf("public output missing: %+v", res.Cases[0])
	}
	if res.Cases[1].ActualOutput != "" {
		t.Fatalf("private output leaked: %+v", res.Cases[1])
	}

	stored, err := store.GetResult(context.Background(), "s1")
	if err != nil {
		t.Fatalf("result not persisted: %v", err)
	}
	if stored.Cases[1].ActualOutput != "" {
		t.Fatalf("private output leaked into store: %+v", stored.Cases[1])
	}
}

func TestVerify_FailedCase(t *testing.T) {
	store := memory.New()
	seedCases(t, store)

	client := &fakeClient{statuses: []int{3, 4}, outputs: []string{"3", "7"}}
	svc := New(store, client, nil)
	svc.interval = time.Millisecond

	res, err := svc.Verify(context.Background(), "s1", "b1", "go", "package main")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.AllPassed {
		t.Fatalf("allPassed must be false with a WA verdict")
	}
	if res.PassedCount != 1 {
		t.Fatalf("expected 1 passed, got %d", res.PassedCount)
	}
	if res.Cases[1].Verdict != domain.VerdictWA {
		t.Fatalf("expected WA, got %s", res.Cases[1].Verdict)
	}
}

func TestVerify_PollsUntilDone(t *testing.T) {
	store := memory.New()
	seedCases(t, store)

	client := &fakeClient{statuses: []int{3, 3}, outputs: []string{"3", "10"}, pending: 3}
	svc := New(store, client, nil)
	svc.interval = time.Millisecond

	if _, err := svc.Verify(context.Background(), "s1", "b1", "go", "src"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if client.polls != 4 {
		t.Fatalf("expected 4 polls, got %d", client.polls)
	}
}

func TestVerify_TimesOut(t *testing.T) {
	store := memory.New()
	seedCases(t, store)

	client := &fakeClient{statuses: []int{3, 3}, outputs: []string{"3", "10"}, pending: 100}
	svc := New(store, client, nil)
	svc.interval = time.Millisecond
	svc.attempts = 3

	_, err := svc.Verify(context.Background(), "s1", "b1", "go", "src")
	if !errors.Is(err, fault.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestVerify_SubmitFailureIsUpstream(t *testing.T) {
	store := memory.New()
	seedCases(t, store)

	client := &fakeClient{submitErr: errors.New("boom")}
	svc := New(store, client, nil)

	_, err := svc.Verify(context.Background(), "s1", "b1", "go", "src")
	if !errors.Is(err, fault.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestMapVerdict(t *testing.T) {
	cases := map[int]domain.Verdict{
		3:  domain.VerdictAC,
		4:  domain.VerdictWA,
		5:  domain.VerdictTLE,
		6:  domain.VerdictCE,
		7:  domain.VerdictRE,
		12: domain.VerdictRE,
		13: domain.VerdictMLE,
	}
	for code, want := range cases {
		got, err := MapVerdict(code)
		if err != nil {
			t.Fatalf("map %d: %v", code, err)
		}
		if got != want {
			t.Fatalf("map %d = %s, want %s", code, got, want)
		}
	}
	if _, err := MapVerdict(99); err == nil {
		t.Fatalf("expected error for unmapped status")
	}
}
