package app

import (
	"context"

	"github.com/taskforge/platform/internal/app/metrics"
	"github.com/taskforge/platform/internal/app/notify"
	"github.com/taskforge/platform/internal/app/services/bounty"
	"github.com/taskforge/platform/internal/app/services/dispute"
	"github.com/taskforge/platform/internal/app/services/reputation"
	"github.com/taskforge/platform/internal/app/services/submission"
	"github.com/taskforge/platform/internal/app/services/timeout"
	"github.com/taskforge/platform/internal/app/services/verification"
	"github.com/taskforge/platform/internal/app/storage"
	"github.com/taskforge/platform/internal/app/storage/memory"
	"github.com/taskforge/platform/internal/app/system"
	"github.com/taskforge/platform/internal/ratelimit"
	"github.com/taskforge/platform/pkg/logger"
)

// Stores groups the persistence interfaces the application runs on. Any nil
// member falls back to a shared in-memory store.
type Stores struct {
	Bounties     storage.BountyStore
	Submissions  storage.SubmissionStore
	Disputes     storage.DisputeStore
	Ledger       storage.LedgerStore
	Reputation   storage.ReputationStore
	Verification storage.VerificationStore
	Settlements  storage.SettlementStore
}

func (s *Stores) fillDefaults() {
	var mem *memory.Store
	ensure := func() *memory.Store {
		if mem == nil {
			mem = memory.New()
		}
		return mem
	}
	if s.Bounties == nil {
		s.Bounties = ensure()
	}
	if s.Submissions == nil {
		s.Submissions = ensure()
	}
	if s.Disputes == nil {
		s.Disputes = ensure()
	}
	if s.Ledger == nil {
		s.Ledger = ensure()
	}
	if s.Reputation == nil {
		s.Reputation = ensure()
	}
	if s.Verification == nil {
		s.Verification = ensure()
	}
	if s.Settlements == nil {
		s.Settlements = ensure()
	}
}

// Options configures optional collaborators.
type Options struct {
	Logger         *logger.Logger
	Metrics        *metrics.Metrics
	Notifier       notify.Notifier
	Judge          verification.Client
	DisputeLimiter *ratelimit.Limiter
	SubmitLimiter  *ratelimit.Limiter
	SweepSchedule  string
}

// Application owns every service and their shared lifecycle.
type Application struct {
	Bounties     *bounty.Service
	Submissions  *submission.Service
	Disputes     *dispute.Service
	Reputation   *reputation.Service
	Verification *verification.Service
	Sweeper      *timeout.Scanner
	Metrics      *metrics.Metrics

	manager *system.Manager
}

// New builds the application graph.
func New(stores Stores, opts Options) *Application {
	stores.fillDefaults()

	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("app")
	}

	rep := reputation.New(stores.Reputation, log.WithField("service", "reputation"))

	disputes := dispute.New(stores.Bounties, stores.Submissions, stores.Disputes,
		stores.Verification, stores.Settlements, rep, log.WithField("service", "dispute"))
	if opts.DisputeLimiter != nil {
		disputes.WithLimiter(opts.DisputeLimiter)
	}

	submissions := submission.New(stores.Bounties, stores.Submissions, stores.Ledger,
		stores.Settlements, rep, log.WithField("service", "submission"))
	if opts.SubmitLimiter != nil {
		submissions.WithLimiter(opts.SubmitLimiter)
	}

	a := &Application{
		Bounties: bounty.New(stores.Bounties, stores.Ledger, stores.Settlements,
			rep, opts.Notifier, log.WithField("service", "bounty")),
		Submissions: submissions,
		Disputes:    disputes,
		Reputation:  rep,
		Metrics:     opts.Metrics,
		manager:     system.NewManager(log),
	}

	if opts.Judge != nil {
		a.Verification = verification.New(stores.Verification, opts.Judge,
			log.WithField("service", "verification"))
	}

	a.Sweeper = timeout.NewScanner(stores.Bounties, stores.Submissions, stores.Disputes,
		stores.Settlements, disputes, log.WithField("service", "timeout"))
	if opts.Metrics != nil {
		a.Sweeper.WithMetrics(opts.Metrics)
	}
	a.manager.Register(timeout.NewScheduler(a.Sweeper, opts.SweepSchedule,
		log.WithField("service", "timeout-scheduler")))

	return a
}

// Start brings background services up.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop shuts background services down.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
