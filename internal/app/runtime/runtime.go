// Package runtime assembles a running server from configuration: store
// selection, authentication, rate limiting, HTTP wiring and lifecycle.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	app "github.com/taskforge/platform/internal/app"
	"github.com/taskforge/platform/internal/app/httpapi"
	"github.com/taskforge/platform/internal/app/metrics"
	"github.com/taskforge/platform/internal/app/notify"
	"github.com/taskforge/platform/internal/app/services/verification"
	"github.com/taskforge/platform/internal/app/storage/postgres"
	"github.com/taskforge/platform/internal/auth"
	"github.com/taskforge/platform/internal/config"
	"github.com/taskforge/platform/internal/platform/migrations"
	"github.com/taskforge/platform/internal/ratelimit"
	"github.com/taskforge/platform/pkg/logger"
)

const (
	disputeRateLimit  = 5
	disputeRateWindow = 24 * time.Hour
	submitRateLimit   = 30
	submitRateWindow  = time.Hour
)

// Runtime owns the server and every resource it must release on shutdown.
type Runtime struct {
	cfg    *config.Config
	log    *logger.Logger
	app    *app.Application
	server *http.Server
	db     *sql.DB
	redis  *redis.Client
}

// New builds the full service graph from configuration.
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	log := logger.New(cfg.Logging)

	rt := &Runtime{cfg: cfg, log: log}

	stores := app.Stores{}
	if cfg.Database.DSN != "" {
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		if err := migrations.Apply(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		pg := postgres.New(db)
		stores = app.Stores{
			Bounties:     pg,
			Submissions:  pg,
			Disputes:     pg,
			Ledger:       pg,
			Reputation:   pg,
			Verification: pg,
			Settlements:  pg,
		}
		rt.db = db
		log.Info("using postgres store")
	} else {
		log.Info("no database configured, using in-memory store")
	}

	var buckets ratelimit.BucketStore = ratelimit.NewMemoryBuckets()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			rt.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		buckets = ratelimit.NewRedisBuckets(client, "taskforge")
		rt.redis = client
		log.Info("using redis rate-limit buckets")
	}
	opts := app.Options{
		Logger:         log,
		Metrics:        metrics.New(),
		Notifier:       notify.NewLogNotifier(log.WithField("component", "notify")),
		DisputeLimiter: ratelimit.New(buckets, ratelimit.SystemClock{}, disputeRateLimit, disputeRateWindow),
		SubmitLimiter:  ratelimit.New(buckets, ratelimit.SystemClock{}, submitRateLimit, submitRateWindow),
		SweepSchedule:  cfg.Sweep.Schedule,
	}
	if cfg.Judge.Endpoint != "" {
		judge, err := verification.NewHTTPClient(nil, cfg.Judge.Endpoint, cfg.Judge.APIKey,
			log.WithField("component", "judge"))
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("judge client: %w", err)
		}
		opts.Judge = judge
	}

	rt.app = app.New(stores, opts)

	var mgr *auth.Manager
	if cfg.Auth.Secret != "" {
		users := make([]auth.User, 0, len(cfg.Auth.Users))
		for _, u := range cfg.Auth.Users {
			users = append(users, auth.User{
				Username:     u.Username,
				PasswordHash: u.PasswordHash,
				Role:         auth.Role(u.Role),
			})
		}
		mgr = auth.NewManager(cfg.Auth.Secret, users)
	} else {
		log.Warn("no auth secret configured, trusting actor headers")
	}

	rt.server = &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: httpapi.NewHandler(rt.app, httpapi.Options{
			Auth:   mgr,
			Logger: log.WithField("component", "httpapi"),
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return rt, nil
}

// Run starts the background services and serves HTTP until ctx is cancelled.
func (rt *Runtime) Run(ctx context.Context) error {
	if err := rt.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		rt.log.WithField("addr", rt.server.Addr).Info("listening")
		if err := rt.server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := rt.server.Shutdown(shutdownCtx); err != nil {
		rt.log.WithError(err).Warn("server shutdown")
	}
	if err := rt.app.Stop(shutdownCtx); err != nil {
		rt.log.WithError(err).Warn("service shutdown")
	}
	rt.Close()
	return nil
}

// Close releases held connections. Safe to call more than once.
func (rt *Runtime) Close() {
	if rt.db != nil {
		rt.db.Close()
		rt.db = nil
	}
	if rt.redis != nil {
		rt.redis.Close()
		rt.redis = nil
	}
}
