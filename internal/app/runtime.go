package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cam3ron2/commit-ingest/internal/config"
	"github.com/cam3ron2/commit-ingest/internal/health"
	"github.com/cam3ron2/commit-ingest/internal/metrics"
	"github.com/cam3ron2/commit-ingest/internal/store"
	"github.com/cam3ron2/commit-ingest/internal/webhook"
	"go.uber.org/zap"
)

const (
	// githubFailureThreshold consecutive remote failures mark GitHub unhealthy.
	githubFailureThreshold = 3
	// githubRecoverThreshold consecutive successes restore GitHub health.
	githubRecoverThreshold = 1

	dependencyPingTimeout = 2 * time.Second
	lockGCInterval        = time.Minute
)

// Options customize runtime construction.
type Options struct {
	Logger *zap.Logger
	// GitHubTransport overrides the transport used for GitHub calls.
	GitHubTransport http.RoundTripper
}

// Runtime is the application runtime orchestrator.
type Runtime struct {
	cfg       *config.Config
	store     recordStore
	locker    lockBackend
	processor *webhook.Processor
	recorder  *metrics.Recorder
	evaluator *health.StatusEvaluator
	logger    *zap.Logger
	closers   []closeFunc

	githubClientUsable bool

	mu                  sync.RWMutex
	githubHealthy       bool
	githubFailureStreak int
	githubRecoverStreak int

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewRuntime wires the store, lock backend, GitHub clients and processor from configuration.
func NewRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	settings, err := webhook.SettingsFromConfig(cfg.WebHook)
	if err != nil {
		return nil, fmt.Errorf("compile webhook settings: %w", err)
	}
	if settings.GitHub == nil {
		logger.Warn("webhook.github is not configured; push events for registered repositories will fail")
	}

	clients, err := newGitHubClients(cfg, settings, opts.GitHubTransport)
	if err != nil {
		return nil, err
	}

	records, closeStore, err := newRecordStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r := &Runtime{
		cfg:                cfg,
		store:              records,
		recorder:           metrics.NewRecorder(),
		evaluator:          health.NewStatusEvaluator(),
		logger:             logger,
		githubClientUsable: clients.usable(cfg),
		githubHealthy:      true,
		Now:                time.Now,
	}
	r.addCloser(closeStore)

	locker, closeLocker, err := newDeliveryLocker(cfg, records, logger)
	if err != nil {
		_ = r.Close(ctx)
		return nil, err
	}
	r.locker = locker
	r.addCloser(closeLocker)

	deps := webhook.Dependencies{
		Store:     records,
		Graph:     clients.graph,
		Users:     clients.users,
		Endpoints: clients.endpoints,
		Recorder:  r.recorder,
		Logger:    logger.Named("webhook"),
	}
	if clients.decrypter != nil {
		deps.Decrypter = clients.decrypter
	}
	if clients.sharedTokens != nil {
		deps.SharedTokens = clients.sharedTokens
	}
	processor, err := webhook.NewProcessor(settings, deps)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("create processor: %w", err)
	}
	r.processor = processor

	logger.Info(
		"runtime initialized",
		zap.String("store_backend", cfg.Store.Backend),
		zap.String("lock_backend", cfg.Store.LockBackend),
		zap.Bool("github_client_usable", r.githubClientUsable),
		zap.Int("github_max_attempts", clients.graph.MaxAttempts()),
		zap.Bool("github_app", cfg.GitHub.App != nil),
	)
	return r, nil
}

// Store exposes the record store.
func (r *Runtime) Store() webhook.Store {
	return r.store
}

// Processor exposes the push processor.
func (r *Runtime) Processor() *webhook.Processor {
	return r.processor
}

// Handler returns the combined HTTP handler.
func (r *Runtime) Handler() http.Handler {
	lockTTL := 5 * time.Minute
	if gh := r.cfg.WebHook.GitHub; gh != nil && gh.DeliveryLockTTL > 0 {
		lockTTL = gh.DeliveryLockTTL
	}
	webhookHandler := NewWebhookHandler(r.processor, r.locker, lockTTL, r.recorder, r.logger.Named("http"))
	webhookHandler.onOutcome = r.observeOutcome

	return NewHTTPHandler(Routes{
		WebhookPath: r.cfg.Server.WebhookPath,
		Webhook:     webhookHandler,
		Metrics:     metrics.NewOpenMetricsHandler(r.recorder.Gatherer()),
		Health:      health.NewHandler(r),
	})
}

// Start runs background maintenance until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) {
	memory, ok := r.locker.(*store.MemoryStore)
	if !ok {
		return
	}
	go func() {
		ticker := time.NewTicker(lockGCInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				memory.GC(r.Now())
			}
		}
	}()
}

// Close releases backend connections.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// CurrentStatus returns current health status.
func (r *Runtime) CurrentStatus(ctx context.Context) health.Status {
	pingCtx, cancel := context.WithTimeout(ctx, dependencyPingTimeout)
	defer cancel()

	storeHealthy := r.ping(pingCtx, "store", r.store.Ping)
	lockHealthy := r.ping(pingCtx, "delivery_lock", r.locker.Ping)

	r.mu.RLock()
	input := health.Input{
		StoreHealthy:       storeHealthy,
		LockHealthy:        lockHealthy,
		WebhookConfigured:  r.cfg.WebHook.GitHub != nil,
		GitHubClientUsable: r.githubClientUsable,
		GitHubHealthy:      r.githubHealthy,
	}
	r.mu.RUnlock()
	return r.evaluator.Evaluate(input)
}

func (r *Runtime) ping(ctx context.Context, dependency string, pingFn func(context.Context) error) bool {
	if err := pingFn(ctx); err != nil {
		r.logger.Warn("dependency ping failed", zap.String("dependency", dependency), zap.Error(err))
		return false
	}
	return true
}

func (r *Runtime) addCloser(fn closeFunc) {
	if fn != nil {
		r.closers = append(r.closers, fn)
	}
}

// observeOutcome tracks GitHub health from processing results. Only remote
// failures count against GitHub; configuration and store failures are ignored.
func (r *Runtime) observeOutcome(err error) {
	code := webhook.CodeOf(err)
	switch {
	case err == nil:
		r.updateGitHubHealth(true)
	case code == webhook.CodeRemoteUnavailable || code == webhook.CodeRemoteError:
		r.updateGitHubHealth(false)
	}
}

func (r *Runtime) updateGitHubHealth(successful bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if successful {
		r.githubFailureStreak = 0
		if r.githubHealthy {
			r.githubRecoverStreak = 0
			return
		}
		r.githubRecoverStreak++
		if r.githubRecoverStreak >= githubRecoverThreshold {
			r.githubHealthy = true
			r.githubRecoverStreak = 0
			r.logger.Info("github marked healthy")
		}
		return
	}

	r.githubRecoverStreak = 0
	r.githubFailureStreak++
	if r.githubHealthy && r.githubFailureStreak >= githubFailureThreshold {
		r.githubHealthy = false
		r.logger.Warn("github marked unhealthy", zap.Int("failure_streak", r.githubFailureStreak))
	}
}
