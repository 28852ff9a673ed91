package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/cam3ron2/commit-ingest/internal/githubapi"
	"github.com/cam3ron2/commit-ingest/internal/model"
	"github.com/cam3ron2/commit-ingest/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// BatchWriter persists a push event's records in one call.
type BatchWriter interface {
	SaveBatch(ctx context.Context, batch model.CommitBatch) error
}

// Store is the record store consumed by the pipeline.
type Store interface {
	TrackedItemReader
	RepositoryTokenReader
	CommitReader
	PullRequestReader
	BatchWriter
	NewID() string
}

// Recorder observes pipeline outcomes.
type Recorder interface {
	ObserveEvent(result string)
	ObserveCommit(commitType model.CommitType)
	ObserveEnrichment(outcome string, attempts int)
	ObserveFailure(code string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveEvent(string)            {}
func (nopRecorder) ObserveCommit(model.CommitType) {}
func (nopRecorder) ObserveEnrichment(string, int)  {}
func (nopRecorder) ObserveFailure(string)          {}

// Dependencies are the collaborators a Processor needs.
type Dependencies struct {
	Store Store
	Graph CommitGrapher
	Users UserLookup
	// Decrypter is required only for private repositories.
	Decrypter TokenDecrypter
	// SharedTokens is optional and used when no shared token is configured.
	SharedTokens TokenSource
	// Endpoints overrides the API endpoints derived from repository URLs.
	Endpoints githubapi.Endpoints
	Recorder  Recorder
	Logger    *zap.Logger
}

// Processor turns push payloads into persisted commit records.
type Processor struct {
	settings Settings
	deps     Dependencies
	logger   *zap.Logger
	recorder Recorder

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewProcessor creates a push-event processor.
func NewProcessor(settings Settings, deps Dependencies) (*Processor, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Graph == nil {
		return nil, fmt.Errorf("commit grapher is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user lookup is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Processor{
		settings: settings,
		deps:     deps,
		logger:   logger,
		recorder: recorder,
		Now:      time.Now,
	}, nil
}

// ProcessPushEvent runs the full pipeline for one push payload. Informational
// rejections are returned as a result string with a nil error. Fatal failures
// return a *Error and persist nothing.
func (p *Processor) ProcessPushEvent(ctx context.Context, payload []byte) (string, error) {
	ctx, span := telemetry.StartDependencySpan(ctx, "internal/webhook", "webhook.process_push_event")

	result, err := p.process(ctx, payload)
	if err != nil {
		code := CodeOf(err)
		p.recorder.ObserveFailure(string(code))
		p.logger.Error("push event processing failed", zap.String("code", string(code)), zap.Error(err))
		span.SetAttributes(attribute.String("webhook.error_code", string(code)))
		telemetry.EndSpan(span, err, "")
		return "", err
	}

	p.recorder.ObserveEvent(result)
	span.SetAttributes(attribute.String("webhook.result", result))
	telemetry.EndSpan(span, nil, "processed")
	return result, nil
}

func (p *Processor) process(ctx context.Context, payload []byte) (string, error) {
	event, rejection := ExtractPushEvent(payload)
	if rejection != "" {
		p.logger.Info("push event rejected", zap.String("result", rejection))
		return rejection, nil
	}

	registered, err := p.deps.Store.FindTrackedItem(ctx, event.RepoURL, event.Branch)
	if err != nil {
		return "", newError(CodeStoreFailure, "registration lookup failed", err)
	}
	if registered == nil {
		result := fmt.Sprintf(notRegisteredResultFmt, event.RepoURL, event.Branch)
		p.logger.Info("push event for unregistered target",
			zap.String("repo_url", event.RepoURL),
			zap.String("branch", event.Branch),
		)
		return result, nil
	}

	batch, err := p.buildBatch(ctx, event)
	if err != nil {
		return "", err
	}

	if err := p.deps.Store.SaveBatch(ctx, batch); err != nil {
		return "", newError(CodeStoreFailure, "commit batch could not be saved", err)
	}
	for _, commit := range batch.Commits {
		p.recorder.ObserveCommit(commit.Type)
	}
	p.logger.Info("push event processed",
		zap.String("repo_url", event.RepoURL),
		zap.String("branch", event.Branch),
		zap.Int("commits", len(batch.Commits)),
		zap.Int("tracked_items_created", len(batch.Create)),
	)
	return ResultProcessed, nil
}

func (p *Processor) buildBatch(ctx context.Context, event PushEvent) (model.CommitBatch, error) {
	if p.settings.GitHub == nil {
		return model.CommitBatch{}, newError(CodeInvalidConfiguration, "github webhook settings are not configured", nil)
	}

	repo, err := githubapi.ParseRepoURL(event.RepoURL, p.deps.Endpoints)
	if err != nil {
		return model.CommitBatch{}, newError(CodeInvalidConfiguration, "repository url cannot be parsed", err)
	}

	credentials := &credentialResolver{
		settings:  p.settings.GitHub,
		tokens:    p.deps.Store,
		decrypter: p.deps.Decrypter,
		shared:    p.deps.SharedTokens,
		logger:    p.logger,
	}
	enrich := &enricher{
		graph:    p.deps.Graph,
		users:    p.deps.Users,
		settings: p.settings.GitHub,
		recorder: p.recorder,
		logger:   p.logger,
	}
	resolver := &collectorItemResolver{
		commits: p.deps.Store,
		items:   p.deps.Store,
		newID:   p.deps.Store.NewID,
		now:     p.Now,
	}
	plan := newBatchPlan()

	commits := make([]model.Commit, 0, len(event.Commits))
	for _, descriptor := range event.Commits {
		token, err := credentials.resolve(ctx, repo.URL, descriptor.isPrivate(event.Private))
		if err != nil {
			return model.CommitBatch{}, err
		}

		commit := baseCommit(event, descriptor, p.Now()).Clone()
		commit, err = enrich.enrich(ctx, repo, commit, event.Sender, token)
		if err != nil {
			return model.CommitBatch{}, err
		}
		commit, err = resolver.resolve(ctx, commit, repo.URL, plan)
		if err != nil {
			return model.CommitBatch{}, err
		}
		commits = append(commits, commit)
	}

	reconciler := &pullRequestReconciler{pulls: p.deps.Store}
	commits, err = reconciler.reconcile(ctx, commits)
	if err != nil {
		return model.CommitBatch{}, err
	}

	return model.CommitBatch{
		Commits:    commits,
		Reactivate: plan.reactivate,
		Create:     plan.created,
	}, nil
}
