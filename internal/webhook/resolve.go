package webhook

import (
	"context"
	"strings"
	"time"

	"github.com/cam3ron2/commit-ingest/internal/model"
)

// TrackedItemReader looks up tracked items by repository and branch, ignoring case.
type TrackedItemReader interface {
	FindTrackedItem(ctx context.Context, repoURL, branch string) (*model.TrackedItem, error)
}

// CommitReader returns stored commits for a revision, oldest ingestion first.
// Repository URL and branch match ignoring case.
type CommitReader interface {
	FindCommits(ctx context.Context, revision, repoURL, branch string) ([]model.Commit, error)
}

// batchPlan collects the tracked-item writes a batch will apply when persisted.
type batchPlan struct {
	reactivate []string
	created    []model.TrackedItem
	seen       map[string]struct{}
	byKey      map[string]model.TrackedItem
}

func newBatchPlan() *batchPlan {
	return &batchPlan{
		seen:  map[string]struct{}{},
		byKey: map[string]model.TrackedItem{},
	}
}

func (p *batchPlan) markActive(itemID string) {
	if itemID == "" {
		return
	}
	if _, ok := p.seen[itemID]; ok {
		return
	}
	p.seen[itemID] = struct{}{}
	p.reactivate = append(p.reactivate, itemID)
}

func trackedItemKey(repoURL, branch string) string {
	return strings.ToLower(repoURL) + "\x00" + strings.ToLower(branch)
}

type collectorItemResolver struct {
	commits CommitReader
	items   TrackedItemReader
	newID   func() string
	now     func() time.Time
}

// resolve links a commit to its tracked item. A previously stored copy of the same
// commit donates its identity and has its tracked item reactivated.
func (r *collectorItemResolver) resolve(ctx context.Context, commit model.Commit, normalizedURL string, plan *batchPlan) (model.Commit, error) {
	resolved := commit.Clone()

	existing, err := r.commits.FindCommits(ctx, commit.RevisionNumber, commit.RepoURL, commit.Branch)
	if err != nil {
		return model.Commit{}, newError(CodeStoreFailure, "existing commit lookup failed", err)
	}
	if len(existing) > 0 {
		resolved.ID = existing[0].ID
		resolved.TrackedItemID = existing[0].TrackedItemID
		plan.markActive(existing[0].TrackedItemID)
		return resolved, nil
	}

	key := trackedItemKey(normalizedURL, commit.Branch)
	if item, ok := plan.byKey[key]; ok {
		resolved.TrackedItemID = item.ID
		return resolved, nil
	}

	item, err := r.items.FindTrackedItem(ctx, normalizedURL, commit.Branch)
	if err != nil {
		return model.Commit{}, newError(CodeStoreFailure, "tracked item lookup failed", err)
	}
	if item == nil {
		created := model.TrackedItem{
			ID:          r.newID(),
			RepoURL:     normalizedURL,
			Branch:      commit.Branch,
			Enabled:     true,
			Pushed:      true,
			LastUpdated: r.now(),
		}
		plan.created = append(plan.created, created)
		item = &created
	}
	plan.byKey[key] = *item
	resolved.TrackedItemID = item.ID
	return resolved, nil
}
