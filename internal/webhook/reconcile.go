package webhook

import (
	"context"

	"github.com/cam3ron2/commit-ingest/internal/model"
)

// PullRequestReader finds stored pull requests linked to a revision.
type PullRequestReader interface {
	// FindPullRequestByRevision matches the head or merge-event revision.
	FindPullRequestByRevision(ctx context.Context, revision string) (*model.PullRequest, error)
	// FindPullRequestByCommitRevision matches any commit carried by the pull request.
	FindPullRequestByCommitRevision(ctx context.Context, revision string) (*model.PullRequest, error)
}

type pullRequestReconciler struct {
	pulls PullRequestReader
}

// reconcile links every commit to its pull request, then spreads a single
// unambiguous number across a multi-commit batch.
func (r *pullRequestReconciler) reconcile(ctx context.Context, commits []model.Commit) ([]model.Commit, error) {
	linked := make([]model.Commit, 0, len(commits))
	for _, commit := range commits {
		number, err := r.lookup(ctx, commit.RevisionNumber)
		if err != nil {
			return nil, err
		}
		next := commit.Clone()
		if number != "" {
			next.PullNumber = number
		}
		linked = append(linked, next)
	}
	return PropagatePullNumber(linked), nil
}

func (r *pullRequestReconciler) lookup(ctx context.Context, revision string) (string, error) {
	pr, err := r.pulls.FindPullRequestByRevision(ctx, revision)
	if err != nil {
		return "", newError(CodeStoreFailure, "pull request lookup failed", err)
	}
	if pr == nil {
		pr, err = r.pulls.FindPullRequestByCommitRevision(ctx, revision)
		if err != nil {
			return "", newError(CodeStoreFailure, "pull request lookup failed", err)
		}
	}
	if pr == nil {
		return "", nil
	}
	return pr.Number, nil
}

// PropagatePullNumber copies the pull-request number onto every commit when exactly
// one commit of a multi-commit batch carries one. Other batches are returned unchanged.
func PropagatePullNumber(commits []model.Commit) []model.Commit {
	result := make([]model.Commit, 0, len(commits))
	for _, commit := range commits {
		result = append(result, commit.Clone())
	}
	if len(result) <= 1 {
		return result
	}

	number := ""
	withNumber := 0
	for _, commit := range result {
		if commit.PullNumber != "" {
			withNumber++
			number = commit.PullNumber
		}
	}
	if withNumber != 1 {
		return result
	}
	for i := range result {
		result[i].PullNumber = number
	}
	return result
}
