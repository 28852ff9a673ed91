package webhook

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cam3ron2/commit-ingest/internal/githubapi"
	"github.com/cam3ron2/commit-ingest/internal/model"
)

type fakeStore struct {
	mu          sync.Mutex
	items       []model.TrackedItem
	commits     []model.Commit
	pulls       []model.PullRequest
	tokens      map[string]string
	batches     []model.CommitBatch
	nextID      int
	saveErr     error
	findItemErr error
}

func newFakeStore(items ...model.TrackedItem) *fakeStore {
	return &fakeStore{items: items, tokens: map[string]string{}}
}

func (s *fakeStore) FindTrackedItem(_ context.Context, repoURL, branch string) (*model.TrackedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findItemErr != nil {
		return nil, s.findItemErr
	}
	for _, item := range s.items {
		if strings.EqualFold(item.RepoURL, repoURL) && strings.EqualFold(item.Branch, branch) {
			found := item
			return &found, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FindRepositoryToken(_ context.Context, repoURL string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[strings.ToLower(repoURL)], nil
}

func (s *fakeStore) FindCommits(_ context.Context, revision, repoURL, branch string) ([]model.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found []model.Commit
	for _, commit := range s.commits {
		if commit.RevisionNumber == revision && strings.EqualFold(commit.RepoURL, repoURL) && strings.EqualFold(commit.Branch, branch) {
			found = append(found, commit)
		}
	}
	return found, nil
}

func (s *fakeStore) FindPullRequestByRevision(_ context.Context, revision string) (*model.PullRequest, error) {
	for _, pr := range s.pulls {
		if pr.HeadRevision == revision || pr.MergeEventRevision == revision {
			found := pr
			return &found, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FindPullRequestByCommitRevision(_ context.Context, revision string) (*model.PullRequest, error) {
	for _, pr := range s.pulls {
		for _, commitRevision := range pr.CommitRevisions {
			if commitRevision == revision {
				found := pr
				return &found, nil
			}
		}
	}
	return nil, nil
}

func (s *fakeStore) SaveBatch(_ context.Context, batch model.CommitBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.batches = append(s.batches, batch)
	s.items = append(s.items, batch.Create...)
	for _, id := range batch.Reactivate {
		for i := range s.items {
			if s.items[i].ID == id {
				s.items[i].Enabled = true
				s.items[i].Pushed = true
			}
		}
	}
	for _, commit := range batch.Commits {
		if commit.ID == "" {
			s.nextID++
			commit.ID = fmt.Sprintf("commit-%d", s.nextID)
		}
		s.commits = append(s.commits, commit)
	}
	return nil
}

func (s *fakeStore) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return fmt.Sprintf("item-%d", s.nextID)
}

func (s *fakeStore) savedCommits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, batch := range s.batches {
		total += len(batch.Commits)
	}
	return total
}

type graphCall struct {
	repo  githubapi.RepoRef
	oid   string
	token string
}

type fakeGrapher struct {
	mu    sync.Mutex
	nodes map[string]*githubapi.CommitNode
	err   error
	calls []graphCall
}

func (g *fakeGrapher) CommitNode(_ context.Context, repo githubapi.RepoRef, oid, token string) (*githubapi.CommitNode, githubapi.CallMetadata, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, graphCall{repo: repo, oid: oid, token: token})
	if g.err != nil {
		return nil, githubapi.CallMetadata{Attempts: 1}, g.err
	}
	return g.nodes[oid], githubapi.CallMetadata{Attempts: 1}, nil
}

type fakeUsers struct {
	mu      sync.Mutex
	types   map[string]string
	ldapDNs map[string]string
	err     error
	calls   []string
}

func (u *fakeUsers) AuthorType(_ context.Context, _ githubapi.RepoRef, login, _ string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, "type:"+login)
	if u.err != nil {
		return "", u.err
	}
	return u.types[login], nil
}

func (u *fakeUsers) LDAPDN(_ context.Context, _ githubapi.RepoRef, login, _ string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, "ldap:"+login)
	if u.err != nil {
		return "", u.err
	}
	return u.ldapDNs[login], nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	events   []string
	commits  []model.CommitType
	failures []string
}

func (r *fakeRecorder) ObserveEvent(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, result)
}

func (r *fakeRecorder) ObserveCommit(commitType model.CommitType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits = append(r.commits, commitType)
}

func (r *fakeRecorder) ObserveEnrichment(string, int) {}

func (r *fakeRecorder) ObserveFailure(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, code)
}
