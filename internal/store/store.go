package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cam3ron2/commit-ingest/internal/model"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NewID returns a new record identifier. Identifiers are ObjectID hex strings so
// records move between the memory and Mongo backends unchanged.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// MemoryStore is an in-memory record store with delivery locks.
type MemoryStore struct {
	mu      sync.RWMutex
	items   map[string]model.TrackedItem
	commits map[string]model.Commit
	pulls   []model.PullRequest
	locks   map[string]time.Time

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewMemoryStore creates a memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:   make(map[string]model.TrackedItem),
		commits: make(map[string]model.Commit),
		locks:   make(map[string]time.Time),
		Now:     time.Now,
	}
}

// NewID returns a new record identifier.
func (s *MemoryStore) NewID() string {
	return NewID()
}

// PutTrackedItem inserts or replaces a tracked item.
func (s *MemoryStore) PutTrackedItem(item model.TrackedItem) error {
	if item.ID == "" {
		return fmt.Errorf("tracked item id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
	return nil
}

// PutPullRequest stores a pull request for commit linkage.
func (s *MemoryStore) PutPullRequest(pr model.PullRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pr.CommitRevisions = slices.Clone(pr.CommitRevisions)
	s.pulls = append(s.pulls, pr)
}

// TrackedItem returns a tracked item by id.
func (s *MemoryStore) TrackedItem(id string) (model.TrackedItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

// FindTrackedItem returns the tracked item for a repository and branch, ignoring case.
func (s *MemoryStore) FindTrackedItem(_ context.Context, repoURL, branch string) (*model.TrackedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.sortedItemIDs() {
		item := s.items[id]
		if strings.EqualFold(item.RepoURL, repoURL) && strings.EqualFold(item.Branch, branch) {
			return &item, nil
		}
	}
	return nil, nil
}

// FindRepositoryToken returns the encrypted token of any tracked item for the repository.
func (s *MemoryStore) FindRepositoryToken(_ context.Context, repoURL string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.sortedItemIDs() {
		item := s.items[id]
		if strings.EqualFold(item.RepoURL, repoURL) && item.EncryptedToken != "" {
			return item.EncryptedToken, nil
		}
	}
	return "", nil
}

// FindCommits returns stored commits for a revision ordered by ingestion time.
func (s *MemoryStore) FindCommits(_ context.Context, revision, repoURL, branch string) ([]model.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found []model.Commit
	for _, commit := range s.commits {
		if commit.RevisionNumber == revision && strings.EqualFold(commit.RepoURL, repoURL) && strings.EqualFold(commit.Branch, branch) {
			found = append(found, commit.Clone())
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Timestamp.Equal(found[j].Timestamp) {
			return found[i].ID < found[j].ID
		}
		return found[i].Timestamp.Before(found[j].Timestamp)
	})
	return found, nil
}

// FindPullRequestByRevision matches the head or merge-event revision.
func (s *MemoryStore) FindPullRequestByRevision(_ context.Context, revision string) (*model.PullRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, pr := range s.pulls {
		if pr.HeadRevision == revision || pr.MergeEventRevision == revision {
			found := pr
			return &found, nil
		}
	}
	return nil, nil
}

// FindPullRequestByCommitRevision matches any commit carried by the pull request.
func (s *MemoryStore) FindPullRequestByCommitRevision(_ context.Context, revision string) (*model.PullRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, pr := range s.pulls {
		if slices.Contains(pr.CommitRevisions, revision) {
			found := pr
			return &found, nil
		}
	}
	return nil, nil
}

// SaveBatch applies tracked-item writes and commits under one lock.
func (s *MemoryStore) SaveBatch(_ context.Context, batch model.CommitBatch) error {
	for _, item := range batch.Create {
		if item.ID == "" {
			return fmt.Errorf("created tracked item id is required")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	for _, item := range batch.Create {
		s.items[item.ID] = item
	}
	for _, id := range batch.Reactivate {
		item, ok := s.items[id]
		if !ok {
			continue
		}
		item.Enabled = true
		item.Pushed = true
		item.LastUpdated = now
		s.items[id] = item
	}
	for _, commit := range batch.Commits {
		stored := commit.Clone()
		if stored.ID == "" {
			stored.ID = NewID()
		}
		s.commits[stored.ID] = stored
	}
	return nil
}

// Commits returns every stored commit ordered by ingestion time.
func (s *MemoryStore) Commits() []model.Commit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Commit, 0, len(s.commits))
	for _, commit := range s.commits {
		result = append(result, commit.Clone())
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].ID < result[j].ID
		}
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result
}

// TryLock acquires a lock until ttl elapses or Unlock is called.
func (s *MemoryStore) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return acquireLock(s.locks, key, ttl, s.Now()), nil
}

// Unlock releases a lock.
func (s *MemoryStore) Unlock(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, key)
	return nil
}

// Ping reports store availability.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// GC deletes expired locks.
func (s *MemoryStore) GC(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trimExpiredLocks(s.locks, now)
}

func (s *MemoryStore) sortedItemIDs() []string {
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func acquireLock(lockMap map[string]time.Time, key string, ttl time.Duration, now time.Time) bool {
	expiry, exists := lockMap[key]
	if exists && now.Before(expiry) {
		return false
	}
	lockMap[key] = now.Add(ttl)
	return true
}

func trimExpiredLocks(lockMap map[string]time.Time, now time.Time) {
	for key, expiry := range lockMap {
		if !now.Before(expiry) {
			delete(lockMap, key)
		}
	}
}
