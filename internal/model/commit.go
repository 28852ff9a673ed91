package model

import (
	"slices"
	"time"
)

// CommitType classifies commit semantics for downstream build analytics.
type CommitType string

const (
	// CommitTypeNew is a regular commit that should be built.
	CommitTypeNew CommitType = "New"
	// CommitTypeMerge is a commit with more than one parent.
	CommitTypeMerge CommitType = "Merge"
	// CommitTypeNotBuilt is a commit whose message matches an exclusion pattern.
	CommitTypeNotBuilt CommitType = "NotBuilt"
)

// UnknownLogin is recorded when the remote API cannot attribute a commit to a platform user.
const UnknownLogin = "unknown"

// RepoFile is one changed file reported by the push payload.
type RepoFile struct {
	Filename string
	Patch    string
}

// Commit is the enriched, persisted unit produced for every pushed commit.
type Commit struct {
	ID              string
	RevisionNumber  string
	RepoURL         string
	Branch          string
	AuthorName      string
	AuthorLogin     string
	AuthorType      string
	AuthorLDAPDN    string
	CommitterLogin  string
	Message         string
	CommitTimestamp time.Time
	Timestamp       time.Time
	ParentRevisions []string
	FirstEverCommit bool
	Type            CommitType
	FilesAdded      []string
	FilesRemoved    []string
	FilesModified   []string
	Files           []RepoFile
	NumberOfChanges int
	TrackedItemID   string
	PullNumber      string
}

// Clone returns a deep copy so pipeline stages never share slices.
func (c Commit) Clone() Commit {
	cloned := c
	cloned.ParentRevisions = slices.Clone(c.ParentRevisions)
	cloned.FilesAdded = slices.Clone(c.FilesAdded)
	cloned.FilesRemoved = slices.Clone(c.FilesRemoved)
	cloned.FilesModified = slices.Clone(c.FilesModified)
	cloned.Files = slices.Clone(c.Files)
	return cloned
}

// TrackedItem is a repository and branch pair under active monitoring.
type TrackedItem struct {
	ID             string
	RepoURL        string
	Branch         string
	Enabled        bool
	Pushed         bool
	EncryptedToken string
	LastUpdated    time.Time
}

// PullRequest is the subset of a stored pull request used for commit linkage.
type PullRequest struct {
	ID                 string
	Number             string
	RepoURL            string
	Branch             string
	HeadRevision       string
	MergeEventRevision string
	CommitRevisions    []string
}

// CommitBatch is everything one push event writes. It is applied as a single unit.
type CommitBatch struct {
	Commits []Commit
	// Reactivate holds tracked item IDs to mark enabled and pushed.
	Reactivate []string
	// Create holds tracked items discovered while resolving the batch.
	Create []TrackedItem
}

// Empty reports whether the batch carries no writes.
func (b CommitBatch) Empty() bool {
	return len(b.Commits) == 0 && len(b.Reactivate) == 0 && len(b.Create) == 0
}
