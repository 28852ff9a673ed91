package model

import "testing"

func TestCommitCloneIsDeep(t *testing.T) {
	t.Parallel()

	original := Commit{
		RevisionNumber:  "abc123",
		ParentRevisions: []string{"p1"},
		FilesAdded:      []string{"a.go"},
		FilesRemoved:    []string{"b.go"},
		FilesModified:   []string{"c.go"},
		Files:           []RepoFile{{Filename: "a.go"}},
		Type:            CommitTypeNew,
	}
	cloned := original.Clone()

	cloned.ParentRevisions[0] = "changed"
	cloned.FilesAdded[0] = "changed"
	cloned.FilesRemoved[0] = "changed"
	cloned.FilesModified[0] = "changed"
	cloned.Files[0].Filename = "changed"

	if original.ParentRevisions[0] != "p1" || original.FilesAdded[0] != "a.go" ||
		original.FilesRemoved[0] != "b.go" || original.FilesModified[0] != "c.go" ||
		original.Files[0].Filename != "a.go" {
		t.Fatalf("Clone() shares slices with the original: %+v", original)
	}
	if cloned.RevisionNumber != "abc123" || cloned.Type != CommitTypeNew {
		t.Fatalf("Clone() lost scalar fields: %+v", cloned)
	}
}

func TestCommitBatchEmpty(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		batch CommitBatch
		want  bool
	}{
		{name: "zero", batch: CommitBatch{}, want: true},
		{name: "commits", batch: CommitBatch{Commits: []Commit{{RevisionNumber: "a"}}}, want: false},
		{name: "reactivate", batch: CommitBatch{Reactivate: []string{"id"}}, want: false},
		{name: "create", batch: CommitBatch{Create: []TrackedItem{{ID: "id"}}}, want: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.batch.Empty(); got != tc.want {
				t.Fatalf("Empty() = %t, want %t", got, tc.want)
			}
		})
	}
}
