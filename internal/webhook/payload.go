package webhook

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cam3ron2/commit-ingest/internal/model"
)

// Informational results. None of them persist anything.
const (
	ResultNoCommits        = "No Commits Data Found"
	ResultEmptyCommits     = "Commits JSONArray Empty."
	ResultNoRepository     = "No Repository Found"
	ResultProcessed        = "Commits Processed Successfully"
	notRegisteredResultFmt = "Repo: <%s> Branch: <%s> is not registered in Hygieia"
)

const branchRefPrefix = "refs/heads/"

// PushEvent is the typed form of one push delivery.
type PushEvent struct {
	RepoURL string
	// Branch is empty when the payload carries no ref.
	Branch  string
	Private bool
	Commits []PushCommit
	Sender  *Sender
}

// Sender is the identity that triggered the push.
type Sender struct {
	Login  string
	Type   string
	LDAPDN string
}

// PushCommit is one commit descriptor as reported by the push payload.
type PushCommit struct {
	ID             string
	Message        string
	Timestamp      time.Time
	AuthorName     string
	AuthorUsername string
	// Private is nil when the descriptor carries no repository visibility of its own.
	Private  *bool
	Added    []string
	Removed  []string
	Modified []string
	Files    []model.RepoFile
}

// ExtractPushEvent parses a push payload. A non-empty result means the payload was
// rejected and carries the informational message to return to the caller.
func ExtractPushEvent(payload []byte) (PushEvent, string) {
	var document map[string]json.RawMessage
	if err := json.Unmarshal(payload, &document); err != nil {
		return PushEvent{}, ResultNoCommits
	}

	var rawCommits []json.RawMessage
	if !decodeArray(document["commits"], &rawCommits) {
		return PushEvent{}, ResultNoCommits
	}
	if len(rawCommits) == 0 {
		return PushEvent{}, ResultEmptyCommits
	}

	var repository repositoryPayload
	if !decodeObject(document["repository"], &repository) {
		return PushEvent{}, ResultNoRepository
	}

	event := PushEvent{
		RepoURL: repository.URL,
		Commits: make([]PushCommit, 0, len(rawCommits)),
	}
	if repository.Private != nil {
		event.Private = *repository.Private
	}

	var ref string
	if raw, ok := document["ref"]; ok {
		_ = json.Unmarshal(raw, &ref)
	}
	if ref != "" {
		event.Branch = strings.Replace(ref, branchRefPrefix, "", 1)
	}

	var sender senderPayload
	if decodeObject(document["sender"], &sender) {
		event.Sender = &Sender{Login: sender.Login, Type: sender.Type, LDAPDN: sender.LDAPDN}
	}

	for _, raw := range rawCommits {
		var descriptor commitPayload
		if !decodeObject(raw, &descriptor) {
			return PushEvent{}, ResultNoCommits
		}
		event.Commits = append(event.Commits, descriptor.toPushCommit())
	}
	return event, ""
}

// baseCommit builds the record fields that come straight from the payload.
func baseCommit(event PushEvent, descriptor PushCommit, now time.Time) model.Commit {
	return model.Commit{
		RevisionNumber:  descriptor.ID,
		RepoURL:         event.RepoURL,
		Branch:          event.Branch,
		AuthorName:      descriptor.AuthorName,
		AuthorLogin:     descriptor.AuthorUsername,
		Message:         descriptor.Message,
		CommitTimestamp: descriptor.Timestamp,
		Timestamp:       now,
		FilesAdded:      descriptor.Added,
		FilesRemoved:    descriptor.Removed,
		FilesModified:   descriptor.Modified,
		Files:           descriptor.Files,
		NumberOfChanges: len(descriptor.Added) + len(descriptor.Removed) + len(descriptor.Modified),
	}
}

func decodeArray(raw json.RawMessage, target *[]json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "[") {
		return false
	}
	return json.Unmarshal(raw, target) == nil
}

func decodeObject(raw json.RawMessage, target any) bool {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		return false
	}
	return json.Unmarshal(raw, target) == nil
}

type repositoryPayload struct {
	URL     string `json:"url"`
	Private *bool  `json:"private"`
}

type senderPayload struct {
	Login  string `json:"login"`
	Type   string `json:"type"`
	LDAPDN string `json:"ldap_dn"`
}

type commitPayload struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Author    struct {
		Name     string `json:"name"`
		Username string `json:"username"`
	} `json:"author"`
	Repository *struct {
		Private *bool `json:"private"`
	} `json:"repository"`
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
	Files    []struct {
		Filename string `json:"filename"`
		Patch    string `json:"patch"`
	} `json:"files"`
}

func (p commitPayload) toPushCommit() PushCommit {
	commit := PushCommit{
		ID:             p.ID,
		Message:        p.Message,
		AuthorName:     p.Author.Name,
		AuthorUsername: p.Author.Username,
		Added:          p.Added,
		Removed:        p.Removed,
		Modified:       p.Modified,
	}
	if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(p.Timestamp)); err == nil {
		commit.Timestamp = parsed
	}
	if p.Repository != nil {
		commit.Private = p.Repository.Private
	}
	if len(p.Files) > 0 {
		commit.Files = make([]model.RepoFile, 0, len(p.Files))
		for _, file := range p.Files {
			commit.Files = append(commit.Files, model.RepoFile{Filename: file.Filename, Patch: file.Patch})
		}
	}
	return commit
}

func (c PushCommit) isPrivate(eventPrivate bool) bool {
	if c.Private != nil {
		return *c.Private
	}
	return eventPrivate
}
