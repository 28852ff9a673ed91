package webhook

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cam3ron2/commit-ingest/internal/githubapi"
	"github.com/cam3ron2/commit-ingest/internal/model"
	"go.uber.org/zap"
)

// CommitGrapher fetches commit graph data from the remote query API.
type CommitGrapher interface {
	CommitNode(ctx context.Context, repo githubapi.RepoRef, oid, token string) (*githubapi.CommitNode, githubapi.CallMetadata, error)
}

// UserLookup resolves author profile fields by login.
type UserLookup interface {
	AuthorType(ctx context.Context, repo githubapi.RepoRef, login, token string) (string, error)
	LDAPDN(ctx context.Context, repo githubapi.RepoRef, login, token string) (string, error)
}

type enricher struct {
	graph    CommitGrapher
	users    UserLookup
	settings *GitHubSettings
	recorder Recorder
	logger   *zap.Logger
}

// enrich fills parents, classification and identities from the remote API.
func (e *enricher) enrich(ctx context.Context, repo githubapi.RepoRef, commit model.Commit, sender *Sender, token string) (model.Commit, error) {
	enriched := commit.Clone()

	node, metadata, err := e.graph.CommitNode(ctx, repo, commit.RevisionNumber, token)
	if err != nil {
		e.recorder.ObserveEnrichment(enrichmentOutcome(err), metadata.Attempts)
		return model.Commit{}, classifyRemoteError(err)
	}

	if node == nil {
		e.recorder.ObserveEnrichment("soft_miss", metadata.Attempts)
		e.logger.Debug("commit node not found",
			zap.String("revision", commit.RevisionNumber),
			zap.String("repo_url", commit.RepoURL),
		)
		enriched.CommitterLogin = model.UnknownLogin
		enriched.ParentRevisions = []string{}
		enriched.FirstEverCommit = true
		enriched.Type = Classify(0, enriched.Message, e.settings.NotBuiltCommits)
		return enriched, nil
	}
	e.recorder.ObserveEnrichment("found", metadata.Attempts)

	enriched.ParentRevisions = append([]string{}, node.Parents...)
	enriched.FirstEverCommit = len(node.Parents) == 0
	enriched.Type = Classify(len(node.Parents), enriched.Message, e.settings.NotBuiltCommits)
	if enriched.AuthorName == "" {
		enriched.AuthorName = node.Author.Name
	}

	enriched.AuthorLogin = loginOrUnknown(node.Author.Login)
	enriched.CommitterLogin = loginOrUnknown(node.Committer.Login)
	enriched.AuthorType, enriched.AuthorLDAPDN = e.authorIdentity(ctx, repo, enriched.AuthorLogin, sender, token)
	return enriched, nil
}

// authorIdentity trusts the sender's profile when the sender authored the commit
// and otherwise asks the remote API twice.
func (e *enricher) authorIdentity(ctx context.Context, repo githubapi.RepoRef, login string, sender *Sender, token string) (string, string) {
	if sender != nil && strings.EqualFold(login, sender.Login) {
		return sender.Type, sender.LDAPDN
	}

	start := time.Now()
	authorType, err := e.users.AuthorType(ctx, repo, login, token)
	if err != nil {
		e.logger.Warn("author type lookup failed", zap.String("login", login), zap.Error(err))
		authorType = ""
	}
	ldapDN, err := e.users.LDAPDN(ctx, repo, login, token)
	if err != nil {
		e.logger.Warn("author ldap dn lookup failed", zap.String("login", login), zap.Error(err))
		ldapDN = ""
	}
	e.logger.Debug("author lookups finished",
		zap.String("login", login),
		zap.Duration("elapsed", time.Since(start)),
	)
	return authorType, ldapDN
}

func loginOrUnknown(login string) string {
	if login == "" {
		return model.UnknownLogin
	}
	return login
}

func enrichmentOutcome(err error) string {
	switch {
	case errors.Is(err, githubapi.ErrAttemptsExhausted):
		return "exhausted"
	case errors.Is(err, githubapi.ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}

func classifyRemoteError(err error) *Error {
	var graphErr *githubapi.GraphQLError
	switch {
	case errors.As(err, &graphErr):
		return newError(CodeRemoteError, "commit query returned errors", err)
	case errors.Is(err, githubapi.ErrAttemptsExhausted):
		return newError(CodeRemoteUnavailable, "commit query retries exhausted", err)
	case errors.Is(err, githubapi.ErrRateLimited):
		return newError(CodeRemoteUnavailable, "commit query rate limited", err)
	case errors.Is(err, githubapi.ErrUnexpectedStatus):
		return newError(CodeRemoteError, "commit query rejected", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newError(CodeRemoteUnavailable, "commit query interrupted", err)
	default:
		return newError(CodeRemoteError, "commit query failed", err)
	}
}
