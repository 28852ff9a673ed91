package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cam3ron2/commit-ingest/internal/config"
	"github.com/cam3ron2/commit-ingest/internal/githubapi"
	"github.com/cam3ron2/commit-ingest/internal/model"
	"github.com/cam3ron2/commit-ingest/internal/secret"
	"github.com/stretchr/testify/require"
)

const testRepoURL = "https://github.com/octo-org/hello-world"

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type payloadCommit struct {
	ID       string
	Message  string
	Username string
	Private  *bool
}

func pushPayload(t *testing.T, ref string, sender map[string]string, commits ...payloadCommit) []byte {
	t.Helper()

	rawCommits := make([]map[string]any, 0, len(commits))
	for _, commit := range commits {
		raw := map[string]any{
			"id":        commit.ID,
			"message":   commit.Message,
			"timestamp": "2024-04-30T09:00:00Z",
			"author":    map[string]string{"name": "Octo Cat", "username": commit.Username},
			"added":     []string{"new.go"},
			"removed":   []string{},
			"modified":  []string{"main.go", "go.mod"},
		}
		if commit.Private != nil {
			raw["repository"] = map[string]any{"private": *commit.Private}
		}
		rawCommits = append(rawCommits, raw)
	}
	document := map[string]any{
		"ref":        ref,
		"repository": map[string]any{"url": testRepoURL},
		"commits":    rawCommits,
	}
	if sender != nil {
		document["sender"] = sender
	}
	payload, err := json.Marshal(document)
	require.NoError(t, err)
	return payload
}

func boolPtr(value bool) *bool {
	return &value
}

func defaultSettings() Settings {
	return Settings{GitHub: &GitHubSettings{SharedToken: "shared-token", MaxRetries: 2}}
}

func registeredStore() *fakeStore {
	return newFakeStore(model.TrackedItem{ID: "item-main", RepoURL: testRepoURL, Branch: "main", Enabled: false})
}

func newTestProcessor(t *testing.T, settings Settings, deps Dependencies) *Processor {
	t.Helper()

	processor, err := NewProcessor(settings, deps)
	require.NoError(t, err)
	processor.Now = func() time.Time { return fixedNow }
	return processor
}

func TestNewProcessorValidation(t *testing.T) {
	t.Parallel()

	_, err := NewProcessor(defaultSettings(), Dependencies{Graph: &fakeGrapher{}, Users: &fakeUsers{}})
	require.ErrorContains(t, err, "store")
	_, err = NewProcessor(defaultSettings(), Dependencies{Store: newFakeStore(), Users: &fakeUsers{}})
	require.ErrorContains(t, err, "grapher")
	_, err = NewProcessor(defaultSettings(), Dependencies{Store: newFakeStore(), Graph: &fakeGrapher{}})
	require.ErrorContains(t, err, "user lookup")
}

func TestProcessPushEventInformationalResults(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "no_commits", payload: `{"repository":{"url":"` + testRepoURL + `"}}`, want: ResultNoCommits},
		{name: "empty_commits", payload: `{"commits":[],"repository":{"url":"` + testRepoURL + `"}}`, want: ResultEmptyCommits},
		{name: "no_repository", payload: `{"commits":[{"id":"abc"}]}`, want: ResultNoRepository},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := registeredStore()
			graph := &fakeGrapher{}
			recorder := &fakeRecorder{}
			processor := newTestProcessor(t, defaultSettings(), Dependencies{Store: store, Graph: graph, Users: &fakeUsers{}, Recorder: recorder})

			result, err := processor.ProcessPushEvent(context.Background(), []byte(tc.payload))
			require.NoError(t, err)
			require.Equal(t, tc.want, result)
			require.Empty(t, store.batches)
			require.Empty(t, graph.calls)
			require.Equal(t, []string{tc.want}, recorder.events)
		})
	}
}

func TestProcessPushEventUnregisteredTarget(t *testing.T) {
	t.Parallel()

	store := newFakeStore(model.TrackedItem{ID: "other", RepoURL: testRepoURL, Branch: "develop"})
	graph := &fakeGrapher{}
	processor := newTestProcessor(t, defaultSettings(), Dependencies{Store: store, Graph: graph, Users: &fakeUsers{}})

	result, err := processor.ProcessPushEvent(context.Background(), pushPayload(t, "refs/heads/main", nil, payloadCommit{ID: "abc"}))
	require.NoError(t, err)
	require.Equal(t, "Repo: <"+testRepoURL+"> Branch: <main> is not registered in Hygieia", result)
	require.Empty(t, graph.calls)
	require.Empty(t, store.batches)
}

func TestProcessPushEventRootCommitOnMain(t *testing.T) {
	t.Parallel()

	store := registeredStore()
	graph := &fakeGrapher{nodes: map[string]*githubapi.CommitNode{
		"root": {
			OID:       "root",
			Parents:   nil,
			Author:    githubapi.Identity{Name: "Octo Cat", Login: "octocat"},
			Committer: githubapi.Identity{Name: "GitHub"},
		},
	}}
	users := &fakeUsers{types: map[string]string{"octocat": "User"}}
	recorder := &fakeRecorder{}
	processor := newTestProcessor(t, defaultSettings(), Dependencies{Store: store, Graph: graph, Users: users, Recorder: recorder})

	result, err := processor.ProcessPushEvent(context.Background(), pushPayload(t, "refs/heads/main", nil, payloadCommit{ID: "root", Message: "initial commit", Username: "octocat"}))
	require.NoError(t, err)
	require.Equal(t, ResultProcessed, result)

	require.Len(t, store.batches, 1)
	batch := store.batches[0]
	require.Len(t, batch.Commits, 1)
	commit := batch.Commits[0]
	require.Equal(t, model.CommitTypeNew, commit.Type)
	require.True(t, commit.FirstEverCommit)
	require.Empty(t, commit.ParentRevisions)
	require.Equal(t, "main", commit.Branch)
	require.Equal(t, testRepoURL, commit.RepoURL)
	require.Equal(t, "octocat", commit.AuthorLogin)
	require.Equal(t, "User", commit.AuthorType)
	require.Equal(t, model.UnknownLogin, commit.CommitterLogin)
	require.Equal(t, 3, commit.NumberOfChanges)
	require.Equal(t, "item-main", commit.TrackedItemID)
	require.Equal(t, fixedNow, commit.Timestamp)
	require.Empty(t, commit.PullNumber)
	require.Empty(t, batch.Create)
	require.Empty(t, batch.Reactivate)

	require.Len(t, graph.calls, 1)
	require.Equal(t, "shared-token", graph.calls[0].token)
	require.Equal(t, "octo-org", graph.calls[0].repo.Owner)
	require.Equal(t, []model.CommitType{model.CommitTypeNew}, recorder.commits)
}

func TestProcessPushEventReingestReusesIdentity(t *testing.T) {
	t.Parallel()

	store := registeredStore()
	graph := &fakeGrapher{nodes: map[string]*githubapi.CommitNode{
		"abc": {OID: "abc", Parents: []string{"p0"}, Author: githubapi.Identity{Login: "octocat"}},
	}}
	sender := map[string]string{"login": "octocat", "type": "User"}
	processor := newTestProcessor(t, defaultSettings(), Dependencies{Store: store, Graph: graph, Users: &fakeUsers{}})
	payload := pushPayload(t, "refs/heads/main", sender, payloadCommit{ID: "abc", Message: "fix"})

	_, err := processor.ProcessPushEvent(context.Background(), payload)
	require.NoError(t, err)
	require.Len(t, store.commits, 1)
	firstID := store.commits[0].ID
	require.NotEmpty(t, firstID)

	redelivery := pushPayload(t, "refs/heads/MAIN", sender, payloadCommit{ID: "abc", Message: "fix"})
	_, err = processor.ProcessPushEvent(context.Background(), redelivery)
	require.NoError(t, err)

	require.Len(t, store.batches, 2)
	second := store.batches[1]
	require.Equal(t, firstID, second.Commits[0].ID)
	require.Equal(t, "item-main", second.Commits[0].TrackedItemID)
	require.Equal(t, []string{"item-main"}, second.Reactivate)
	require.Empty(t, second.Create)

	for _, item := range store.items {
		if item.ID == "item-main" {
			require.True(t, item.Enabled)
			require.True(t, item.Pushed)
		}
	}
}

func TestProcessPushEventCreatesTrackedItemOncePerBatch(t *testing.T) {
	t.Parallel()

	// Registered under the raw URL only; the normalized form has no tracked item yet.
	rawURL := testRepoURL + ".git"
	store := newFakeStore(model.TrackedItem{ID: "raw", RepoURL: rawURL, Branch: "main"})
	graph := &fakeGrapher{nodes: map[string]*githubapi.CommitNode{}}
	processor := newTestProcessor(t, defaultSettings(), Dependencies{Store: store, Graph: graph, Users: &fakeUsers{}})

	payload := []byte(`{"ref":"refs/heads/main","repository":{"url":"` + rawURL + `"},"commits":[{"id":"one"},{"id":"two"}]}`)
	_, err := processor.ProcessPushEvent(context.Background(), payload)
	require.NoError(t, err)

	batch := store.batches[0]
	require.Len(t, batch.Create, 1)
	created := batch.Create[0]
	require.Equal(t, testRepoURL, created.RepoURL)
	require.True(t, created.Enabled)
	require.True(t, created.Pushed)
	require.Equal(t, fixedNow, created.LastUpdated)
	require.Equal(t, created.ID, batch.Commits[0].TrackedItemID)
	require.Equal(t, created.ID, batch.Commits[1].TrackedItemID)
	require.Equal(t, rawURL, batch.Commits[0].RepoURL)
}

func TestProcessPushEventRetryExhaustionPersistsNothing(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	settings := defaultSettings()
	requestClient := githubapi.NewClient(server.Client(), githubapi.RetryConfigFromMaxRetries(settings.GitHub.MaxRetries, 0, 0), githubapi.RateLimitPolicy{})
	requestClient.Sleep = func(context.Context, time.Duration) error { return nil }
	graph, err := githubapi.NewGraphClient(requestClient)
	require.NoError(t, err)

	store := registeredStore()
	recorder := &fakeRecorder{}
	processor := newTestProcessor(t, settings, Dependencies{
		Store:     store,
		Graph:     graph,
		Users:     &fakeUsers{},
		Endpoints: githubapi.Endpoints{GraphQLURL: server.URL + "/graphql"},
		Recorder:  recorder,
	})

	result, err := processor.ProcessPushEvent(context.Background(), pushPayload(t, "refs/heads/main", nil,
		payloadCommit{ID: "one"}, payloadCommit{ID: "two"}))
	require.Empty(t, result)

	var ingestErr *Error
	require.ErrorAs(t, err, &ingestErr)
	require.Equal(t, CodeRemoteUnavailable, ingestErr.Code)
	require.ErrorIs(t, err, githubapi.ErrAttemptsExhausted)
	require.Equal(t, http.StatusBadGateway, ingestErr.HTTPStatus())
	require.EqualValues(t, 3, calls.Load())
	require.Zero(t, store.savedCommits())
	require.Empty(t, store.batches)
	require.Equal(t, []string{string(CodeRemoteUnavailable)}, recorder.failures)
}

func TestProcessPushEventLowRateBudgetStillPersists(t *testing.T) {
	t.Parallel()

	now := time.Unix(1739836800, 0)
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-RateLimit-Remaining", "40")
		w.Header().Set("X-RateLimit-Reset", "1739838600")
		_, _ = w.Write([]byte(`{"data":{"repository":{"object":{
			"oid":"one",
			"parents":{"nodes":[{"oid":"p1"}]},
			"author":{"name":"Octo Cat","user":{"login":"octocat"}},
			"committer":{"name":"GitHub","user":{"login":"web-flow"}}
		}}}}`))
	}))
	t.Cleanup(server.Close)

	settings := defaultSettings()
	requestClient := githubapi.NewClient(server.Client(), githubapi.RetryConfigFromMaxRetries(settings.GitHub.MaxRetries, 0, 0), githubapi.RateLimitPolicy{
		MinRemainingThreshold: 50,
		MaxWait:               time.Minute,
		Now:                   func() time.Time { return now },
	})
	requestClient.Sleep = func(context.Context, time.Duration) error { return nil }
	graph, err := githubapi.NewGraphClient(requestClient)
	require.NoError(t, err)

	store := registeredStore()
	processor := newTestProcessor(t, settings, Dependencies{
		Store:     store,
		Graph:     graph,
		Users:     &fakeUsers{},
		Endpoints: githubapi.Endpoints{GraphQLURL: server.URL + "/graphql"},
	})

	result, err := processor.ProcessPushEvent(context.Background(), pushPayload(t, "refs/heads/main", nil, payloadCommit{ID: "one"}))
	require.NoError(t, err)
	require.Equal(t, ResultProcessed, result)
	require.EqualValues(t, 1, calls.Load())
	require.Equal(t, 1, store.savedCommits())
	saved := store.batches[0].Commits[0]
	require.Equal(t, "web-flow", saved.CommitterLogin)
	require.Equal(t, []string{"p1"}, saved.ParentRevisions)
}

func TestProcessPushEventRemoteErrorPayloadIsFatal(t *testing.T) {
	t.Parallel()

	store := registeredStore()
	graph := &fakeGrapher{err: &githubapi.GraphQLError{Messages: []string{"Bad credentials"}}}
	processor := newTestProcessor(t, defaultSettings(), Dependencies{Store: store, Graph: graph, Users: &fakeUsers{}})

	_, err := processor.ProcessPushEvent(context.Background(), pushPayload(t, "refs/heads/main", nil, payloadCommit{ID: "abc"}))
	require.Equal(t, CodeRemoteError, CodeOf(err))
	require.Len(t, graph.calls, 1)
	require.Empty(t, store.batches)
}

func TestProcessPushEventConfigurationErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		settings Settings
		private  bool
	}{
		{name: "settings_missing", settings: Settings{}},
		{name: "shared_token_missing", settings: Settings{GitHub: &GitHubSettings{}}},
		{name: "repository_token_missing", settings: defaultSettings(), private: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := registeredStore()
			graph := &fakeGrapher{}
			processor := newTestProcessor(t, tc.settings, Dependencies{Store: store, Graph: graph, Users: &fakeUsers{}})

			_, err := processor.ProcessPushEvent(context.Background(), pushPayload(t, "refs/heads/main", nil,
				payloadCommit{ID: "abc", Private: boolPtr(tc.private)}))
			var ingestErr *Error
			require.ErrorAs(t, err, &ingestErr)
			require.Equal(t, CodeInvalidConfiguration, ingestErr.Code)
			require.Equal(t, http.StatusInternalServerError, ingestErr.HTTPStatus())
			require.Empty(t, graph.calls)
			require.Empty(t, store.batches)
		})
	}
}

func TestProcessPushEventPrivateRepositoryToken(t *testing.T) {
	t.Parallel()

	box, err := secret.NewBox("process-secret")
	require.NoError(t, err)
	encrypted, err := box.Encrypt("repo-token")
	require.NoError(t, err)

	store := registeredStore()
	store.tokens[testRepoURL] = encrypted
	graph := &fakeGrapher{}
	processor := newTestProcessor(t, defaultSettings(), Dependencies{Store: store, Graph: graph, Users: &fakeUsers{}, Decrypter: box})

	_, err = processor.ProcessPushEvent(context.Background(), pushPayload(t, "refs/heads/main", nil,
		payloadCommit{ID: "private", Private: boolPtr(true)},
		payloadCommit{ID: "public", Private: boolPtr(false)},
	))
	require.NoError(t, err)
	require.Len(t, graph.calls, 2)
	require.Equal(t, "repo-token", graph.calls[0].token)
	require.Equal(t, "shared-token", graph.calls[1].token)

	wrongKey, err := secret.NewBox("other-secret")
	require.NoError(t, err)
	processor = newTestProcessor(t, defaultSettings(), Dependencies{Store: store, Graph: graph, Users: &fakeUsers{}, Decrypter: wrongKey})
	_, err = processor.ProcessPushEvent(context.Background(), pushPayload(t, "refs/heads/main", nil,
		payloadCommit{ID: "private", Private: boolPtr(true)}))
	require.Equal(t, CodeInvalidConfiguration, CodeOf(err))
}

type staticTokenSource struct {
	token string
	err   error
}

func (s staticTokenSource) Token(context.Context) (string, error) {
	return s.token, s.err
}

func TestProcessPushEventSharedTokenSource(t *testing.T) {
	t.Parallel()

	store := registeredStore()
	graph := &fakeGrapher{}
	settings := Settings{GitHub: &GitHubSettings{}}
	processor := newTestProcessor(t, settings, Dependencies{
		Store: store, Graph: graph, Users: &fakeUsers{},
		SharedTokens: staticTokenSource{token: "ghs_installation"},
	})

	_, err := processor.ProcessPushEvent(context.Background(), pushPayload(t, "refs/heads/main", nil, payloadCommit{ID: "abc"}))
	require.NoError(t, err)
	require.Equal(t, "ghs_installation", graph.calls[0].token)

	processor = newTestProcessor(t, settings, Dependencies{
		Store: store, Graph: graph, Users: &fakeUsers{},
		SharedTokens: staticTokenSource{err: errors.New("app suspended")},
	})
	_, err = processor.ProcessPushEvent(context.Background(), pushPayload(t, "refs/heads/main", nil, payloadCommit{ID: "abc"}))
	require.Equal(t, CodeRemoteUnavailable, CodeOf(err))
}

func TestProcessPushEventAuthorIdentity(t *testing.T) {
	t.Parallel()

	nodes := map[string]*githubapi.CommitNode{
		"by-sender": {OID: "by-sender", Parents: []string{"p"}, Author: githubapi.Identity{Login: "OctoCat"}, Committer: githubapi.Identity{Login: "web-flow"}},
		"by-other":  {OID: "by-other", Parents: []string{"p"}, Author: githubapi.Identity{Login: "hubot"}},
		"anonymous": {OID: "anonymous", Parents: []string{"p"}},
	}
	sender := map[string]string{"login": "octocat", "type": "User", "ldap_dn": "cn=octocat"}

	testCases := []struct {
		name      string
		id        string
		wantLogin string
		wantType  string
		wantLDAP  string
		wantCalls []string
	}{
		{name: "sender_authored", id: "by-sender", wantLogin: "OctoCat", wantType: "User", wantLDAP: "cn=octocat", wantCalls: nil},
		{name: "other_author", id: "by-other", wantLogin: "hubot", wantType: "Bot", wantLDAP: "", wantCalls: []string{"type:hubot", "ldap:hubot"}},
		{name: "unattributed_author", id: "anonymous", wantLogin: model.UnknownLogin, wantCalls: []string{"type:unknown", "ldap:unknown"}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := registeredStore()
			users := &fakeUsers{types: map[string]string{"hubot": "Bot"}}
			processor := newTestProcessor(t, defaultSettings(), Dependencies{Store: store, Graph: &fakeGrapher{nodes: nodes}, Users: users})

			_, err := processor.ProcessPushEvent(context.Background(), pushPayload(t, "refs/heads/main", sender, payloadCommit{ID: tc.id}))
			require.NoError(t, err)

			commit := store.batches[0].Commits[0]
			require.Equal(t, tc.wantLogin, commit.AuthorLogin)
			require.Equal(t, tc.wantType, commit.AuthorType)
			require.Equal(t, tc.wantLDAP, commit.AuthorLDAPDN)
			require.Equal(t, tc.wantCalls, users.calls)
		})
	}
}

func TestProcessPushEventUserLookupFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	store := registeredStore()
	graph := &fakeGrapher{nodes: map[string]*githubapi.CommitNode{"abc": {OID: "abc", Author: githubapi.Identity{Login: "hubot"}}}}
	users := &fakeUsers{err: errors.New("boom")}
	processor := newTestProcessor(t, defaultSettings(), Dependencies{Store: store, Graph: graph, Users: users})

	result, err := processor.ProcessPushEvent(context.Background(), pushPayload(t, "refs/heads/main", nil, payloadCommit{ID: "abc"}))
	require.NoError(t, err)
	require.Equal(t, ResultProcessed, result)
	require.Empty(t, store.batches[0].Commits[0].AuthorType)
}

func TestProcessPushEventSoftMiss(t *testing.T) {
	t.Parallel()

	patterns, err := CompileExclusionPatterns([]string{`\[skip ci\].*`})
	require.NoError(t, err)
	settings := defaultSettings()
	settings.GitHub.NotBuiltCommits = patterns

	store := registeredStore()
	users := &fakeUsers{}
	processor := newTestProcessor(t, settings, Dependencies{Store: store, Graph: &fakeGrapher{}, Users: users})

	_, err = processor.ProcessPushEvent(context.Background(), pushPayload(t, "refs/heads/main", nil,
		payloadCommit{ID: "missing", Message: "[skip ci] docs", Username: "octocat"}))
	require.NoError(t, err)

	commit := store.batches[0].Commits[0]
	require.Equal(t, "octocat", commit.AuthorLogin)
	require.Equal(t, "Octo Cat", commit.AuthorName)
	require.Equal(t, model.UnknownLogin, commit.CommitterLogin)
	require.Empty(t, commit.ParentRevisions)
	require.True(t, commit.FirstEverCommit)
	require.Equal(t, model.CommitTypeNotBuilt, commit.Type)
	require.Empty(t, users.calls)
}

func TestProcessPushEventRebaseAndMerge(t *testing.T) {
	t.Parallel()

	store := registeredStore()
	store.pulls = []model.PullRequest{{Number: "314", MergeEventRevision: "c3"}}
	nodes := map[string]*githubapi.CommitNode{
		"c1": {OID: "c1", Parents: []string{"base"}},
		"c2": {OID: "c2", Parents: []string{"c1"}},
		"c3": {OID: "c3", Parents: []string{"c2"}},
	}
	processor := newTestProcessor(t, defaultSettings(), Dependencies{Store: store, Graph: &fakeGrapher{nodes: nodes}, Users: &fakeUsers{}})

	_, err := processor.ProcessPushEvent(context.Background(), pushPayload(t, "refs/heads/main", nil,
		payloadCommit{ID: "c1"}, payloadCommit{ID: "c2"}, payloadCommit{ID: "c3"}))
	require.NoError(t, err)
	require.Equal(t, []string{"314", "314", "314"}, pullNumbers(store.batches[0].Commits))
}

func TestProcessPushEventStoreFailures(t *testing.T) {
	t.Parallel()

	store := registeredStore()
	store.saveErr = errors.New("write conflict")
	processor := newTestProcessor(t, defaultSettings(), Dependencies{Store: store, Graph: &fakeGrapher{}, Users: &fakeUsers{}})
	_, err := processor.ProcessPushEvent(context.Background(), pushPayload(t, "refs/heads/main", nil, payloadCommit{ID: "abc"}))
	require.Equal(t, CodeStoreFailure, CodeOf(err))

	store = registeredStore()
	store.findItemErr = errors.New("connection reset")
	graph := &fakeGrapher{}
	processor = newTestProcessor(t, defaultSettings(), Dependencies{Store: store, Graph: graph, Users: &fakeUsers{}})
	_, err = processor.ProcessPushEvent(context.Background(), pushPayload(t, "refs/heads/main", nil, payloadCommit{ID: "abc"}))
	require.Equal(t, CodeStoreFailure, CodeOf(err))
	require.Empty(t, graph.calls)
}

func TestSettingsFromConfig(t *testing.T) {
	t.Parallel()

	settings, err := SettingsFromConfig(configWebHook(nil))
	require.NoError(t, err)
	require.Nil(t, settings.GitHub)
	require.Zero(t, settings.MaxRetries())

	settings, err = SettingsFromConfig(configWebHook([]string{"^wip.*"}))
	require.NoError(t, err)
	require.NotNil(t, settings.GitHub)
	require.Equal(t, "tok", settings.GitHub.SharedToken)
	require.Equal(t, 4, settings.GitHub.MaxRetries)
	require.Equal(t, 4, settings.MaxRetries())
	require.Len(t, settings.GitHub.NotBuiltCommits, 1)

	_, err = SettingsFromConfig(configWebHook([]string{"("}))
	require.Error(t, err)
}

func configWebHook(patterns []string) config.WebHookConfig {
	if patterns == nil {
		return config.WebHookConfig{}
	}
	return config.WebHookConfig{GitHub: &config.GitHubWebHookConfig{
		Token:           "tok",
		MaxRetries:      4,
		NotBuiltCommits: patterns,
	}}
}
