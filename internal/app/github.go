package app

import (
	"fmt"
	"net/http"

	"github.com/cam3ron2/commit-ingest/internal/config"
	"github.com/cam3ron2/commit-ingest/internal/githubapi"
	"github.com/cam3ron2/commit-ingest/internal/secret"
	"github.com/cam3ron2/commit-ingest/internal/webhook"
)

// githubClients are the remote collaborators handed to the processor.
type githubClients struct {
	graph        *githubapi.GraphClient
	users        *githubapi.UserClient
	sharedTokens webhook.TokenSource
	decrypter    webhook.TokenDecrypter
	endpoints    githubapi.Endpoints
}

// newGitHubClients builds the remote collaborators. The enrichment retry ceiling
// comes from settings so the processor and its request client share one value.
func newGitHubClients(cfg *config.Config, settings webhook.Settings, transport http.RoundTripper) (githubClients, error) {
	if cfg == nil {
		return githubClients{}, fmt.Errorf("config is required")
	}

	httpClient := githubapi.NewHTTPClient(cfg.GitHub.RequestTimeout)
	if transport != nil {
		httpClient.Transport = transport
	}

	requestClient := githubapi.NewClient(
		httpClient,
		githubapi.RetryConfigFromMaxRetries(settings.MaxRetries(), cfg.Retry.InitialBackoff, cfg.Retry.MaxBackoff),
		githubapi.RateLimitPolicy{
			MinRemainingThreshold: cfg.RateLimit.MinRemainingThreshold,
			MinResetBuffer:        cfg.RateLimit.MinResetBuffer,
			SecondaryLimitBackoff: cfg.RateLimit.SecondaryLimitBackoff,
			MaxWait:               cfg.RateLimit.MaxWait,
		},
	)
	graph, err := githubapi.NewGraphClient(requestClient)
	if err != nil {
		return githubClients{}, fmt.Errorf("create graphql client: %w", err)
	}

	clients := githubClients{
		graph: graph,
		users: githubapi.NewUserClient(httpClient),
		endpoints: githubapi.Endpoints{
			GraphQLURL: cfg.GitHub.GraphQLURL,
			APIBaseURL: cfg.GitHub.APIBaseURL,
		},
	}

	if app := cfg.GitHub.App; app != nil {
		source, err := githubapi.NewInstallationTokenSource(githubapi.InstallationAuthConfig{
			AppID:          app.AppID,
			InstallationID: app.InstallationID,
			PrivateKeyPath: app.PrivateKeyPath,
			APIBaseURL:     cfg.GitHub.APIBaseURL,
			BaseTransport:  transport,
		})
		if err != nil {
			return githubClients{}, fmt.Errorf("create installation token source: %w", err)
		}
		clients.sharedTokens = source
	}

	if gh := cfg.WebHook.GitHub; gh != nil && gh.EncryptionKey != "" {
		box, err := secret.NewBox(gh.EncryptionKey)
		if err != nil {
			return githubClients{}, fmt.Errorf("create token decrypter: %w", err)
		}
		clients.decrypter = box
	}

	return clients, nil
}

// usable reports whether public repositories can be authenticated.
func (c githubClients) usable(cfg *config.Config) bool {
	if c.sharedTokens != nil {
		return true
	}
	return cfg != nil && cfg.WebHook.GitHub != nil && cfg.WebHook.GitHub.Token != ""
}
