package githubapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cam3ron2/commit-ingest/internal/telemetry"
	"github.com/google/go-github/v75/github"
	"go.opentelemetry.io/otel/attribute"
)

// UserClient looks up user profile fields through the GitHub REST API.
// Each lookup is an independent request authenticated with the caller's token.
type UserClient struct {
	httpClient *http.Client
}

// NewUserClient creates a user lookup client.
func NewUserClient(httpClient *http.Client) *UserClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &UserClient{httpClient: httpClient}
}

// AuthorType returns the account type ("User", "Bot", "Organization") for a login.
// An unknown login yields an empty value and no error.
func (c *UserClient) AuthorType(ctx context.Context, repo RepoRef, login, token string) (string, error) {
	user, err := c.getUser(ctx, repo, login, token)
	if err != nil || user == nil {
		return "", err
	}
	return user.GetType(), nil
}

// LDAPDN returns the directory distinguished name for a login. Only GitHub Enterprise
// Server instances with LDAP sync populate it.
func (c *UserClient) LDAPDN(ctx context.Context, repo RepoRef, login, token string) (string, error) {
	user, err := c.getUser(ctx, repo, login, token)
	if err != nil || user == nil {
		return "", err
	}
	return user.GetLdapDn(), nil
}

func (c *UserClient) getUser(ctx context.Context, repo RepoRef, login, token string) (user *github.User, err error) {
	trimmedLogin := strings.TrimSpace(login)
	if trimmedLogin == "" {
		return nil, nil
	}

	ctx, span := telemetry.StartDependencySpan(ctx, "internal/githubapi", "githubapi.users.get",
		attribute.String("github.login", trimmedLogin),
	)
	defer func() { telemetry.EndSpan(span, err, "user resolved") }()

	rest, err := NewGitHubRESTClient(c.httpClient, repo.APIBaseURL)
	if err != nil {
		return nil, err
	}
	client := rest.Client
	if token != "" {
		client = client.WithAuthToken(token)
	}

	user, _, err = client.Users.Get(ctx, trimmedLogin)
	if err != nil {
		var errResp *github.ErrorResponse
		if errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get user %q: %w", trimmedLogin, err)
	}
	return user, nil
}
