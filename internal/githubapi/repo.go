package githubapi

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	publicGitHubHost    = "github.com"
	publicGraphQLURL    = "https://api.github.com/graphql"
	defaultGitHubAPIURL = "https://api.github.com/"
)

// RepoRef identifies one repository and the API endpoints that serve it.
type RepoRef struct {
	// URL is the normalized web URL without trailing slash or .git suffix.
	URL        string
	Host       string
	Owner      string
	Name       string
	GraphQLURL string
	APIBaseURL string
}

// Endpoints overrides the API endpoints derived from a repository host.
type Endpoints struct {
	GraphQLURL string
	APIBaseURL string
}

// ParseRepoURL normalizes a repository web URL and derives its owner, name and API endpoints.
// github.com repositories use api.github.com; any other host is treated as GitHub Enterprise.
func ParseRepoURL(rawURL string, overrides Endpoints) (RepoRef, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return RepoRef{}, fmt.Errorf("repository url is required")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return RepoRef{}, fmt.Errorf("parse repository url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return RepoRef{}, fmt.Errorf("parse repository url %q: missing scheme or host", rawURL)
	}

	path := strings.Trim(parsed.Path, "/")
	path = strings.TrimSuffix(path, ".git")
	segments := strings.Split(path, "/")
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
		return RepoRef{}, fmt.Errorf("parse repository url %q: expected /<owner>/<name>", rawURL)
	}

	host := strings.ToLower(parsed.Host)
	ref := RepoRef{
		URL:   fmt.Sprintf("%s://%s/%s/%s", parsed.Scheme, host, segments[0], segments[1]),
		Host:  host,
		Owner: segments[0],
		Name:  segments[1],
	}

	if host == publicGitHubHost || host == "www."+publicGitHubHost {
		ref.GraphQLURL = publicGraphQLURL
		ref.APIBaseURL = defaultGitHubAPIURL
	} else {
		ref.GraphQLURL = fmt.Sprintf("%s://%s/api/graphql", parsed.Scheme, host)
		ref.APIBaseURL = fmt.Sprintf("%s://%s/api/v3/", parsed.Scheme, host)
	}

	if override := strings.TrimSpace(overrides.GraphQLURL); override != "" {
		ref.GraphQLURL = override
	}
	if override := strings.TrimSpace(overrides.APIBaseURL); override != "" {
		ref.APIBaseURL = override
	}
	return ref, nil
}
