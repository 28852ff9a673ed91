package webhook

import (
	"regexp"

	"github.com/cam3ron2/commit-ingest/internal/config"
)

// Settings is the explicit configuration value passed to every pipeline stage.
type Settings struct {
	// GitHub is nil when no GitHub webhook settings are configured.
	GitHub *GitHubSettings
}

// GitHubSettings holds the recognized GitHub push ingestion options.
type GitHubSettings struct {
	// SharedToken authenticates enrichment calls for public repositories.
	SharedToken string
	// NotBuiltCommits are compiled exclusion patterns; an empty list classifies every
	// single-parent commit as New.
	NotBuiltCommits []*regexp.Regexp
	// MaxRetries is the number of retries after the first enrichment attempt.
	MaxRetries int
}

// MaxRetries returns the enrichment retry ceiling, zero when GitHub is unconfigured.
func (s Settings) MaxRetries() int {
	if s.GitHub == nil {
		return 0
	}
	return s.GitHub.MaxRetries
}

// SettingsFromConfig compiles the webhook section of the application config.
func SettingsFromConfig(cfg config.WebHookConfig) (Settings, error) {
	if cfg.GitHub == nil {
		return Settings{}, nil
	}
	patterns, err := CompileExclusionPatterns(cfg.GitHub.NotBuiltCommits)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		GitHub: &GitHubSettings{
			SharedToken:     cfg.GitHub.Token,
			NotBuiltCommits: patterns,
			MaxRetries:      cfg.GitHub.MaxRetries,
		},
	}, nil
}
