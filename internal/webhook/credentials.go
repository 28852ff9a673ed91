package webhook

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TokenDecrypter reverses the encryption applied to tokens stored on tracked items.
type TokenDecrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// TokenSource supplies the shared token when none is configured directly.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// RepositoryTokenReader finds the encrypted token stored for a repository.
type RepositoryTokenReader interface {
	FindRepositoryToken(ctx context.Context, repoURL string) (string, error)
}

type credentialResolver struct {
	settings  *GitHubSettings
	tokens    RepositoryTokenReader
	decrypter TokenDecrypter
	shared    TokenSource
	logger    *zap.Logger
}

// resolve selects the token for one commit's enrichment call.
func (r *credentialResolver) resolve(ctx context.Context, repoURL string, private bool) (string, error) {
	if r.settings == nil {
		return "", newError(CodeInvalidConfiguration, "github webhook settings are not configured", nil)
	}

	var token string
	if private {
		start := time.Now()
		encrypted, err := r.tokens.FindRepositoryToken(ctx, repoURL)
		r.logger.Debug("repository token lookup finished",
			zap.String("repo_url", repoURL),
			zap.Duration("elapsed", time.Since(start)),
		)
		if err != nil {
			return "", newError(CodeStoreFailure, "repository token lookup failed", err)
		}
		if encrypted != "" {
			if r.decrypter == nil {
				return "", newError(CodeInvalidConfiguration, "encryption key is not configured", nil)
			}
			token, err = r.decrypter.Decrypt(encrypted)
			if err != nil {
				return "", newError(CodeInvalidConfiguration, "stored repository token cannot be decrypted", err)
			}
		}
	} else {
		token = r.settings.SharedToken
		if strings.TrimSpace(token) == "" && r.shared != nil {
			minted, err := r.shared.Token(ctx)
			if err != nil {
				return "", newError(CodeRemoteUnavailable, "shared token could not be minted", err)
			}
			token = minted
		}
	}

	if strings.TrimSpace(token) == "" {
		return "", newError(CodeInvalidConfiguration, "Failed processing payload. Missing Github API token in Hygieia.", nil)
	}
	return token, nil
}
