// -----------------------------------------------------------------------
// Token Provider - resolves (user, provider) to plaintext bearer tokens.
// Token issuance, refresh and encrypted storage are external; the pipeline
// only ever sees a short-lived plaintext token.
// -----------------------------------------------------------------------

package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trado/internal/common"
	"github.com/ternarybob/trado/internal/interfaces"
	"github.com/ternarybob/trado/internal/models"
	"golang.org/x/oauth2"
)

// NewProvider creates the configured token provider. With an endpoint
// configured tokens come from the external token service; otherwise tokens
// are read from environment variables, which keeps local development and
// tests working without the external service.
func NewProvider(config *common.TokensConfig, logger arbor.ILogger) (interfaces.TokenProvider, error) {
	if config.Endpoint == "" {
		logger.Warn().Msg("No token endpoint configured, using environment-backed tokens")
		return NewEnvProvider(logger), nil
	}

	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid token provider timeout '%s': %w", config.Timeout, err)
	}

	return &HTTPProvider{
		endpoint: strings.TrimRight(config.Endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
		cache:    make(map[string]*oauth2.Token),
	}, nil
}

// HTTPProvider resolves tokens from the external token service. Resolved
// tokens are cached per (user, provider) until shortly before expiry.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
	logger   arbor.ILogger

	mu    sync.Mutex
	cache map[string]*oauth2.Token
}

// tokenResponse is the token service's wire shape
type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// Resolve fetches a bearer token for (user, provider)
func (p *HTTPProvider) Resolve(ctx context.Context, userID, provider string) (string, error) {
	cacheKey := userID + "/" + provider

	p.mu.Lock()
	if cached, ok := p.cache[cacheKey]; ok && cached.Valid() {
		p.mu.Unlock()
		return cached.AccessToken, nil
	}
	p.mu.Unlock()

	reqURL := fmt.Sprintf("%s/tokens/%s?user_id=%s", p.endpoint, url.PathEscape(provider), url.QueryEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to build token request: %v", models.ErrTokenUnavailable, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request failed for %s: %v", models.ErrTokenUnavailable, provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token service returned %d for %s", models.ErrTokenUnavailable, resp.StatusCode, provider)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: invalid token response: %v", models.ErrTokenUnavailable, err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("%w: token service returned empty token for %s", models.ErrTokenUnavailable, provider)
	}

	token := &oauth2.Token{
		AccessToken: body.AccessToken,
		TokenType:   body.TokenType,
		Expiry:      body.ExpiresAt,
	}

	p.mu.Lock()
	p.cache[cacheKey] = token
	p.mu.Unlock()

	p.logger.Debug().
		Str("provider", provider).
		Msg("Resolved bearer token")

	return token.AccessToken, nil
}

// EnvProvider reads static tokens from TRADO_TOKEN_<PROVIDER> environment
// variables through oauth2 static token sources.
type EnvProvider struct {
	logger arbor.ILogger

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// NewEnvProvider creates an environment-backed token provider
func NewEnvProvider(logger arbor.ILogger) *EnvProvider {
	return &EnvProvider{
		logger:  logger,
		sources: make(map[string]oauth2.TokenSource),
	}
}

// Resolve returns the static token for the provider, ignoring userID
func (p *EnvProvider) Resolve(ctx context.Context, userID, provider string) (string, error) {
	p.mu.Lock()
	source, ok := p.sources[provider]
	if !ok {
		envKey := "TRADO_TOKEN_" + strings.ToUpper(provider)
		value := os.Getenv(envKey)
		if value == "" {
			p.mu.Unlock()
			return "", fmt.Errorf("%w: %s is not set", models.ErrTokenUnavailable, envKey)
		}
		source = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: value})
		p.sources[provider] = source
	}
	p.mu.Unlock()

	token, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrTokenUnavailable, err)
	}
	return token.AccessToken, nil
}
