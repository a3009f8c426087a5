package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"assessment-results/internal/config"
	"assessment-results/internal/logger"
	"assessment-results/internal/model"
	"assessment-results/pkg/errors"

	"github.com/rs/zerolog"
)

const tokenRefreshMargin = 30 * time.Second

// AuthManager holds the service account token used against the GraphQL API.
type AuthManager struct {
	cfg       *config.Config
	client    *http.Client
	token     string
	expiresAt time.Time
	mu        sync.RWMutex
	log       zerolog.Logger
	now       func() time.Time
}

func NewAuthManager(cfg *config.Config, client *http.Client) *AuthManager {
	return &AuthManager{
		cfg:    cfg,
		client: client,
		log:    logger.Component("gateway.auth"),
		now:    time.Now,
	}
}

// Enabled is false when no auth endpoint is configured, e.g. behind a trusted proxy.
func (a *AuthManager) Enabled() bool {
	return a.cfg.Gateway.AuthEndpoint != ""
}

func (a *AuthManager) GetToken(ctx context.Context) (string, error) {
	a.mu.RLock()
	if a.valid() {
		token := a.token
		a.mu.RUnlock()
		return token, nil
	}
	a.mu.RUnlock()

	return a.refreshToken(ctx)
}

// Invalidate drops the cached token after the API rejected it.
func (a *AuthManager) Invalidate() {
	a.mu.Lock()
	a.token = ""
	a.expiresAt = time.Time{}
	a.mu.Unlock()
}

// valid must be called with mu held.
func (a *AuthManager) valid() bool {
	return a.token != "" && a.now().Before(a.expiresAt.Add(-tokenRefreshMargin))
}

func (a *AuthManager) refreshToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if a.valid() {
		return a.token, nil
	}

	a.log.Debug().Msg("Refreshing authentication token")

	jsonData, err := json.Marshal(map[string]string{
		"username": a.cfg.Gateway.Username,
		"password": a.cfg.Gateway.Password,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal auth data: %w", err)
	}

	url := a.cfg.Gateway.BaseURL + a.cfg.Gateway.AuthEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", errors.NewRetryableError(err, "auth request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", errors.ErrAuthenticationFailed, resp.StatusCode)
	}

	var tokenResp model.AuthTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode auth response: %w", err)
	}

	a.token = tokenResp.Token
	a.expiresAt = a.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)

	a.log.Debug().Time("expires_at", a.expiresAt).Msg("Token refreshed successfully")

	return a.token, nil
}
