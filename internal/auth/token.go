// Package auth manages the OAuth2 token lifecycle for the quote API.
//
// A long-lived refresh token is exchanged for short-lived access tokens;
// the manager refreshes proactively before expiry and is the single point
// of truth for "am I authenticated".
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tsquant/go-bars-collector/internal/apperrors"
)

const (
	// DefaultTokenURL is the production token-exchange endpoint.
	DefaultTokenURL = "https://signin.tradestation.com/oauth/token"

	// RefreshMargin is the safety window before expiry inside which the
	// cached token is treated as stale.
	RefreshMargin = 60 * time.Second

	// defaultExpiresIn applies when the token response omits expires_in.
	defaultExpiresIn = 1200 * time.Second

	refreshTimeout = 30 * time.Second
)

// Token holds the mutable access-token state. The refresh token is supplied
// externally and may be rotated by the server mid-run.
type Token struct {
	AccessToken  string
	Expiry       time.Time
	RefreshToken string
}

// TokenManager owns the OAuth2 credentials and the cached access token.
// The pipeline is single-worker, so no locking is needed; the manager is
// consulted before every fetch request.
type TokenManager struct {
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
	logger       *slog.Logger

	token Token

	// now is overridable for tests with a mock clock.
	now func() time.Time
}

// Option customizes a TokenManager.
type Option func(*TokenManager)

// WithTokenURL overrides the token-exchange endpoint.
func WithTokenURL(u string) Option {
	return func(m *TokenManager) { m.tokenURL = u }
}

// WithHTTPClient overrides the HTTP client used for refreshes.
func WithHTTPClient(c *http.Client) Option {
	return func(m *TokenManager) { m.httpClient = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *TokenManager) { m.now = now }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *TokenManager) { m.logger = l }
}

// NewTokenManager creates a manager for the given OAuth2 credentials.
func NewTokenManager(clientID, clientSecret, refreshToken string, opts ...Option) *TokenManager {
	m := &TokenManager{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     DefaultTokenURL,
		httpClient:   &http.Client{Timeout: refreshTimeout},
		logger:       slog.Default(),
		token:        Token{RefreshToken: refreshToken},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token returns a currently valid access token, refreshing first when the
// cached one is absent or within RefreshMargin of expiry. Refresh failures
// are fatal for the run and surface as *apperrors.AuthError.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	if !m.valid() {
		if err := m.refresh(ctx); err != nil {
			return "", err
		}
	}
	return m.token.AccessToken, nil
}

// Invalidate drops the cached access token so the next Token call refreshes.
// The fetcher calls this after a 401 before its single re-attempt.
func (m *TokenManager) Invalidate() {
	m.token.AccessToken = ""
	m.token.Expiry = time.Time{}
}

func (m *TokenManager) valid() bool {
	if m.token.AccessToken == "" || m.token.Expiry.IsZero() {
		return false
	}
	return m.now().Before(m.token.Expiry.Add(-RefreshMargin))
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func (m *TokenManager) refresh(ctx context.Context) error {
	m.logger.Info("refreshing access token")

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", m.clientID)
	form.Set("client_secret", m.clientSecret)
	form.Set("refresh_token", m.token.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return apperrors.NewAuthError(fmt.Errorf("building token request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return apperrors.NewAuthError(fmt.Errorf("token refresh request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.NewAuthError(fmt.Errorf("reading token response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return apperrors.NewAuthError(fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return apperrors.NewAuthError(fmt.Errorf("decoding token response: %w", err))
	}
	if tr.AccessToken == "" {
		return apperrors.NewAuthError(fmt.Errorf("token response missing access_token"))
	}

	expiresIn := defaultExpiresIn
	if tr.ExpiresIn > 0 {
		expiresIn = time.Duration(tr.ExpiresIn) * time.Second
	}

	m.token.AccessToken = tr.AccessToken
	m.token.Expiry = m.now().Add(expiresIn)
	if tr.RefreshToken != "" {
		// The server may rotate the refresh token on each exchange.
		m.token.RefreshToken = tr.RefreshToken
	}

	m.logger.Info("access token refreshed", "expires_in", expiresIn)
	return nil
}
