package sendpulse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"oralplatinum/cobranca/internal/infrastructure/cache"
)

// ErrMissingCredentials is returned when the client id or secret is not set.
var ErrMissingCredentials = errors.New("sendpulse client credentials are not set")

const tokenExpiryMargin = 30 * time.Second

// HTTPClient allows using both standard and traced HTTP clients.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// AuthManager obtains SendPulse access tokens with the OAuth2
// client-credentials grant and caches them until they expire.
type AuthManager struct {
	baseURL      string
	clientID     string
	clientSecret string
	tokenTTL     time.Duration
	cache        *cache.TokenCache
	client       HTTPClient
	log          *slog.Logger
	mu           sync.Mutex
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// NewAuthManager creates a SendPulse authentication manager. tokenTTL is used
// when the token endpoint reports no lifetime and the token carries no exp claim.
func NewAuthManager(baseURL, clientID, clientSecret string, tokenTTL time.Duration, client HTTPClient, log *slog.Logger) (*AuthManager, error) {
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(clientSecret) == "" {
		return nil, ErrMissingCredentials
	}
	return &AuthManager{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenTTL:     tokenTTL,
		cache:        cache.NewTokenCache(tokenExpiryMargin),
		client:       client,
		log:          log,
	}, nil
}

// GetToken returns a valid access token, requesting a new one when needed.
func (a *AuthManager) GetToken(ctx context.Context) (string, error) {
	if token, ok := a.cache.Get(); ok {
		return token, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if token, ok := a.cache.Get(); ok {
		return token, nil
	}

	resp, err := a.authenticate(ctx)
	if err != nil {
		return "", fmt.Errorf("sendpulse authentication failed: %w", err)
	}

	expiresAt := a.expiry(resp)
	a.cache.SetUntil(resp.AccessToken, expiresAt)
	a.log.Debug("sendpulse token refreshed", "expires_at", expiresAt)

	return resp.AccessToken, nil
}

// ClearToken removes the cached token, forcing a refresh on next request.
func (a *AuthManager) ClearToken() {
	a.cache.Clear()
}

func (a *AuthManager) authenticate(ctx context.Context) (tokenResponse, error) {
	var out tokenResponse

	jsonData, err := json.Marshal(tokenRequest{
		GrantType:    "client_credentials",
		ClientID:     a.clientID,
		ClientSecret: a.clientSecret,
	})
	if err != nil {
		return out, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/oauth/access_token", bytes.NewReader(jsonData))
	if err != nil {
		return out, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return out, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("unmarshal token response: %w", err)
	}
	if out.AccessToken == "" {
		return out, errors.New("empty access_token in response")
	}

	return out, nil
}

// expiry picks the token lifetime from expires_in, then from the token's own
// exp claim, then from the configured TTL.
func (a *AuthManager) expiry(resp tokenResponse) time.Time {
	now := time.Now()
	if resp.ExpiresIn > 0 {
		return now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(resp.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}

	return now.Add(a.tokenTTL)
}
