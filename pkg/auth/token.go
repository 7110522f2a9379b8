package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/harrisonrobin/larkalarm/pkg/state"
)

// expiryMargin is subtracted from the bridge-reported lifetime so a token is
// never used right at its edge.
const expiryMargin = time.Minute

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Token returns a bearer token for the Lark API, refreshing it through the
// bridge when the cached one is missing or expired. There is a single
// attempt per call.
func (b *Bridge) Token(ctx context.Context) (string, error) {
	tok, err := b.token(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (b *Bridge) token(ctx context.Context) (*oauth2.Token, error) {
	now := b.now()
	if cached, ok := b.cached(now); ok {
		return cached, nil
	}

	deviceKey, err := b.store.GetString(state.KeyDeviceKey)
	if err != nil || deviceKey == "" {
		return nil, ErrNotAuthorized
	}

	b.logger.Debug("refreshing access token")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+refreshPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServer, err)
	}
	req.Header.Set("Authorization", "Bearer "+deviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServer, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		if err := b.clearCredentials(); err != nil {
			b.logger.Warn("could not clear credentials", "err", err)
		}
		return nil, ErrNotAuthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: refresh failed with status %d", ErrServer, resp.StatusCode)
	}

	var data refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServer, err)
	}
	if data.AccessToken == "" {
		return nil, fmt.Errorf("%w: bridge returned no access token", ErrServer)
	}

	expiry := now.Add(time.Duration(data.ExpiresIn)*time.Second - expiryMargin)
	if err := b.store.SetString(state.KeyCachedToken, data.AccessToken); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServer, err)
	}
	if err := b.store.SetTime(state.KeyTokenExpiry, expiry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServer, err)
	}
	return &oauth2.Token{AccessToken: data.AccessToken, TokenType: "Bearer", Expiry: expiry}, nil
}

func (b *Bridge) cached(now time.Time) (*oauth2.Token, bool) {
	tok, err := b.store.GetString(state.KeyCachedToken)
	if err != nil || tok == "" {
		return nil, false
	}
	expiry, err := b.store.GetTime(state.KeyTokenExpiry)
	if err != nil || !now.Before(expiry) {
		return nil, false
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer", Expiry: expiry}, true
}

type tokenSource struct {
	ctx    context.Context
	bridge *Bridge
}

func (s tokenSource) Token() (*oauth2.Token, error) {
	return s.bridge.token(s.ctx)
}

// TokenSource adapts the cache to oauth2.TokenSource for API clients.
func (b *Bridge) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSource{ctx: ctx, bridge: b}
}

// IsNotAuthorized reports whether err, possibly wrapped by an HTTP client,
// is ErrNotAuthorized.
func IsNotAuthorized(err error) bool {
	return errors.Is(err, ErrNotAuthorized)
}
