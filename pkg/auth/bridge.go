package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harrisonrobin/larkalarm/pkg/state"
)

const (
	// DefaultBridgeURL is the OAuth bridge that trades Lark logins for device
	// credentials and device credentials for access tokens.
	DefaultBridgeURL = "https://task-alarms-oauth-bridge.pages.dev"

	registerPath = "/auth/register-device"
	refreshPath  = "/auth/refresh-token"
	loginPath    = "/login"
)

var (
	// ErrNotAuthorized means there is no usable device credential. The user
	// has to log in again.
	ErrNotAuthorized = errors.New("auth: not authorized")
	// ErrServer covers every other failure talking to the bridge.
	ErrServer = errors.New("auth: server error")
)

// Bridge talks to the OAuth bridge and keeps the device credential and the
// short-lived access token in the state store.
type Bridge struct {
	baseURL string
	client  *http.Client
	store   *state.Store
	logger  *log.Logger
	now     func() time.Time
}

// NewBridge creates a bridge client. An empty baseURL selects DefaultBridgeURL.
func NewBridge(baseURL string, store *state.Store, logger *log.Logger) *Bridge {
	if baseURL == "" {
		baseURL = DefaultBridgeURL
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Bridge{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// LoginURL is the page the user opens to start the Lark OAuth flow.
func (b *Bridge) LoginURL(extensionID string) string {
	return b.baseURL + loginPath + "?extension_id=" + url.QueryEscape(extensionID)
}

// Authorized reports whether a device credential is stored.
func (b *Bridge) Authorized() bool {
	key, err := b.store.GetString(state.KeyDeviceKey)
	return err == nil && key != ""
}

type registerRequest struct {
	OAuthProof string `json:"oauth_proof"`
	DeviceID   string `json:"device_id"`
}

type registerResponse struct {
	DeviceKey string `json:"device_key"`
}

// RegisterDevice exchanges the one-time OAuth proof for a long-lived device
// credential and stores it.
func (b *Bridge) RegisterDevice(ctx context.Context, proof string) error {
	if strings.TrimSpace(proof) == "" {
		return errors.New("auth: empty oauth proof")
	}
	deviceID, err := b.store.EnsureDeviceID()
	if err != nil {
		return fmt.Errorf("failed to load device id: %w", err)
	}

	body, err := json.Marshal(registerRequest{OAuthProof: proof, DeviceID: deviceID})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+registerPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("registration failed: bridge returned status %d", resp.StatusCode)
	}

	var data registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	if data.DeviceKey == "" {
		return errors.New("registration failed: bridge returned no device key")
	}
	if err := b.store.SetString(state.KeyDeviceKey, data.DeviceKey); err != nil {
		return fmt.Errorf("failed to store device key: %w", err)
	}
	b.logger.Info("device registered", "device_id", deviceID)
	return nil
}

// Logout forgets the device credential and any cached token.
func (b *Bridge) Logout() error {
	return b.clearCredentials()
}

func (b *Bridge) clearCredentials() error {
	return b.store.Remove(state.KeyDeviceKey, state.KeyCachedToken, state.KeyTokenExpiry)
}
