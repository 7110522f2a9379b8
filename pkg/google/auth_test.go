package google

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
)

const testSecrets = `{"installed":{"client_id":"id","client_secret":"secret",
"auth_uri":"https://accounts.google.com/o/oauth2/auth",
"token_uri":"https://oauth2.googleapis.com/token",
"redirect_uris":["http://localhost"]}}`

func TestRedirectURL(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"", "http://localhost:6789/oauth2callback"},
		{"urn:ietf:wg:oauth:2.0:oob", "http://localhost:6789/oauth2callback"},
		{"http://localhost", "http://localhost:6789"},
		{"http://127.0.0.1:80/cb", "http://127.0.0.1:6789/cb"},
		{"https://example.com/cb", "https://example.com/cb"},
	} {
		if got := redirectURL(tc.in); got != tc.want {
			t.Errorf("For %q expected %s, got %s", tc.in, tc.want, got)
		}
	}
}

func TestLoadOAuthConfig(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadOAuthConfig(dir); err == nil {
		t.Error("Expected an error without a client secrets file")
	}
	if err := os.WriteFile(filepath.Join(dir, ClientSecretsFile), []byte(testSecrets), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	cfg, err := LoadOAuthConfig(dir)
	if err != nil {
		t.Fatalf("LoadOAuthConfig failed: %v", err)
	}
	if cfg.ClientID != "id" || cfg.RedirectURL != "http://localhost:6789" {
		t.Errorf("Unexpected config %+v", cfg)
	}
}

func TestNewHTTPClientToken(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ClientSecretsFile), []byte(testSecrets), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	logger := log.New(io.Discard)

	_, err := NewHTTPClient(context.Background(), dir, logger)
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("Expected ErrNoToken, got %v", err)
	}

	tok := &oauth2.Token{AccessToken: "abc", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)}
	path := filepath.Join(dir, TokenFile)
	if err := saveToken(path, tok); err != nil {
		t.Fatalf("saveToken failed: %v", err)
	}
	loaded, err := tokenFromFile(path)
	if err != nil {
		t.Fatalf("tokenFromFile failed: %v", err)
	}
	if loaded.AccessToken != "abc" || loaded.RefreshToken != "r" {
		t.Errorf("Expected saved token back, got %+v", loaded)
	}
	if _, err := NewHTTPClient(context.Background(), dir, logger); err != nil {
		t.Errorf("NewHTTPClient failed: %v", err)
	}
}
