package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harrisonrobin/larkalarm/pkg/state"
)

func newTestBridge(t *testing.T, handler http.HandlerFunc) (*Bridge, *state.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store, err := state.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	b := NewBridge(srv.URL, store, log.New(io.Discard))
	return b, store
}

func TestTokenWithoutDeviceKey(t *testing.T) {
	b, _ := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("bridge must not be called without a device key")
	})
	if _, err := b.Token(context.Background()); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("Expected ErrNotAuthorized, got %v", err)
	}
}

func TestTokenRefreshAndCache(t *testing.T) {
	var calls int32
	b, store := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != refreshPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer dk-1" {
			t.Errorf("unexpected Authorization header %q", got)
		}
		json.NewEncoder(w).Encode(refreshResponse{AccessToken: "at-1", ExpiresIn: 7200})
	})
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	store.SetString(state.KeyDeviceKey, "dk-1")

	tok, err := b.Token(context.Background())
	if err != nil || tok != "at-1" {
		t.Fatalf("Expected at-1, got %q (%v)", tok, err)
	}
	expiry, err := store.GetTime(state.KeyTokenExpiry)
	if err != nil {
		t.Fatalf("expiry not stored: %v", err)
	}
	if want := now.Add(2*time.Hour - time.Minute); !expiry.Equal(want) {
		t.Errorf("Expected expiry %v, got %v", want, expiry)
	}

	now = now.Add(time.Hour)
	if _, err := b.Token(context.Background()); err != nil {
		t.Fatalf("cached Token failed: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("Expected cached token to be reused, bridge called %d times", calls)
	}

	now = now.Add(time.Hour)
	if _, err := b.Token(context.Background()); err != nil {
		t.Fatalf("refresh after expiry failed: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("Expected a refresh after expiry, bridge called %d times", calls)
	}
}

func TestTokenUnauthorizedClearsCredentials(t *testing.T) {
	b, store := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	store.SetString(state.KeyDeviceKey, "dk-revoked")
	store.SetString(state.KeyCachedToken, "stale")
	store.SetTime(state.KeyTokenExpiry, time.Now().Add(-time.Minute))

	if _, err := b.Token(context.Background()); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("Expected ErrNotAuthorized, got %v", err)
	}
	for _, key := range []string{state.KeyDeviceKey, state.KeyCachedToken, state.KeyTokenExpiry} {
		if store.Has(key) {
			t.Errorf("Expected %s to be cleared", key)
		}
	}
	if b.Authorized() {
		t.Error("Expected bridge to report unauthorized")
	}
}

func TestTokenServerError(t *testing.T) {
	b, store := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	store.SetString(state.KeyDeviceKey, "dk-1")

	_, err := b.Token(context.Background())
	if !errors.Is(err, ErrServer) {
		t.Fatalf("Expected ErrServer, got %v", err)
	}
	if !store.Has(state.KeyDeviceKey) {
		t.Error("device key must survive a non-401 failure")
	}
}

func TestTokenSourceUsesCache(t *testing.T) {
	b, store := newTestBridge(t, nil)
	store.SetString(state.KeyCachedToken, "at-cached")
	store.SetTime(state.KeyTokenExpiry, time.Now().Add(time.Hour))

	tok, err := b.TokenSource(context.Background()).Token()
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok.AccessToken != "at-cached" || tok.TokenType != "Bearer" {
		t.Errorf("Expected cached bearer token, got %+v", tok)
	}
}

func TestTokenSourcePropagatesNotAuthorized(t *testing.T) {
	b, _ := newTestBridge(t, nil)
	_, err := b.TokenSource(context.Background()).Token()
	if !IsNotAuthorized(err) {
		t.Fatalf("Expected not authorized error, got %v", err)
	}
}
