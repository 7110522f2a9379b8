package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/harrisonrobin/larkalarm/pkg/state"
)

func TestRegisterDevice(t *testing.T) {
	var got registerRequest
	b, store := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != registerPath || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(registerResponse{DeviceKey: "dk-new"})
	})

	if err := b.RegisterDevice(context.Background(), "proof-1"); err != nil {
		t.Fatalf("RegisterDevice failed: %v", err)
	}
	if got.OAuthProof != "proof-1" {
		t.Errorf("Expected proof-1, got %q", got.OAuthProof)
	}
	deviceID, _ := store.GetString(state.KeyDeviceID)
	if got.DeviceID == "" || got.DeviceID != deviceID {
		t.Errorf("Expected device id %q to be sent, got %q", deviceID, got.DeviceID)
	}
	if key, _ := store.GetString(state.KeyDeviceKey); key != "dk-new" {
		t.Errorf("Expected device key dk-new, got %q", key)
	}
}

func TestRegisterDeviceFailure(t *testing.T) {
	b, store := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	err := b.RegisterDevice(context.Background(), "proof-1")
	if err == nil || !strings.Contains(err.Error(), "registration failed") {
		t.Fatalf("Expected registration failure, got %v", err)
	}
	if store.Has(state.KeyDeviceKey) {
		t.Error("device key must not be stored on failure")
	}
}

func TestLogoutAndLoginURL(t *testing.T) {
	b, store := newTestBridge(t, nil)
	store.SetString(state.KeyDeviceKey, "dk-1")
	if !b.Authorized() {
		t.Fatal("Expected authorized with a device key")
	}
	if err := b.Logout(); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if b.Authorized() {
		t.Error("Expected unauthorized after logout")
	}

	if u := b.LoginURL("dev 1"); !strings.HasSuffix(u, "/login?extension_id=dev+1") {
		t.Errorf("unexpected login URL %s", u)
	}
}
