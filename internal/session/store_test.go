package session

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestLoadMissingSession(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.json"))
	_, err := store.Load()
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewStore(path)

	cred := &Credential{
		AppleID:      "jane@example.com",
		SessionToken: "token-1",
		TrustToken:   "trust-1",
		Cookies:      map[string]string{"X-APPLE-WEBAUTH-USER": "v1"},
	}
	if err := store.Save(cred); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.AppleID != "jane@example.com" || loaded.SessionToken != "token-1" {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
	if loaded.Cookies["X-APPLE-WEBAUTH-USER"] != "v1" {
		t.Fatalf("cookies lost: %+v", loaded.Cookies)
	}
	if loaded.SavedAt.IsZero() {
		t.Fatal("SavedAt must be stamped on save")
	}
}

func TestSaveReplacesWholesale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewStore(path)

	if err := store.Save(&Credential{AppleID: "old@example.com", TrustToken: "old"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(&Credential{AppleID: "new@example.com"}); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.AppleID != "new@example.com" || loaded.TrustToken != "" {
		t.Fatalf("stale fields survived the replace: %+v", loaded)
	}
}

func TestSavePermissionsAndNoPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewStore(path)
	if err := store.Save(&Credential{AppleID: "jane@example.com"}); err != nil {
		t.Fatal(err)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0o600 {
			t.Fatalf("session blob must be 0600, got %v", info.Mode().Perm())
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(strings.ToLower(string(data)), "password") {
		t.Fatal("session blob must never contain a password field")
	}
}
