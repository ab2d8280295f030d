package napcat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoginSendsHashedToken(t *testing.T) {
	t.Parallel()
	const token = "secret"
	wantSum := sha256.Sum256([]byte(token + ".napcat"))
	wantHash := hex.EncodeToString(wantSum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["token"] != token || req["hash"] != wantHash {
			t.Errorf("bad login payload: %v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": "Cred123"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: token})
	cred, err := c.Login(context.Background())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if cred != "Cred123" {
		t.Fatalf("credential = %q", cred)
	}
}

func TestStatusBearerAndParsing(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer Cred123" {
			t.Errorf("authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"online": true}})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	online, err := c.Status(context.Background(), "Cred123")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !online {
		t.Fatal("expected online")
	}
}

func TestStatusErrors(t *testing.T) {
	t.Parallel()

	t.Run("http error", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()
		if _, err := NewClient(Config{BaseURL: srv.URL}).Status(context.Background(), "x"); err == nil {
			t.Fatal("expected error for 401")
		}
	})

	t.Run("missing online field", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{}})
		}))
		defer srv.Close()
		if _, err := NewClient(Config{BaseURL: srv.URL}).Status(context.Background(), "x"); err == nil {
			t.Fatal("expected parse error")
		}
	})

	t.Run("unconfigured", func(t *testing.T) {
		t.Parallel()
		if _, err := NewClient(Config{}).Status(context.Background(), "x"); err == nil {
			t.Fatal("expected ErrNotConfigured")
		}
	})
}
