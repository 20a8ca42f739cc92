package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/loadpilot/loadpilot/internal/auth"
)

func TestSessionProviderLogin(t *testing.T) {
	var logins atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/auth" {
			t.Errorf("login path = %s, want /v1/auth", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("login method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}

		body, _ := io.ReadAll(r.Body)
		var creds map[string]string
		if err := json.Unmarshal(body, &creds); err != nil {
			t.Fatalf("login body is not JSON: %v", err)
		}
		if creds["user"] != "jdoe" || creds["password"] != "hunter2" {
			t.Errorf("credentials = %v, want user/password fields", creds)
		}

		logins.Add(1)
		http.SetCookie(w, &http.Cookie{Name: auth.SessionCookie, Value: "tok-123"})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	provider := auth.NewSessionProvider(srv.URL, "jdoe", "hunter2", "652261300", srv.Client())
	defer provider.Close()

	token, err := provider.Token(context.Background())
	if err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if token != "tok-123" {
		t.Errorf("Token = %q, want tok-123", token)
	}

	// Second call must reuse the cached session.
	if _, err := provider.Token(context.Background()); err != nil {
		t.Fatalf("second Token returned error: %v", err)
	}
	if got := logins.Load(); got != 1 {
		t.Errorf("server saw %d logins, want 1", got)
	}
}

func TestSessionProviderTokenFromBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"token": "body-token"}`)
	}))
	defer srv.Close()

	provider := auth.NewSessionProvider(srv.URL, "jdoe", "hunter2", "", srv.Client())
	defer provider.Close()

	token, err := provider.Token(context.Background())
	if err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if token != "body-token" {
		t.Errorf("Token = %q, want body-token", token)
	}
}

func TestSessionProviderInvalidCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	provider := auth.NewSessionProvider(srv.URL, "jdoe", "wrong", "", srv.Client())
	defer provider.Close()

	_, err := provider.Token(context.Background())
	var authErr *auth.Error
	if !errors.As(err, &authErr) {
		t.Fatalf("Token error type = %T, want *auth.Error", err)
	}
	if authErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", authErr.StatusCode)
	}
}

func TestSessionProviderNoTokenInResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok": true}`)
	}))
	defer srv.Close()

	provider := auth.NewSessionProvider(srv.URL, "jdoe", "hunter2", "", srv.Client())
	defer provider.Close()

	if _, err := provider.Token(context.Background()); err == nil {
		t.Error("Token = nil error for a login response without a token")
	}
}

func TestSessionProviderInjectHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: auth.SessionCookie, Value: "tok-123"})
	}))
	defer srv.Close()

	provider := auth.NewSessionProvider(srv.URL, "jdoe", "hunter2", "652261300", srv.Client())
	defer provider.Close()

	req := httptest.NewRequest(http.MethodGet, "https://lrc.example.com/v1/test-runs/9", nil)
	if err := provider.InjectHeader(context.Background(), req); err != nil {
		t.Fatalf("InjectHeader returned error: %v", err)
	}

	if c, err := req.Cookie(auth.SessionCookie); err != nil || c.Value != "tok-123" {
		t.Errorf("session cookie = %v, %v; want tok-123", c, err)
	}
	if c, err := req.Cookie(auth.TenantCookie); err != nil || c.Value != "652261300" {
		t.Errorf("tenant cookie = %v, %v; want 652261300", c, err)
	}
}

func TestClientCredentialsProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/auth-client" {
			t.Errorf("exchange path = %s, want /v1/auth-client", r.URL.Path)
		}

		body, _ := io.ReadAll(r.Body)
		var creds map[string]string
		if err := json.Unmarshal(body, &creds); err != nil {
			t.Fatalf("exchange body is not JSON: %v", err)
		}
		if creds["client_id"] != "ci" || creds["client_secret"] != "cs" || creds["tenant"] != "900" {
			t.Errorf("exchange payload = %v", creds)
		}

		http.SetCookie(w, &http.Cookie{Name: auth.SessionCookie, Value: "oauth-tok"})
	}))
	defer srv.Close()

	provider := auth.NewClientCredentialsProvider(srv.URL, "ci", "cs", "900", srv.Client())
	defer provider.Close()

	token, err := provider.Token(context.Background())
	if err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if token != "oauth-tok" {
		t.Errorf("Token = %q, want oauth-tok", token)
	}
}

func TestClientCredentialsProviderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	provider := auth.NewClientCredentialsProvider(srv.URL, "ci", "bad", "900", srv.Client())
	defer provider.Close()

	_, err := provider.Token(context.Background())
	var authErr *auth.Error
	if !errors.As(err, &authErr) {
		t.Fatalf("Token error type = %T, want *auth.Error", err)
	}
	if authErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", authErr.StatusCode)
	}
}

func TestErrorMessage(t *testing.T) {
	err := &auth.Error{StatusCode: 401, Detail: "invalid credentials"}
	want := "authentication rejected (HTTP 401): invalid credentials"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
