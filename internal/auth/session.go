package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

const maxLoginBodyBytes = 4096

// SessionProvider logs in with a username and password and caches the
// resulting session token for the lifetime of the run.
type SessionProvider struct {
	loginURL   string
	username   string
	password   string
	tenant     string
	httpClient *http.Client

	mu          sync.Mutex
	cachedToken string
}

// NewSessionProvider creates a username/password session provider for the
// service at baseURL. A nil httpClient falls back to a default client so
// the provider is usable standalone; callers normally share the API
// client's transport so proxy settings apply to the login call too.
func NewSessionProvider(baseURL, username, password, tenant string, httpClient *http.Client) *SessionProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultLoginTimeout}
	}
	return &SessionProvider{
		loginURL:   strings.TrimRight(baseURL, "/") + "/v1/auth",
		username:   username,
		password:   password,
		tenant:     tenant,
		httpClient: httpClient,
	}
}

// Token retrieves a valid session token, logging in on first use.
func (p *SessionProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cachedToken != "" {
		return p.cachedToken, nil
	}

	token, err := p.login(ctx)
	if err != nil {
		return "", err
	}
	p.cachedToken = token
	return p.cachedToken, nil
}

func (p *SessionProvider) login(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"user":     p.username,
		"password": p.password,
	})
	if err != nil {
		return "", fmt.Errorf("encode login payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.loginURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	return tokenFromResponse(resp)
}

// InjectHeader injects the session and tenant cookies into the request.
func (p *SessionProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	token, err := p.Token(ctx)
	if err != nil {
		return err
	}
	injectSessionCookies(req, token, p.tenant)
	return nil
}

// Close releases resources held by the provider.
func (p *SessionProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// tokenFromResponse extracts a session token from a login response,
// preferring the session cookie and falling back to a token field in the
// body. Rejected credentials map to *Error.
func tokenFromResponse(resp *http.Response) (string, error) {
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &Error{StatusCode: resp.StatusCode, Detail: "invalid credentials"}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie && c.Value != "" {
			return c.Value, nil
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLoginBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read login response: %w", err)
	}
	if token := gjson.GetBytes(body, "token").String(); token != "" {
		return token, nil
	}
	return "", errors.New("login response carried no session token")
}
