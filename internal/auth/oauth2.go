package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// ClientCredentialsProvider authenticates with an OAuth-style client id
// and secret against the service's auth-client endpoint. The returned
// session token is carried the same way as a password session.
type ClientCredentialsProvider struct {
	loginURL     string
	clientID     string
	clientSecret string
	tenant       string
	httpClient   *http.Client

	mu          sync.Mutex
	cachedToken string
}

// NewClientCredentialsProvider creates an API-key provider for the
// service at baseURL. A nil httpClient falls back to a default client.
func NewClientCredentialsProvider(baseURL, clientID, clientSecret, tenant string, httpClient *http.Client) *ClientCredentialsProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultLoginTimeout}
	}
	return &ClientCredentialsProvider{
		loginURL:     strings.TrimRight(baseURL, "/") + "/v1/auth-client",
		clientID:     clientID,
		clientSecret: clientSecret,
		tenant:       tenant,
		httpClient:   httpClient,
	}
}

// Token retrieves a valid session token, exchanging the client
// credentials on first use.
func (p *ClientCredentialsProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cachedToken != "" {
		return p.cachedToken, nil
	}

	token, err := p.exchange(ctx)
	if err != nil {
		return "", err
	}
	p.cachedToken = token
	return p.cachedToken, nil
}

func (p *ClientCredentialsProvider) exchange(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"client_id":     p.clientID,
		"client_secret": p.clientSecret,
		"tenant":        p.tenant,
	})
	if err != nil {
		return "", fmt.Errorf("encode credentials payload: %w", err)
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
func (p *ClientCredentialsProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	token, err := p.Token(ctx)
	if err != nil {
		return err
	}
	injectSessionCookies(req, token, p.tenant)
	return nil
}

// Close releases resources held by the provider.
func (p *ClientCredentialsProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
