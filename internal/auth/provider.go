// Package auth establishes and injects session credentials for the
// load-test service. Two modes exist: username/password sessions and
// OAuth-style client credentials. Both yield a session token carried as
// a cookie on every API request, alongside the tenant cookie.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Cookie names the service expects on authenticated requests.
const (
	SessionCookie = "LWSSO_COOKIE_KEY"
	TenantCookie  = "TENANTID"
)

const defaultLoginTimeout = 30 * time.Second

// Provider defines the interface for authentication providers that can
// obtain session tokens and inject them into HTTP requests.
type Provider interface {
	// Token retrieves a valid session token, logging in on first use and
	// using the cached value afterwards.
	Token(ctx context.Context) (string, error)

	// InjectHeader injects the session and tenant cookies into the
	// provided HTTP request.
	InjectHeader(ctx context.Context, req *http.Request) error

	// Close releases any resources held by the provider.
	Close() error
}

// Error reports rejected credentials. Distinct from a transport failure:
// the service was reached and refused the login.
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("authentication rejected (HTTP %d)", e.StatusCode)
	}
	return fmt.Sprintf("authentication rejected (HTTP %d): %s", e.StatusCode, e.Detail)
}

func injectSessionCookies(req *http.Request, token, tenant string) {
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	if tenant != "" {
		req.AddCookie(&http.Cookie{Name: TenantCookie, Value: tenant})
	}
}
