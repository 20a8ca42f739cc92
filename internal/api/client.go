package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/loadpilot/loadpilot/internal/auth"
	"github.com/loadpilot/loadpilot/internal/config"
	"github.com/loadpilot/loadpilot/internal/metrics"
	"github.com/loadpilot/loadpilot/internal/tracing"
)

const (
	userAgent = "loadpilot"

	defaultRequestTimeout = 2 * time.Minute
	maxErrorDetailBytes   = 512
)

// Client talks to the load-test service for the lifetime of one run. It
// owns the HTTP transport, the session, and the retry policy; callers
// address the remote side by Operation, never by URL.
type Client struct {
	baseURL   string
	tenant    string
	projectID int
	http      *http.Client
	provider  auth.Provider
	policy    RetryPolicy
	collector *metrics.Collector
	tracer    trace.Tracer
	propagate bool
	closeOnce sync.Once
	closeErr  error
}

// Options tune a Client beyond the server configuration.
type Options struct {
	// Retries is the number of extra attempts after the first for
	// transient failures.
	Retries int
	// Timeout caps one request attempt including the response body read.
	Timeout time.Duration
	// Collector, when set, receives one record per request attempt.
	Collector *metrics.Collector
	// Tracer, when set, produces a client span per request attempt.
	Tracer trace.Tracer
	// Propagate injects W3C trace context into outbound requests.
	Propagate bool
}

// NewClient builds a Client for the configured server. The auth provider
// is chosen by the configured mode and shares the client's transport, so
// proxy settings apply to login traffic as well.
func NewClient(server config.ServerConfig, opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(server.URL), "/")
	if baseURL == "" {
		return nil, errors.New("server URL is required")
	}

	proxy := http.ProxyFromEnvironment
	if p := server.Proxy(); p != nil {
		proxyURL, err := p.URL()
		if err != nil {
			return nil, fmt.Errorf("proxy: %w", err)
		}
		proxy = http.ProxyURL(proxyURL)
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 proxy,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}

	var provider auth.Provider
	if server.UseOAuth {
		provider = auth.NewClientCredentialsProvider(baseURL, server.ClientID, server.ClientSecret, server.TenantID, httpClient)
	} else {
		provider = auth.NewSessionProvider(baseURL, server.Username, server.Password, server.TenantID, httpClient)
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(userAgent)
	}

	return &Client{
		baseURL:   baseURL,
		tenant:    server.TenantID,
		projectID: server.ProjectID,
		http:      httpClient,
		provider:  provider,
		policy:    DefaultRetryPolicy(opts.Retries),
		collector: opts.Collector,
		tracer:    tracer,
		propagate: opts.Propagate,
	}, nil
}

// Login authenticates eagerly so credential problems surface before the
// run is started.
func (c *Client) Login(ctx context.Context) error {
	if _, err := c.provider.Token(ctx); err != nil {
		return err
	}
	log.Debug().Str("tenant", c.tenant).Msg("authenticated against load-test service")
	return nil
}

// ValidateTenant confirms the tenant/project combination can see the load
// test. Rejections are configuration problems, not transient failures.
func (c *Client) ValidateTenant(ctx context.Context, testID int) (*LoadTest, error) {
	vars := map[string]string{
		VarProjectID:  strconv.Itoa(c.projectID),
		VarLoadTestID: strconv.Itoa(testID),
	}
	body, err := c.Execute(ctx, OpGetLoadTest, vars, nil, nil)
	if err != nil {
		var authErr *auth.Error
		if errors.As(err, &authErr) {
			return nil, &ConfigurationError{
				Reason: fmt.Sprintf("tenant %s rejected the configured credentials", c.tenant),
				Err:    err,
			}
		}
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			switch reqErr.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, &ConfigurationError{
					Reason: fmt.Sprintf("tenant %s denied access to project %d", c.tenant, c.projectID),
					Err:    err,
				}
			case http.StatusNotFound:
				return nil, &ConfigurationError{
					Reason: fmt.Sprintf("load test %d not found in project %d", testID, c.projectID),
					Err:    err,
				}
			}
		}
		return nil, err
	}
	lt, err := DecodeLoadTest(body)
	if err != nil {
		return nil, err
	}
	return &lt, nil
}

// Execute resolves op against the endpoint table and performs the request
// with retries. Responses outside 2xx come back as *RequestError; when
// retries are exhausted the last error is wrapped in *TransientError.
func (c *Client) Execute(ctx context.Context, op Operation, vars map[string]string, query url.Values, payload any) ([]byte, error) {
	method, path, err := Resolve(op, vars)
	if err != nil {
		return nil, err
	}
	endpoint := c.baseURL + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request body: %w", op, err)
		}
	}
	return c.executeWithRetry(ctx, op, method, endpoint, body)
}

// StopRun asks the remote side to stop a running test. The remote run
// winds down asynchronously; callers keep polling for the terminal status.
func (c *Client) StopRun(ctx context.Context, runID int64) error {
	query := url.Values{"action": []string{"STOP"}}
	vars := map[string]string{VarRunID: strconv.FormatInt(runID, 10)}
	_, err := c.Execute(ctx, OpChangeTestRunStatus, vars, query, nil)
	return err
}

// GetReport fetches a generated report. ok is false while the remote side
// is still rendering it, including when the report id is not yet visible.
func (c *Client) GetReport(ctx context.Context, reportID int64) ([]byte, bool, error) {
	method, path, err := Resolve(OpGetReport, map[string]string{VarReportID: strconv.FormatInt(reportID, 10)})
	if err != nil {
		return nil, false, err
	}
	status, payload, err := c.send(ctx, OpGetReport, method, c.baseURL+"/"+path, nil)
	if err != nil {
		return nil, false, err
	}
	switch status {
	case http.StatusOK:
		if len(payload) == 0 {
			return nil, false, nil
		}
		return payload, true, nil
	case http.StatusAccepted, http.StatusNoContent, http.StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, &RequestError{Op: OpGetReport, StatusCode: status, Body: errorDetail(payload)}
	}
}

// DownloadCsv fetches an artifact addressed by a reference URL the remote
// side handed out, such as the transaction CSV link on a finished run.
func (c *Client) DownloadCsv(ctx context.Context, refURL string) ([]byte, error) {
	parsed, err := url.Parse(strings.TrimSpace(refURL))
	if err != nil || !parsed.IsAbs() {
		return nil, fmt.Errorf("%s: reference URL %q is not absolute", OpDownloadTransactionCsv, refURL)
	}
	return c.executeWithRetry(ctx, OpDownloadTransactionCsv, http.MethodGet, parsed.String(), nil)
}

// Close releases the session and idle connections. Safe to call more
// than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.provider.Close()
		c.http.CloseIdleConnections()
	})
	return c.closeErr
}

func (c *Client) executeWithRetry(ctx context.Context, op Operation, method, endpoint string, body []byte) ([]byte, error) {
	var data []byte
	attempts, err := withRetry(ctx, c.policy, func(ctx context.Context) error {
		status, payload, err := c.send(ctx, op, method, endpoint, body)
		if err != nil {
			return err
		}
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			return &RequestError{Op: op, StatusCode: status, Body: errorDetail(payload)}
		}
		data = payload
		return nil
	})
	if err == nil {
		return data, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	if c.policy.ShouldRetry != nil && c.policy.ShouldRetry(err) {
		return nil, &TransientError{Op: op, Attempts: attempts, Err: err}
	}
	return nil, err
}

// send issues one request attempt and reads the whole response. The
// returned error covers transport and body-read failures only; callers
// interpret the status code.
func (c *Client) send(ctx context.Context, op Operation, method, endpoint string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.provider.InjectHeader(ctx, req); err != nil {
		return 0, nil, err
	}

	spanCtx, span := tracing.StartRequestSpan(ctx, c.tracer, string(op), method, endpoint)
	if c.propagate {
		tracing.InjectHTTPHeaders(spanCtx, req.Header)
	}

	start := time.Now()
	resp, err := c.http.Do(req.WithContext(spanCtx))
	latency := time.Since(start)
	if err != nil {
		c.record(op, 0, latency, err)
		tracing.EndSpan(span, err)
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		readErr = fmt.Errorf("%s: read response body: %w", op, readErr)
		c.record(op, resp.StatusCode, latency, readErr)
		tracing.EndSpan(span, readErr, attribute.Int("http.response.status_code", resp.StatusCode))
		return 0, nil, readErr
	}

	c.record(op, resp.StatusCode, latency, nil)
	var spanErr error
	if resp.StatusCode >= http.StatusBadRequest {
		spanErr = fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	tracing.EndSpan(span, spanErr, attribute.Int("http.response.status_code", resp.StatusCode))

	log.Debug().
		Str("operation", string(op)).
		Str("method", method).
		Int("status", resp.StatusCode).
		Dur("latency", latency).
		Msg("api call")

	return resp.StatusCode, payload, nil
}

func (c *Client) record(op Operation, status int, latency time.Duration, err error) {
	if c.collector != nil {
		c.collector.RecordCall(string(op), status, latency, err)
	}
}

func errorDetail(payload []byte) string {
	detail := strings.TrimSpace(string(payload))
	if len(detail) > maxErrorDetailBytes {
		detail = detail[:maxErrorDetailBytes] + "..."
	}
	return detail
}
