// Package graph talks to the platform's Graph API: the Send API, user
// profiles, thread control and the provisioning edges.
//
// Non-2xx answers are logged and swallowed. Timeouts and an open circuit
// breaker are handled the same way. Any other transport failure is returned
// as a structured transport error.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"golang.org/x/sync/singleflight"

	"github.com/pscheid92/pagegate/internal/adapter/metrics"
	"github.com/pscheid92/pagegate/internal/domain"
	apperrors "github.com/pscheid92/pagegate/internal/platform/errors"
	"github.com/pscheid92/pagegate/internal/platform/retry"
	"github.com/pscheid92/pagegate/internal/platform/version"
)

const (
	maxResponseBody       = 1 << 20
	retryInitialBackoff   = 200 * time.Millisecond
	retryRateLimitBackoff = 2 * time.Second

	threadControlMetadata = "This thread passed to a live agent from the bot"
)

// DefaultFields are subscribed for the app and every page; callers append their own.
var DefaultFields = []string{"messages", "messaging_postbacks", "messaging_optins", "message_deliveries", "messaging_referrals"}

// Config holds the Graph API settings the client needs.
type Config struct {
	// APIURL is the versioned base URL, e.g. https://graph.facebook.com/v13.0.
	APIURL         string
	AppID          string
	AppAccessToken string
	VerifyToken    string
	WebhookURL     string
	TargetAppID    int64
	Timeout        time.Duration
}

// Client is safe for concurrent use.
type Client struct {
	cfg         Config
	credentials *domain.PageCredentials
	http        *http.Client
	breaker     circuitbreaker.CircuitBreaker[any]
	profiles    singleflight.Group
	retryPolicy retry.Policy
	metrics     *metrics.GraphMetrics
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. Its Timeout is left untouched.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithMetrics(m *metrics.GraphMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithCircuitBreaker replaces the default breaker.
func WithCircuitBreaker(cb circuitbreaker.CircuitBreaker[any]) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithRetryPolicy overrides the policy used for idempotent GET requests.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.retryPolicy = p }
}

func New(cfg Config, credentials *domain.PageCredentials, opts ...Option) *Client {
	c := &Client{
		cfg:         cfg,
		credentials: credentials,
		http:        &http.Client{Timeout: cfg.Timeout},
		breaker:     NewCircuitBreaker(nil),
		retryPolicy: retry.Policy{
			MaxAttempts:      3,
			InitialBackoff:   retryInitialBackoff,
			RateLimitBackoff: retryRateLimitBackoff,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// response is a fully read Graph API answer.
type response struct {
	Status int
	Body   []byte
}

func (r *response) ok() bool {
	return r.Status >= 200 && r.Status < 300
}

func (r *response) decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode graph response: %w", err)
	}
	return nil
}

// bodyForLog keeps warning lines readable when the platform returns HTML or large payloads.
func (r *response) bodyForLog() string {
	const limit = 512
	s := strings.TrimSpace(string(r.Body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// statusError marks a retryable non-2xx answer inside the retry loop.
type statusError struct {
	resp *response
}

func (e *statusError) Error() string {
	return "graph api returned status " + strconv.Itoa(e.resp.Status)
}

var errBreakerOpen = fmt.Errorf("graph api unavailable: %w", circuitbreaker.ErrOpen)

// request describes one outbound call.
type request struct {
	endpoint string // metric label
	method   string
	path     string
	query    url.Values
	token    string
	body     any
}

func (c *Client) do(ctx context.Context, req request) (*response, error) {
	if !c.breaker.TryAcquirePermit() {
		c.observe(req.endpoint, "breaker_open", 0)
		return nil, errBreakerOpen
	}

	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		c.breaker.RecordSuccess()
		return nil, apperrors.InternalError("failed to build graph request", err).WithContext("endpoint", req.endpoint)
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.breaker.RecordError(err)
		c.observe(req.endpoint, "error", time.Since(start))
		return nil, apperrors.TransportError("graph request failed", err).WithContext("endpoint", req.endpoint)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		c.breaker.RecordError(err)
		c.observe(req.endpoint, "error", time.Since(start))
		return nil, apperrors.TransportError("failed to read graph response", err).WithContext("endpoint", req.endpoint)
	}

	if httpResp.StatusCode >= http.StatusInternalServerError {
		c.breaker.RecordError(fmt.Errorf("graph api returned status %d", httpResp.StatusCode))
	} else {
		c.breaker.RecordSuccess()
	}
	c.observe(req.endpoint, strconv.Itoa(httpResp.StatusCode), time.Since(start))

	return &response{Status: httpResp.StatusCode, Body: body}, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req request) (*http.Request, error) {
	query := url.Values{}
	for k, v := range req.query {
		query[k] = v
	}
	query.Set("access_token", req.token)

	target := strings.TrimRight(c.cfg.APIURL, "/") + req.path + "?" + query.Encode()

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, err
	}
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("User-Agent", version.UserAgent())
	return httpReq, nil
}

// get performs an idempotent GET, retrying 5xx and 429 answers.
func (c *Client) get(ctx context.Context, req request) (*response, error) {
	req.method = http.MethodGet

	p := c.retryPolicy
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.WarnContext(ctx, "Graph request failed, retrying", "endpoint", req.endpoint, "attempt", attempt, "backoff_seconds", backoff.Seconds(), "error", err)
	}

	resp, err := retry.Do(ctx, p, classifyGraphError, func() (*response, error) {
		resp, err := c.do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.Status == http.StatusTooManyRequests || resp.Status >= http.StatusInternalServerError {
			return nil, &statusError{resp: resp}
		}
		return resp, nil
	})
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return se.resp, nil
		}
		return nil, err
	}
	return resp, nil
}

func classifyGraphError(err error) retry.Action {
	var se *statusError
	if errors.As(err, &se) {
		if se.resp.Status == http.StatusTooManyRequests {
			return retry.After
		}
		return retry.Retry
	}
	if errors.Is(err, circuitbreaker.ErrOpen) || apperrors.IsType(err, apperrors.TypeInternal) {
		return retry.Stop
	}
	return retry.Retry
}

// softFail turns timeouts and an open breaker into a logged no-op. Every
// other error is returned unchanged.
func (c *Client) softFail(ctx context.Context, endpoint string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		slog.WarnContext(ctx, "Graph API circuit open, skipping call", "endpoint", endpoint)
		return nil
	}
	if isTimeout(err) {
		slog.WarnContext(ctx, "Graph API call timed out", "endpoint", endpoint, "error", err)
		return nil
	}
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *Client) observe(endpoint, status string, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.Requests.WithLabelValues(endpoint, status).Inc()
	if elapsed > 0 {
		c.metrics.RequestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
	}
}

func (c *Client) pageToken(pageID string) (string, error) {
	token, err := c.credentials.Token(pageID)
	if err != nil {
		return "", fmt.Errorf("page %s: %w", pageID, err)
	}
	return token, nil
}

func joinFields(extra []string) string {
	fields := append([]string(nil), DefaultFields...)
	for _, f := range extra {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return strings.Join(fields, ",")
}
