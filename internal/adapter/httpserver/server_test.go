package httpserver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/pagegate/internal/adapter/metrics"
)

type stubWebhook struct {
	mu       sync.Mutex
	verifies int
	events   []string
}

func (s *stubWebhook) HandleVerify(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.verifies++
	s.mu.Unlock()
	_, _ = io.WriteString(w, r.URL.Query().Get("hub.challenge"))
}

func (s *stubWebhook) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.events = append(s.events, string(body))
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *stubWebhook) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func newTestServer(webhook webhookHandler, opts ...Option) *Server {
	return NewServer(Config{Port: "0", WebhookRateLimit: 100, WebhookRateBurst: 50}, webhook, opts...)
}

func TestServer_WebhookVerifyRoute(t *testing.T) {
	hook := &stubWebhook{}
	srv := newTestServer(hook)

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.challenge=42", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Body.String())
	assert.Equal(t, 1, hook.verifies)
}

func TestServer_WebhookEventRoute(t *testing.T) {
	hook := &stubWebhook{}
	srv := newTestServer(hook)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"object":"page"}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, hook.eventCount())
	assert.JSONEq(t, `{"object":"page"}`, hook.events[0])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestServer_WebhookRateLimited(t *testing.T) {
	hook := &stubWebhook{}
	srv := NewServer(Config{Port: "0", WebhookRateLimit: 0.5, WebhookRateBurst: 1}, hook)

	first := httptest.NewRecorder()
	srv.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`)))
	second := httptest.NewRecorder()
	srv.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "2", second.Header().Get("Retry-After"))
	assert.Equal(t, 1, hook.eventCount())
}

func TestServer_RateLimitDisabled(t *testing.T) {
	hook := &stubWebhook{}
	srv := NewServer(Config{Port: "0"}, hook)

	for range 10 {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`)))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 10, hook.eventCount())
}

func TestServer_MetricsRoute(t *testing.T) {
	reg := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(reg)
	srv := newTestServer(&stubWebhook{}, WithMetrics(httpMetrics, metrics.Handler(reg)))

	srv.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`)))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `path="/webhook"`)
}

func TestServer_MetricsRouteAbsentWithoutOption(t *testing.T) {
	srv := newTestServer(&stubWebhook{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
