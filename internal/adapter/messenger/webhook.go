package messenger

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/pscheid92/pagegate/internal/adapter/metrics"
	"github.com/pscheid92/pagegate/internal/domain"
	"github.com/pscheid92/pagegate/internal/platform/correlation"
)

const (
	defaultMaxBody = 1 << 20
	ackBody        = "EVENT_RECEIVED"
)

// Dispatcher processes an acknowledged envelope in the background.
type Dispatcher interface {
	Go(ctx context.Context, envelope *domain.WebhookEnvelope)
}

type WebhookHandler struct {
	verifier    *Verifier
	verifyToken string
	dispatcher  Dispatcher
	maxBody     int64
	metrics     *metrics.WebhookMetrics
}

type WebhookOption func(*WebhookHandler)

// WithMaxBody limits the size of an accepted delivery.
func WithMaxBody(n int64) WebhookOption {
	return func(h *WebhookHandler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

func WithMetrics(m *metrics.WebhookMetrics) WebhookOption {
	return func(h *WebhookHandler) { h.metrics = m }
}

func NewWebhookHandler(verifier *Verifier, verifyToken string, dispatcher Dispatcher, opts ...WebhookOption) *WebhookHandler {
	h := &WebhookHandler{
		verifier:    verifier,
		verifyToken: verifyToken,
		dispatcher:  dispatcher,
		maxBody:     defaultMaxBody,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleVerify answers the subscription handshake:
// 200 with the challenge on a matching token, 403 on a mismatch and 404
// when mode or token is absent.
func (h *WebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "" || token == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if mode != "subscribe" || subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		slog.WarnContext(r.Context(), "Webhook verification failed", "mode", mode)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	slog.InfoContext(r.Context(), "Webhook verified")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// HandleEvent receives a delivery. The platform gets its acknowledgement
// before any event is processed.
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	deliveryID := uuid.NewString()
	ctx := correlation.WithAttrs(r.Context(), slog.String("delivery_id", deliveryID))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			slog.WarnContext(ctx, "Webhook body too large", "limit", tooLarge.Limit)
			h.reply(w, http.StatusRequestEntityTooLarge, "too_large")
			return
		}
		slog.WarnContext(ctx, "Failed to read webhook body", "error", err)
		h.reply(w, http.StatusBadRequest, "unreadable")
		return
	}

	if r.Header.Get(HeaderSignature) == "" && r.Header.Get(HeaderSignature256) == "" {
		slog.WarnContext(ctx, "Couldn't find signature in headers")
	}
	if err := h.verifier.VerifyRequest(body, r.Header); err != nil {
		slog.WarnContext(ctx, "Webhook signature rejected", "error", err)
		h.reply(w, http.StatusForbidden, "rejected_signature")
		return
	}

	var envelope domain.WebhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		slog.WarnContext(ctx, "Failed to decode webhook body", "error", err)
		h.reply(w, http.StatusBadRequest, "malformed")
		return
	}

	if envelope.Object != domain.ObjectPage {
		slog.DebugContext(ctx, "Ignoring webhook for unsupported object", "object", envelope.Object)
		h.reply(w, http.StatusNotFound, "ignored_object")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	h.reply(w, http.StatusOK, "accepted")
	_, _ = io.WriteString(w, ackBody)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	slog.DebugContext(ctx, "Webhook accepted", "entries", len(envelope.Entry))
	h.dispatcher.Go(ctx, &envelope)
}

func (h *WebhookHandler) reply(w http.ResponseWriter, status int, result string) {
	w.WriteHeader(status)
	if h.metrics != nil {
		h.metrics.Deliveries.WithLabelValues(result).Inc()
	}
}
