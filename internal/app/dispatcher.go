package app

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pscheid92/pagegate/internal/adapter/metrics"
	"github.com/pscheid92/pagegate/internal/domain"
	"github.com/pscheid92/pagegate/internal/platform/correlation"
	apperrors "github.com/pscheid92/pagegate/internal/platform/errors"
	"github.com/pscheid92/pagegate/internal/platform/locale"
)

const defaultProcessingTimeout = 30 * time.Second

// PrivateReplier starts a private reply for a page feed item.
type PrivateReplier interface {
	HandlePrivateReply(ctx context.Context, kind domain.RecipientKind, id, pageID string) error
}

// Dispatcher routes the entries of an acknowledged webhook envelope. Every
// entry and every messaging event is processed concurrently and in
// isolation: a failing or panicking unit is logged and counted, its
// siblings continue.
type Dispatcher struct {
	sessions domain.SessionProvider
	handler  domain.MessageHandler
	replier  PrivateReplier
	deduper  domain.MessageDeduper
	timeout  time.Duration
	metrics  *metrics.WebhookMetrics

	inflight sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

// WithDeduper drops messages whose mid was already processed.
func WithDeduper(d domain.MessageDeduper) DispatcherOption {
	return func(disp *Dispatcher) { disp.deduper = d }
}

// WithProcessingTimeout bounds the processing of one envelope.
func WithProcessingTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

func WithDispatchMetrics(m *metrics.WebhookMetrics) DispatcherOption {
	return func(disp *Dispatcher) { disp.metrics = m }
}

func NewDispatcher(sessions domain.SessionProvider, handler domain.MessageHandler, replier PrivateReplier, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sessions: sessions,
		handler:  handler,
		replier:  replier,
		timeout:  defaultProcessingTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Go dispatches envelope in the background. The request context only
// contributes its values; cancellation is detached so processing outlives
// the acknowledged request.
func (d *Dispatcher) Go(ctx context.Context, envelope *domain.WebhookEnvelope) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	d.inflight.Go(func() {
		defer cancel()
		d.Dispatch(ctx, envelope)
	})
}

// Wait blocks until every dispatch started with Go has finished.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// Dispatch processes every entry of envelope and returns when all are done.
func (d *Dispatcher) Dispatch(ctx context.Context, envelope *domain.WebhookEnvelope) {
	start := time.Now()

	var wg sync.WaitGroup
	for i := range envelope.Entry {
		entry := &envelope.Entry[i]
		entryCtx := correlation.WithAttrs(ctx, slog.String("page_id", entry.ID))
		entryCtx = domain.WithPageID(entryCtx, entry.ID)
		wg.Go(func() {
			d.guard(entryCtx, "entry", func() error {
				return d.dispatchEntry(entryCtx, entry)
			})
		})
	}
	wg.Wait()

	if d.metrics != nil {
		d.metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	}
}

func (d *Dispatcher) dispatchEntry(ctx context.Context, entry *domain.Entry) error {
	if entry.HasChanges() {
		return d.dispatchChange(ctx, entry.ID, entry.Changes[0])
	}

	var wg sync.WaitGroup
	for i := range entry.Messaging {
		event := &entry.Messaging[i]
		eventCtx := correlation.WithAttrs(ctx, slog.String("psid", event.Sender.ID))
		wg.Go(func() {
			d.guard(eventCtx, "event", func() error {
				return d.dispatchEvent(eventCtx, event)
			})
		})
	}
	wg.Wait()
	return nil
}

func (d *Dispatcher) dispatchChange(ctx context.Context, pageID string, change domain.Change) error {
	if change.Field != domain.FieldFeed {
		slog.DebugContext(ctx, "Ignoring change for unsupported field", "field", change.Field)
		return nil
	}

	value := change.Value
	switch value.Item {
	case domain.FeedItemPost:
		d.countEvent("feed_post")
		return d.replier.HandlePrivateReply(ctx, domain.RecipientPostID, value.PostID, pageID)
	case domain.FeedItemComment:
		d.countEvent("feed_comment")
		return d.replier.HandlePrivateReply(ctx, domain.RecipientCommentID, value.CommentID, pageID)
	default:
		return apperrors.MalformedEventError("unsupported feed change type").WithContext("item", value.Item)
	}
}

func (d *Dispatcher) dispatchEvent(ctx context.Context, event *domain.MessagingEvent) error {
	d.countEvent(event.Kind.String())

	switch event.Kind {
	case domain.KindRead:
		slog.DebugContext(ctx, "Got a read event", "watermark", event.Read.Watermark)
		return nil
	case domain.KindDelivery:
		slog.DebugContext(ctx, "Got a delivery event", "watermark", event.Delivery.Watermark)
		return nil
	case domain.KindEcho:
		slog.DebugContext(ctx, "Got an echo", "mid", event.MID())
		return nil
	case domain.KindMessage:
		return d.handleMessage(ctx, event)
	default:
		return apperrors.MalformedEventError("unknown messaging event kind").WithContext("kind", int(event.Kind))
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, event *domain.MessagingEvent) error {
	if mid := event.MID(); mid != "" && d.deduper != nil {
		dup, err := d.deduper.IsDuplicate(ctx, mid)
		if err != nil {
			slog.WarnContext(ctx, "Message de-duplication failed, processing anyway", "mid", mid, "error", err)
		}
		if dup {
			slog.DebugContext(ctx, "Skipping redelivered message", "mid", mid)
			return nil
		}
	}

	session := d.sessions.GetOrCreate(ctx, event.Sender.ID)
	ctx = locale.WithTag(ctx, locale.ParseOr(session.Locale(), locale.Default))

	if err := d.handler.HandleMessage(ctx, session, event); err != nil {
		return fmt.Errorf("message handler failed: %w", err)
	}
	return nil
}

// guard runs one dispatch unit, turning errors and panics into log lines
// and failure metrics.
func (d *Dispatcher) guard(ctx context.Context, unit string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Dispatch unit panicked", "unit", unit, "panic", r, "stack", string(debug.Stack()))
			d.countFailure(unit, "panic")
		}
	}()

	err := fn()
	if err == nil {
		return
	}

	structured := apperrors.AsStructuredError(err)
	if structured.Type == apperrors.TypeMalformedEvent {
		slog.WarnContext(ctx, "Dropping event", "unit", unit, "reason", structured.Message, "context", structured.Context)
	} else {
		slog.ErrorContext(ctx, "Dispatch unit failed", "unit", unit, "error", err)
	}
	d.countFailure(unit, string(structured.Type))
}

func (d *Dispatcher) countEvent(kind string) {
	if d.metrics != nil {
		d.metrics.Events.WithLabelValues(kind).Inc()
	}
}

func (d *Dispatcher) countFailure(unit, reason string) {
	if d.metrics != nil {
		d.metrics.DispatchFailures.WithLabelValues(unit, reason).Inc()
	}
}
