package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/pagegate/internal/adapter/graph"
	"github.com/pscheid92/pagegate/internal/adapter/metrics"
	"github.com/pscheid92/pagegate/internal/domain"
	"github.com/pscheid92/pagegate/internal/platform/locale"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func decodeEnvelope(t *testing.T, body string) *domain.WebhookEnvelope {
	t.Helper()
	var env domain.WebhookEnvelope
	require.NoError(t, json.Unmarshal([]byte(body), &env))
	return &env
}

type dispatcherFixture struct {
	sessions *mockSessions
	handler  *mockHandler
	threads  *mockThreads
	metrics  *metrics.WebhookMetrics
	handover *metrics.HandoverMetrics
	disp     *Dispatcher
}

func newDispatcherFixture(opts ...DispatcherOption) *dispatcherFixture {
	reg := prometheus.NewRegistry()
	f := &dispatcherFixture{
		sessions: &mockSessions{},
		handler:  &mockHandler{},
		threads:  &mockThreads{},
		metrics:  metrics.NewWebhookMetrics(reg),
		handover: metrics.NewHandoverMetrics(reg),
	}
	handover := NewHandover(f.threads, testPersonas(), f.handover)
	opts = append(opts, WithDispatchMetrics(f.metrics))
	f.disp = NewDispatcher(f.sessions, f.handler, handover, opts...)
	return f
}

func TestDispatch_TextMessageReachesHandler(t *testing.T) {
	f := newDispatcherFixture()
	env := decodeEnvelope(t, `{"object":"page","entry":[{"id":"P","time":1,"messaging":[
		{"sender":{"id":"U"},"recipient":{"id":"P"},"timestamp":1,"message":{"mid":"m1","text":"hi"}}
	]}]}`)

	var gotPage string
	var gotLocale string
	f.handler.handleFn = func(ctx context.Context, s *domain.Session, e *domain.MessagingEvent) error {
		gotPage, _ = domain.PageIDFromContext(ctx)
		gotLocale = locale.Format(locale.FromContext(ctx))
		assert.Equal(t, "U", s.ID)
		return nil
	}

	f.disp.Dispatch(context.Background(), env)

	assert.Equal(t, []string{"m1"}, f.handler.mids())
	assert.Equal(t, 1, f.sessions.count())
	assert.Equal(t, "P", gotPage)
	assert.Equal(t, "en_US", gotLocale)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Events.WithLabelValues("message")))
}

func TestDispatch_ReadDeliveryAndEchoCreateNoSession(t *testing.T) {
	f := newDispatcherFixture()
	env := decodeEnvelope(t, `{"object":"page","entry":[{"id":"P","time":1,"messaging":[
		{"sender":{"id":"U"},"recipient":{"id":"P"},"timestamp":1,"read":{"watermark":1}},
		{"sender":{"id":"U"},"recipient":{"id":"P"},"timestamp":2,"delivery":{"watermark":2,"mids":["m0"]}},
		{"sender":{"id":"P"},"recipient":{"id":"U"},"timestamp":3,"message":{"mid":"m2","is_echo":true,"text":"bot"}}
	]}]}`)

	f.disp.Dispatch(context.Background(), env)

	assert.Zero(t, f.sessions.count())
	assert.Empty(t, f.handler.mids())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Events.WithLabelValues("read")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Events.WithLabelValues("delivery")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Events.WithLabelValues("echo")))
}

func TestDispatch_FeedCommentPassesThreadOnce(t *testing.T) {
	f := newDispatcherFixture()
	env := decodeEnvelope(t, `{"object":"page","entry":[{"id":"P","time":1,"changes":[
		{"field":"feed","value":{"item":"comment","verb":"add","comment_id":"C1","post_id":"PO1"}}
	]}]}`)

	f.disp.Dispatch(context.Background(), env)

	calls := f.threads.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, domain.Recipient{CommentID: "C1"}, calls[0].recipient)
	assert.Equal(t, "2", calls[0].personaID)
	assert.Equal(t, "P", calls[0].pageID)
	assert.Zero(t, f.sessions.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.handover.Handovers.WithLabelValues("feed", "ok")))
}

func TestDispatch_FeedPostUsesPostID(t *testing.T) {
	f := newDispatcherFixture()
	env := decodeEnvelope(t, `{"object":"page","entry":[{"id":"P","time":1,"changes":[
		{"field":"feed","value":{"item":"post","verb":"add","post_id":"PO1"}}
	]}]}`)

	f.disp.Dispatch(context.Background(), env)

	calls := f.threads.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, domain.Recipient{PostID: "PO1"}, calls[0].recipient)
}

func TestDispatch_OnlyFirstChangeIsHandled(t *testing.T) {
	f := newDispatcherFixture()
	env := decodeEnvelope(t, `{"object":"page","entry":[{"id":"P","time":1,"changes":[
		{"field":"feed","value":{"item":"comment","comment_id":"C1"}},
		{"field":"feed","value":{"item":"comment","comment_id":"C2"}}
	]}]}`)

	f.disp.Dispatch(context.Background(), env)

	calls := f.threads.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "C1", calls[0].recipient.CommentID)
}

func TestDispatch_UnsupportedFeedItemIsDropped(t *testing.T) {
	f := newDispatcherFixture()
	env := decodeEnvelope(t, `{"object":"page","entry":[{"id":"P","time":1,"changes":[
		{"field":"feed","value":{"item":"like","verb":"add","post_id":"PO1"}}
	]}]}`)

	f.disp.Dispatch(context.Background(), env)

	assert.Empty(t, f.threads.calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DispatchFailures.WithLabelValues("entry", "malformed_event")))
}

func TestDispatch_NonFeedChangeIgnored(t *testing.T) {
	f := newDispatcherFixture()
	env := decodeEnvelope(t, `{"object":"page","entry":[{"id":"P","time":1,"changes":[
		{"field":"mention","value":{"item":"comment","comment_id":"C1"}}
	]}]}`)

	f.disp.Dispatch(context.Background(), env)

	assert.Empty(t, f.threads.calls())
	assert.Zero(t, testutil.CollectAndCount(f.metrics.DispatchFailures))
}

func TestDispatch_FailingEventDoesNotStopSiblings(t *testing.T) {
	f := newDispatcherFixture()
	f.handler.handleFn = func(_ context.Context, _ *domain.Session, e *domain.MessagingEvent) error {
		switch e.MID() {
		case "boom":
			return errors.New("handler exploded")
		case "panic":
			panic("handler panicked")
		}
		return nil
	}
	env := decodeEnvelope(t, `{"object":"page","entry":[
		{"id":"P","time":1,"messaging":[
			{"sender":{"id":"U1"},"recipient":{"id":"P"},"timestamp":1,"message":{"mid":"boom","text":"a"}},
			{"sender":{"id":"U2"},"recipient":{"id":"P"},"timestamp":2,"message":{"mid":"panic","text":"b"}},
			{"sender":{"id":"U3"},"recipient":{"id":"P"},"timestamp":3,"message":{"mid":"ok","text":"c"}}
		]},
		{"id":"Q","time":1,"messaging":[
			{"sender":{"id":"U4"},"recipient":{"id":"Q"},"timestamp":4,"message":{"mid":"ok-2","text":"d"}}
		]}
	]}`)

	f.disp.Dispatch(context.Background(), env)

	assert.ElementsMatch(t, []string{"boom", "panic", "ok", "ok-2"}, f.handler.mids())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DispatchFailures.WithLabelValues("event", "internal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DispatchFailures.WithLabelValues("event", "panic")))
}

func TestDispatch_DeduperSkipsRedelivery(t *testing.T) {
	f := newDispatcherFixture(WithDeduper(&mockDeduper{}))
	body := `{"object":"page","entry":[{"id":"P","time":1,"messaging":[
		{"sender":{"id":"U"},"recipient":{"id":"P"},"timestamp":1,"message":{"mid":"m1","text":"hi"}}
	]}]}`

	f.disp.Dispatch(context.Background(), decodeEnvelope(t, body))
	f.disp.Dispatch(context.Background(), decodeEnvelope(t, body))

	assert.Equal(t, []string{"m1"}, f.handler.mids())
}

func TestDispatch_DeduperFailureProcessesAnyway(t *testing.T) {
	f := newDispatcherFixture(WithDeduper(&mockDeduper{err: errors.New("redis down")}))
	env := decodeEnvelope(t, `{"object":"page","entry":[{"id":"P","time":1,"messaging":[
		{"sender":{"id":"U"},"recipient":{"id":"P"},"timestamp":1,"message":{"mid":"m1","text":"hi"}}
	]}]}`)

	f.disp.Dispatch(context.Background(), env)

	assert.Equal(t, []string{"m1"}, f.handler.mids())
}

func TestGo_OutlivesCancelledRequestAndWaits(t *testing.T) {
	f := newDispatcherFixture(WithProcessingTimeout(time.Second))
	release := make(chan struct{})
	var sawCancel atomic.Bool
	f.handler.handleFn = func(ctx context.Context, _ *domain.Session, _ *domain.MessagingEvent) error {
		<-release
		sawCancel.Store(ctx.Err() != nil)
		return nil
	}
	env := decodeEnvelope(t, `{"object":"page","entry":[{"id":"P","time":1,"messaging":[
		{"sender":{"id":"U"},"recipient":{"id":"P"},"timestamp":1,"message":{"mid":"m1","text":"hi"}}
	]}]}`)

	ctx, cancel := context.WithCancel(context.Background())
	f.disp.Go(ctx, env)
	cancel()
	close(release)
	f.disp.Wait()

	assert.Equal(t, []string{"m1"}, f.handler.mids())
	assert.False(t, sawCancel.Load())
}

func TestDispatch_PlatformServerErrorIsNotFatal(t *testing.T) {
	var sends atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/me/messages" {
			sends.Add(1)
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	t.Cleanup(srv.Close)

	creds := domain.NewPageCredentials([]string{"P"}, map[string]string{"P": "token"})
	client := graph.New(graph.Config{APIURL: srv.URL, Timeout: time.Second}, creds)
	handover := NewHandover(client, testPersonas(), nil)
	reg := prometheus.NewRegistry()
	m := metrics.NewWebhookMetrics(reg)
	disp := NewDispatcher(&mockSessions{}, NewResponder(client, handover, testPersonas()), handover, WithDispatchMetrics(m))

	env := decodeEnvelope(t, `{"object":"page","entry":[{"id":"P","time":1,"messaging":[
		{"sender":{"id":"U"},"recipient":{"id":"P"},"timestamp":1,"message":{"mid":"m1","text":"hi"}}
	]}]}`)
	disp.Dispatch(context.Background(), env)

	next := decodeEnvelope(t, `{"object":"page","entry":[{"id":"P","time":2,"messaging":[
		{"sender":{"id":"U"},"recipient":{"id":"P"},"timestamp":2,"message":{"mid":"m2","text":"hello"}}
	]}]}`)
	disp.Dispatch(context.Background(), next)

	assert.Equal(t, int32(2), sends.Load())
	assert.Zero(t, testutil.CollectAndCount(m.DispatchFailures))
}
