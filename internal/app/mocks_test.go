package app

import (
	"context"
	"sync"

	"github.com/pscheid92/pagegate/internal/domain"
)

// --- Mock implementations ---

type mockSessions struct {
	mu    sync.Mutex
	calls []string
}

func (m *mockSessions) GetOrCreate(_ context.Context, psid string) *domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, psid)
	return domain.NewSession(psid, "en_US", fixedNow)
}

func (m *mockSessions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockHandler struct {
	mu       sync.Mutex
	handleFn func(ctx context.Context, session *domain.Session, event *domain.MessagingEvent) error
	handled  []string
}

func (m *mockHandler) HandleMessage(ctx context.Context, session *domain.Session, event *domain.MessagingEvent) error {
	m.mu.Lock()
	m.handled = append(m.handled, event.MID())
	m.mu.Unlock()
	if m.handleFn != nil {
		return m.handleFn(ctx, session, event)
	}
	return nil
}

func (m *mockHandler) mids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.handled...)
}

type passCall struct {
	recipient domain.Recipient
	personaID string
	pageID    string
}

type mockThreads struct {
	mu     sync.Mutex
	passFn func(ctx context.Context, recipient domain.Recipient, personaID, pageID string) error
	passes []passCall
}

func (m *mockThreads) PassThreadControl(ctx context.Context, recipient domain.Recipient, personaID, pageID string) error {
	m.mu.Lock()
	m.passes = append(m.passes, passCall{recipient: recipient, personaID: personaID, pageID: pageID})
	m.mu.Unlock()
	if m.passFn != nil {
		return m.passFn(ctx, recipient, personaID, pageID)
	}
	return nil
}

func (m *mockThreads) calls() []passCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]passCall(nil), m.passes...)
}

type sentMessage struct {
	msg    domain.OutgoingMessage
	pageID string
}

type mockSender struct {
	mu     sync.Mutex
	sendFn func(ctx context.Context, msg domain.OutgoingMessage, pageID string) error
	sent   []sentMessage
}

func (m *mockSender) SendMessage(ctx context.Context, msg domain.OutgoingMessage, pageID string) error {
	m.mu.Lock()
	m.sent = append(m.sent, sentMessage{msg: msg, pageID: pageID})
	m.mu.Unlock()
	if m.sendFn != nil {
		return m.sendFn(ctx, msg, pageID)
	}
	return nil
}

func (m *mockSender) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

type handOffCall struct {
	psid   string
	role   domain.PersonaRole
	pageID string
}

type mockHandOffer struct {
	handOffFn func(ctx context.Context, psid string, role domain.PersonaRole, pageID string) error
	calls     []handOffCall
}

func (m *mockHandOffer) HandOff(ctx context.Context, psid string, role domain.PersonaRole, pageID string) error {
	m.calls = append(m.calls, handOffCall{psid: psid, role: role, pageID: pageID})
	if m.handOffFn != nil {
		return m.handOffFn(ctx, psid, role, pageID)
	}
	return nil
}

type mockDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (m *mockDeduper) IsDuplicate(_ context.Context, mid string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	dup := m.seen[mid]
	m.seen[mid] = true
	return dup, nil
}

func testPersonas() *domain.PersonaRegistry {
	return domain.NewPersonaRegistry([]domain.Persona{
		{Name: "Alma", ID: "3"},
		{Name: "Reed", ID: "2"},
		{Name: "Val", ID: "1"},
	}, nil)
}
