package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pscheid92/pagegate/internal/adapter/metrics"
	"github.com/pscheid92/pagegate/internal/domain"
	apperrors "github.com/pscheid92/pagegate/internal/platform/errors"
)

const (
	sourceFeed    = "feed"
	sourceMessage = "message"
)

// Handover passes conversations to the live-agent inbox on behalf of a persona.
type Handover struct {
	threads  domain.ThreadController
	personas *domain.PersonaRegistry
	metrics  *metrics.HandoverMetrics
}

var _ PrivateReplier = (*Handover)(nil)

// NewHandover creates a handover orchestrator. m may be nil.
func NewHandover(threads domain.ThreadController, personas *domain.PersonaRegistry, m *metrics.HandoverMetrics) *Handover {
	return &Handover{threads: threads, personas: personas, metrics: m}
}

// HandlePrivateReply hands the author of a page post or comment to the
// sales persona.
func (h *Handover) HandlePrivateReply(ctx context.Context, kind domain.RecipientKind, id, pageID string) error {
	if id == "" {
		return apperrors.MalformedEventError("feed change without item id").WithContext("kind", string(kind))
	}
	return h.pass(ctx, sourceFeed, domain.RecipientFor(kind, id), domain.RoleSales, pageID)
}

// HandOff hands the conversation with psid to the persona playing role.
func (h *Handover) HandOff(ctx context.Context, psid string, role domain.PersonaRole, pageID string) error {
	return h.pass(ctx, sourceMessage, domain.Recipient{ID: psid}, role, pageID)
}

func (h *Handover) pass(ctx context.Context, source string, recipient domain.Recipient, role domain.PersonaRole, pageID string) error {
	persona, err := h.personas.ForRole(role)
	if err != nil {
		if !errors.Is(err, domain.ErrUnknownPersona) {
			h.count(source, "error")
			return fmt.Errorf("resolve persona for %s: %w", role, err)
		}
		slog.WarnContext(ctx, "Persona not configured, handing over without persona", "role", role)
	}

	if err := h.threads.PassThreadControl(ctx, recipient, persona.ID, pageID); err != nil {
		h.count(source, "error")
		return fmt.Errorf("pass thread control: %w", err)
	}

	h.count(source, "ok")
	slog.InfoContext(ctx, "Conversation handed over", "source", source, "role", role, "persona", persona.Name)
	return nil
}

func (h *Handover) count(source, result string) {
	if h.metrics != nil {
		h.metrics.Handovers.WithLabelValues(source, result).Inc()
	}
}
