package app

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/pagegate/internal/adapter/metrics"
	"github.com/pscheid92/pagegate/internal/domain"
	apperrors "github.com/pscheid92/pagegate/internal/platform/errors"
)

func TestHandlePrivateReply_UsesSalesPersona(t *testing.T) {
	threads := &mockThreads{}
	m := metrics.NewHandoverMetrics(prometheus.NewRegistry())
	h := NewHandover(threads, testPersonas(), m)

	err := h.HandlePrivateReply(context.Background(), domain.RecipientPostID, "PO1", "P")

	require.NoError(t, err)
	calls := threads.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, domain.Recipient{PostID: "PO1"}, calls[0].recipient)
	assert.Equal(t, "2", calls[0].personaID)
	assert.Equal(t, "P", calls[0].pageID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Handovers.WithLabelValues("feed", "ok")))
}

func TestHandlePrivateReply_EmptyIDIsMalformed(t *testing.T) {
	threads := &mockThreads{}
	h := NewHandover(threads, testPersonas(), nil)

	err := h.HandlePrivateReply(context.Background(), domain.RecipientCommentID, "", "P")

	assert.True(t, apperrors.IsType(err, apperrors.TypeMalformedEvent))
	assert.Empty(t, threads.calls())
}

func TestHandOff_ResolvesPersonaByRole(t *testing.T) {
	tests := []struct {
		role      domain.PersonaRole
		personaID string
	}{
		{domain.RoleSales, "2"},
		{domain.RoleBilling, "1"},
		{domain.RoleCare, "3"},
		{domain.RoleStock, "3"},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			threads := &mockThreads{}
			h := NewHandover(threads, testPersonas(), nil)

			require.NoError(t, h.HandOff(context.Background(), "U", tt.role, "P"))

			calls := threads.calls()
			require.Len(t, calls, 1)
			assert.Equal(t, domain.Recipient{ID: "U"}, calls[0].recipient)
			assert.Equal(t, tt.personaID, calls[0].personaID)
		})
	}
}

func TestHandOff_RoleOverrideWins(t *testing.T) {
	threads := &mockThreads{}
	personas := domain.NewPersonaRegistry([]domain.Persona{{Name: "Reed", ID: "2"}}, map[domain.PersonaRole]string{domain.RoleSales: "99"})
	h := NewHandover(threads, personas, nil)

	require.NoError(t, h.HandOff(context.Background(), "U", domain.RoleSales, "P"))

	assert.Equal(t, "99", threads.calls()[0].personaID)
}

func TestHandOff_UnknownPersonaStillPasses(t *testing.T) {
	threads := &mockThreads{}
	h := NewHandover(threads, domain.NewPersonaRegistry(nil, nil), nil)

	require.NoError(t, h.HandOff(context.Background(), "U", domain.RoleCare, "P"))

	calls := threads.calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].personaID)
}

func TestHandOff_PassFailureIsReturnedAndCounted(t *testing.T) {
	threads := &mockThreads{passFn: func(context.Context, domain.Recipient, string, string) error {
		return errors.New("connection reset")
	}}
	m := metrics.NewHandoverMetrics(prometheus.NewRegistry())
	h := NewHandover(threads, testPersonas(), m)

	err := h.HandOff(context.Background(), "U", domain.RoleOrder, "P")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Handovers.WithLabelValues("message", "error")))
}
