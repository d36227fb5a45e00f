package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticationError(t *testing.T) {
	cause := errors.New("signature mismatch")
	err := AuthenticationError("webhook signature rejected", cause)

	assert.Equal(t, TypeAuthentication, err.Type)
	assert.Equal(t, cause, err.Cause)
	assert.Equal(t, http.StatusForbidden, err.HTTPStatus())
	assert.Contains(t, err.Error(), "authentication")
	assert.Contains(t, err.Error(), "signature mismatch")
}

func TestMalformedEventError(t *testing.T) {
	err := MalformedEventError("unsupported feed item").WithContext("item", "like")

	assert.Equal(t, TypeMalformedEvent, err.Type)
	assert.Nil(t, err.Cause)
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
	assert.Equal(t, "like", err.Context["item"])
}

func TestPlatformErrorCarriesStatus(t *testing.T) {
	err := PlatformError("send api rejected message", http.StatusInternalServerError)

	assert.Equal(t, TypePlatform, err.Type)
	assert.Equal(t, http.StatusInternalServerError, err.Context["status"])
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus())
}

func TestTransportError(t *testing.T) {
	cause := fmt.Errorf("dial tcp: lookup graph.facebook.com: no such host")
	err := TransportError("graph request failed", cause)

	assert.Equal(t, TypeTransport, err.Type)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus())
	assert.NotContains(t, ValidationError("x").Error(), "<nil>")
}

func TestWithContextChaining(t *testing.T) {
	err := ValidationError("invalid input").
		WithContext("page_id", "123").
		WithContext("psid", "456")

	assert.Len(t, err.Context, 2)
	assert.Equal(t, "123", err.Context["page_id"])
	assert.Equal(t, "456", err.Context["psid"])
}

func TestWithContextNilMap(t *testing.T) {
	err := &Error{Type: TypeValidation, Message: "test"}

	err = err.WithContext("key", "value")

	assert.Equal(t, "value", err.Context["key"])
}

func TestToResponse(t *testing.T) {
	resp := NotFoundError("unknown object").ToResponse()

	assert.Equal(t, "unknown object", resp.Error)
	assert.Equal(t, TypeNotFound, resp.Type)
	assert.NotNil(t, resp.Context)
	assert.Empty(t, resp.Context)
}

func TestAsStructuredError(t *testing.T) {
	t.Run("structured", func(t *testing.T) {
		original := ValidationError("original")
		assert.Same(t, original, AsStructuredError(original))
	})

	t.Run("wrapped structured", func(t *testing.T) {
		wrapped := fmt.Errorf("dispatch: %w", MalformedEventError("bad change"))
		result := AsStructuredError(wrapped)
		require.NotNil(t, result)
		assert.Equal(t, TypeMalformedEvent, result.Type)
	})

	t.Run("standard", func(t *testing.T) {
		original := errors.New("boom")
		result := AsStructuredError(original)
		assert.Equal(t, TypeInternal, result.Type)
		assert.Equal(t, "internal server error", result.Message)
		assert.Equal(t, original, result.Cause)
	})

	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, AsStructuredError(nil))
	})
}

func TestIsType(t *testing.T) {
	err := fmt.Errorf("send: %w", TransportError("graph request failed", errors.New("reset")))

	assert.True(t, IsType(err, TypeTransport))
	assert.False(t, IsType(err, TypePlatform))
	assert.False(t, IsType(errors.New("plain"), TypeTransport))
}

func TestHTTPStatusAllTypes(t *testing.T) {
	tests := []struct {
		name       string
		errorType  ErrorType
		wantStatus int
	}{
		{"validation", TypeValidation, http.StatusBadRequest},
		{"not_found", TypeNotFound, http.StatusNotFound},
		{"authentication", TypeAuthentication, http.StatusForbidden},
		{"malformed_event", TypeMalformedEvent, http.StatusBadRequest},
		{"platform", TypePlatform, http.StatusBadGateway},
		{"transport", TypeTransport, http.StatusBadGateway},
		{"internal", TypeInternal, http.StatusInternalServerError},
		{"unknown", ErrorType("unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &Error{Type: tt.errorType}
			assert.Equal(t, tt.wantStatus, err.HTTPStatus())
		})
	}
}
