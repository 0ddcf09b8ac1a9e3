package apierrors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-news-digest/internal/service"
)

func TestToHTTP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"nil", nil, http.StatusInternalServerError, "internal"},
		{"plain", errors.New("boom"), http.StatusInternalServerError, "internal"},
		{"invalid", fmt.Errorf("service.ForceSelect: %w", service.ErrInvalidArgument), http.StatusBadRequest, "invalid_argument"},
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{"not found", fmt.Errorf("op: %w: %w", service.ErrNotFound, errors.New("x")), http.StatusNotFound, "not_found"},
		{"busy", service.ErrCycleInProgress, http.StatusConflict, "cycle_in_progress"},
		{"canceled", fmt.Errorf("op: %w", context.Canceled), StatusClientClosedRequest, "canceled"},
		{"not configured", service.ErrNotConfigured, http.StatusNotImplemented, "not_configured"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "deadline_exceeded"},
		{"unavailable", fmt.Errorf("op: %w: %w", service.ErrUnavailable, errors.New("dial tcp")), http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			status, resp := ToHTTP(tt.err)
			require.Equal(t, tt.status, status)
			require.Equal(t, tt.code, resp.Error.Code)
			require.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestToHTTP_DoesNotLeakDetails(t *testing.T) {
	t.Parallel()

	_, resp := ToHTTP(fmt.Errorf("op: %w: password=secret", service.ErrUnavailable))
	require.NotContains(t, resp.Error.Message, "secret")
}

func TestWriteError(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/admin/promotions/current", nil)
	req.Header.Set("X-Request-Id", "rid-1")
	rr := httptest.NewRecorder()

	WriteError(rr, req, service.ErrNotFound)

	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var got ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, "not_found", got.Error.Code)
	require.Equal(t, "rid-1", got.Error.RequestID)
}
