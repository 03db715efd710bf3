package httpclient

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/leduxro-prog/erp-dashboard-sub000/pkg/errors"
)

func makeResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func structuredError(code, message string) string {
	return `{"error":{"code":"` + code + `","message":"` + message + `"}}`
}

func TestParseResponseError_StructuredErrors(t *testing.T) {
	tests := []struct {
		status   int
		code     string
		sentinel error
	}{
		{http.StatusNotFound, "NOT_FOUND", apperrors.ErrNotFound},
		{http.StatusBadRequest, "INVALID_INPUT", apperrors.ErrInvalidInput},
		{http.StatusConflict, "RESERVATION_EXISTS", apperrors.ErrConflict},
		{http.StatusUnauthorized, "UNAUTHORIZED", apperrors.ErrUnauthorized},
		{http.StatusUnprocessableEntity, "INSUFFICIENT_STOCK", apperrors.ErrUnprocessable},
		{http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", apperrors.ErrServiceUnavail},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := ParseResponseError(makeResponse(tt.status, structuredError(tt.code, "boom")), "inventory")
			require.Error(t, err)

			var appErr *apperrors.AppError
			require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
			assert.Equal(t, tt.status, appErr.Status)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, "inventory: boom", appErr.Message)
			assert.True(t, errors.Is(err, tt.sentinel))
		})
	}
}

func TestParseResponseError_UnmappedClientStatusKeepsStatus(t *testing.T) {
	err := ParseResponseError(makeResponse(http.StatusTooManyRequests, structuredError("RATE_LIMITED", "slow down")), "accounting")

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusTooManyRequests, appErr.Status)
	assert.Equal(t, "RATE_LIMITED", appErr.Code)
	assert.Nil(t, appErr.Unwrap())
}

func TestParseResponseError_ServerError(t *testing.T) {
	err := ParseResponseError(makeResponse(http.StatusInternalServerError, structuredError("INTERNAL_ERROR", "db down")), "product-catalog")

	var appErr *apperrors.AppError
	assert.False(t, errors.As(err, &appErr))

	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
	assert.Equal(t, "product-catalog: server error 500: INTERNAL_ERROR: db down", se.Error())
}

func TestParseResponseError_UnstructuredBodies(t *testing.T) {
	for _, body := range []string{"", "<html>502 Bad Gateway</html>", `{"error":null}`} {
		err := ParseResponseError(makeResponse(http.StatusBadGateway, body), "accounting")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "accounting returned status 502")
	}
}
