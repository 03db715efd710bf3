package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/validator"
)

type cancelBody struct {
	Reason string `json:"reason" validate:"required,max=10"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		allowEmpty bool
		wantOK     bool
		wantStatus int
		wantCode   string
	}{
		{name: "valid", body: `{"reason":"dup"}`, wantOK: true},
		{name: "empty allowed", body: "", allowEmpty: true, wantOK: true},
		{name: "empty rejected", body: "", wantStatus: http.StatusBadRequest, wantCode: "INVALID_INPUT"},
		{name: "malformed", body: `{"reason":`, allowEmpty: true, wantStatus: http.StatusBadRequest, wantCode: "INVALID_INPUT"},
		{name: "too large", body: `{"reason":"` + strings.Repeat("x", validator.MaxBodyBytes) + `"}`, wantStatus: http.StatusRequestEntityTooLarge, wantCode: "BODY_TOO_LARGE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/1/cancel", strings.NewReader(tt.body))

			var dst cancelBody
			ok := DecodeJSON(rec, req, &dst, tt.allowEmpty)

			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, http.StatusOK, rec.Code)
				return
			}
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeEnvelope(t, rec).Error.Code)
		})
	}
}

func TestWriteValidationError(t *testing.T) {
	t.Run("field errors", func(t *testing.T) {
		err := validator.Validate(cancelBody{Reason: "far too long a reason"})
		require.Error(t, err)

		rec := httptest.NewRecorder()
		WriteValidationError(rec, err)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decodeEnvelope(t, rec)
		assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
		assert.Equal(t, map[string]string{"reason": "must be at most 10 characters"}, resp.Error.Fields)
	})

	t.Run("plain error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteValidationError(rec, assert.AnError)

		resp := decodeEnvelope(t, rec)
		assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
		assert.Empty(t, resp.Error.Fields)
	})
}

func TestParseID(t *testing.T) {
	rec := httptest.NewRecorder()
	id, ok := ParseID(rec, "42")
	require.True(t, ok)
	assert.Equal(t, int64(42), id)

	for _, param := range []string{"", "abc", "0", "-3", "1.5", "9223372036854775808"} {
		t.Run("reject "+param, func(t *testing.T) {
			rec := httptest.NewRecorder()
			id, ok := ParseID(rec, param)

			assert.False(t, ok)
			assert.Zero(t, id)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "INVALID_PARAMETER", decodeEnvelope(t, rec).Error.Code)
		})
	}
}
