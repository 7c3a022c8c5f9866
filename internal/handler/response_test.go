package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) model.APIResponse {
	t.Helper()
	var resp model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestWriteSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)

	writeSuccess(rec, req, http.StatusOK, "", []string{"a"}, &model.Meta{Page: 1, Limit: 20, Total: 1, TotalPages: 1})

	resp := decodeEnvelope(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/api/v1/projects", resp.Path)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 1, resp.Meta.Total)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteErrorMapsAPIError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/expenses", nil)

	writeError(rec, req, fmt.Errorf("create: %w", apierror.Conflict("expenses for this month already exist", "month=2024-01")))

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CONFLICT", resp.Error.Code)
	assert.Equal(t, "month=2024-01", resp.Error.Details)
}

func TestWriteErrorSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)

	writeError(rec, req, apierror.Locked("account temporarily locked", 90*time.Second+time.Millisecond))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "91", rec.Header().Get("Retry-After"))
	assert.Equal(t, "ACCOUNT_LOCKED", decodeEnvelope(t, rec).Error.Code)
}

func TestWriteErrorHidesInternalCause(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)

	rec := httptest.NewRecorder()
	writeError(rec, req, errors.New("dial tcp 10.0.0.3:5432: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, decodeEnvelope(t, rec).Error.Details)

	ExposeInternalErrors(true)
	defer ExposeInternalErrors(false)

	rec = httptest.NewRecorder()
	writeError(rec, req, errors.New("dial tcp 10.0.0.3:5432: connection refused"))
	assert.Contains(t, decodeEnvelope(t, rec).Error.Details, "connection refused")
}

func TestDecodeJSON(t *testing.T) {
	var payload model.LoginRequest

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.co","password":"x"}`))
	require.NoError(t, decodeJSON(httptest.NewRecorder(), req, &payload, false))
	assert.Equal(t, "a@b.co", payload.Email)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":`))
	assert.True(t, apierror.HasCode(decodeJSON(httptest.NewRecorder(), req, &payload, false), "BAD_REQUEST"))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"rememberMe":"yes"}`))
	assert.True(t, apierror.HasCode(decodeJSON(httptest.NewRecorder(), req, &payload, false), "VALIDATION_ERROR"))

	var logout model.LogoutRequest
	req = httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	assert.NoError(t, decodeJSON(httptest.NewRecorder(), req, &logout, true))
	req = httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	assert.Error(t, decodeJSON(httptest.NewRecorder(), req, &logout, false))
}
