package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReasonEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Reason(rec, http.StatusBadRequest, "InvalidMediaFormat", "invalid image format")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "InvalidMediaFormat", env.Code)
}

func TestPayloadTooLarge(t *testing.T) {
	rec := httptest.NewRecorder()
	PayloadTooLarge(rec, "too big")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"PayloadTooLarge"`)
}

func TestInternalErrorIsGeneric(t *testing.T) {
	rec := httptest.NewRecorder()
	InternalError(rec)
	assert.JSONEq(t, `{"success":false,"error":"internal server error"}`, rec.Body.String())
}

func TestNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	NoContent(rec)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}
