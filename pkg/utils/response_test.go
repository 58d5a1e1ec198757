package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRespondError(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, http.StatusNotFound, "session not found")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"session not found"}`, rr.Body.String())
}

func TestRespondJSONReportsEncodeFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	err := RespondJSON(rr, http.StatusOK, map[string]any{"bad": func() {}})

	assert.Error(t, err)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRespondJSONWritesPayload(t *testing.T) {
	rr := httptest.NewRecorder()
	assert.NoError(t, RespondJSON(rr, http.StatusCreated, map[string]string{"status": "ok"}))
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}
