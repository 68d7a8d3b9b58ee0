package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCode(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorCode(w, http.StatusBadGateway, "commit_failed", "stopped", map[string]int{"companies": 2})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	var body struct {
		Error   string         `json:"error"`
		Code    string         `json:"code"`
		Details map[string]int `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "stopped", body.Error)
	assert.Equal(t, "commit_failed", body.Code)
	assert.Equal(t, 2, body.Details["companies"])
}

func TestInternalErrorHidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	InternalError(w, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestDecode(t *testing.T) {
	var dst struct{ Name string }
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	assert.True(t, Decode(w, r, &dst))
	assert.Equal(t, "x", dst.Name)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.False(t, Decode(w, r, &dst))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
