package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpsRoutes(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())

	w = env.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gameshelf_http_requests_total")
}
