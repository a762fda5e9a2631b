package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/claymoreai/claymore/internal/adapter/httpserver"
	"github.com/claymoreai/claymore/internal/config"
	"github.com/claymoreai/claymore/internal/usecase"
)

func TestParseOrigins(t *testing.T) {
	assert.Equal(t, []string{"*"}, ParseOrigins(""))
	assert.Equal(t, []string{"*"}, ParseOrigins("*"))
	assert.Equal(t, []string{"*"}, ParseOrigins(" , ,"))
	assert.Equal(t, []string{"https://a.example", "https://b.example"},
		ParseOrigins(" https://a.example, https://b.example "))
}

func TestRouterHealthAndAuth(t *testing.T) {
	cfg := config.Config{
		HMACKey:          "secret",
		RateLimitPerMin:  60,
		CORSAllowOrigins: "*",
		HTTPWriteTimeout: 30 * time.Second,
	}
	srv := httpserver.NewServer(cfg,
		usecase.ModuleService{}, usecase.RunService{}, usecase.DataService{},
		usecase.JobService{}, usecase.TryService{}, usecase.ChatService{})
	h := BuildRouter(cfg, srv)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v2/module/list?workspaceId=ws-1", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
