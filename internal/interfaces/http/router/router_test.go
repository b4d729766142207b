package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pass/deposit-services/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type pingRoutes struct{ path string }

func (p pingRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET(p.path, func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	rg.POST(p.path, func(c *gin.Context) {
		if _, err := c.GetRawData(); err != nil {
			c.String(http.StatusBadRequest, "too large")
			return
		}
		c.String(http.StatusOK, "ok")
	})
	rg.GET("/boom", func(*gin.Context) { panic("boom") })
}

func serve(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	NewRouter(engine).
		Register(pingRoutes{path: "/ping"}).
		RegisterRoot(pingRoutes{path: "/live"}).
		Setup()

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/api/v1/ping", "").Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/live", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/ping", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/api/v1/live", "").Code)
}

func TestNewEngine_Chain(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	engine := NewEngine(EngineConfig{Logger: zap.New(core), MaxBodySize: 16})
	NewRouter(engine).Register(pingRoutes{path: "/ping"}).Setup()

	w := serve(engine, http.MethodGet, "/api/v1/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(logger.RequestIDHeader))

	w = serve(engine, http.MethodPost, "/api/v1/ping", strings.Repeat("x", 64))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_REQUEST_TOO_LARGE")

	w = serve(engine, http.MethodGet, "/api/v1/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	require.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
	assert.GreaterOrEqual(t, logs.FilterMessage("HTTP Request").Len(), 2)
}
