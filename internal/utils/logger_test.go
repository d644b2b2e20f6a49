package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var lines []map[string]interface{}
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var line map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(raw), &line))
		lines = append(lines, line)
	}
	return lines
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewLogger_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "json")

	logger.Info("dropped")
	logger.Warn("kept", "form_slug", "algebra-quiz")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["msg"])
	assert.Equal(t, "algebra-quiz", lines[0]["form_slug"])

	buf.Reset()
	NewLogger(&buf, "info", "text").Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}

func TestSlogLogger_LogRequestLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(NewLogger(&buf, "debug", "json"))

	logger.LogRequest("GET", "/health", 200, "1ms")
	logger.LogRequest("POST", "/f/x/submit", 409, "2ms")
	logger.LogRequest("POST", "/f/x/start", 500, "3ms")
	logger.LogError(errors.New("boom"), "failed", "session_id", "s-1")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 4)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "WARN", lines[1]["level"])
	assert.Equal(t, "ERROR", lines[2]["level"])
	assert.Equal(t, float64(409), lines[1]["status_code"])
	assert.Equal(t, "boom", lines[3]["error"])
	assert.Equal(t, "s-1", lines[3]["session_id"])
}

func TestMiddleware_AccessLogAndContextLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := NewSlogLogger(NewLogger(&buf, "info", "json"))

	router := gin.New()
	router.Use(LoggerMiddleware(logger), ContextLogger(logger))
	router.GET("/ping", func(c *gin.Context) {
		GetLoggerFromContext(c, nil).Info("handling")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	router.ServeHTTP(httptest.NewRecorder(), req)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "handling", lines[0]["msg"])
	assert.Equal(t, "req-42", lines[0]["request_id"])
	assert.Equal(t, "HTTP Request", lines[1]["msg"])
	assert.Equal(t, float64(http.StatusNoContent), lines[1]["status_code"])
	assert.Equal(t, "req-42", lines[1]["request_id"])
}

func TestGetLoggerFromContext_Fallback(t *testing.T) {
	fallback := NewSlogLogger(slog.Default())
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Same(t, fallback, GetLoggerFromContext(c, fallback))
}
