package emulator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestLoggerMiddlewareLevels(t *testing.T) {
	gin.SetMode(gin.ReleaseMode)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	router := gin.New()
	router.Use(LoggerMiddleware(&logger))
	router.GET("/rooms/:room/ok", func(c *gin.Context) { c.String(http.StatusOK, "fine") })
	router.GET("/bad", func(c *gin.Context) { c.Status(http.StatusForbidden) })
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	tests := []struct {
		path  string
		level string
		room  string
	}{
		{path: "/rooms/lobby/ok", level: "info", room: "lobby"},
		{path: "/bad", level: "warn"},
		{path: "/boom", level: "error"},
	}

	for _, tt := range tests {
		buf.Reset()
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("%s: parse log line %q: %v", tt.path, buf.String(), err)
		}
		if line["level"] != tt.level || line["path"] != tt.path || line["message"] != "http request" {
			t.Fatalf("%s: unexpected log line %v", tt.path, line)
		}
		if tt.room != "" && line["room"] != tt.room {
			t.Fatalf("%s: expected room field, got %v", tt.path, line)
		}
		if tt.room == "" && line["room"] != nil {
			t.Fatalf("%s: unexpected room field %v", tt.path, line["room"])
		}
	}
}
