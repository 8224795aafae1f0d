package httpapi

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"":      LevelOff,
		"off":   LevelOff,
		"error": LevelError,
		"info":  LevelInfo,
		"INFO":  LevelInfo,
		"debug": LevelDebug,
		"1":     LevelDebug,
		"weird": LevelInfo, // default
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRequestLogLevel_Overrides(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?log=debug", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("query override failed: %v", got)
	}
	r = httptest.NewRequest("GET", "/x?log=1", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("numeric query override failed: %v", got)
	}
	r = httptest.NewRequest("GET", "/x", nil)
	r.Header.Set("X-Log-Level", "error")
	if got := requestLogLevel(r); got != LevelError {
		t.Fatalf("header override failed: %v", got)
	}
	// query wins over header
	r = httptest.NewRequest("GET", "/x?log=off", nil)
	r.Header.Set("X-Log-Level", "debug")
	if got := requestLogLevel(r); got != LevelOff {
		t.Fatalf("query should win: %v", got)
	}
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := zlog
	SetLogger(zerolog.New(&buf))
	t.Cleanup(func() { zlog = orig })
	return &buf
}

func TestLogEnd_Levels(t *testing.T) {
	buf := captureLogs(t)
	r := httptest.NewRequest(http.MethodPost, "/chat", nil)

	logEnd(r, LevelError, "lawyer", http.StatusOK, time.Now(), nil)
	if buf.Len() != 0 {
		t.Fatalf("success must not log at error level: %s", buf.String())
	}
	logEnd(r, LevelError, "lawyer", http.StatusInternalServerError, time.Now(), errors.New("boom"))
	if !strings.Contains(buf.String(), `"level":"error"`) || !strings.Contains(buf.String(), `"status":500`) {
		t.Fatalf("missing error log: %s", buf.String())
	}
	buf.Reset()
	logEnd(r, LevelInfo, "lawyer", http.StatusNotFound, time.Now(), errors.New("nope"))
	if !strings.Contains(buf.String(), `"level":"warn"`) || !strings.Contains(buf.String(), `"persona":"lawyer"`) {
		t.Fatalf("missing warn log: %s", buf.String())
	}
	buf.Reset()
	logEnd(r, LevelOff, "lawyer", http.StatusInternalServerError, time.Now(), errors.New("boom"))
	if buf.Len() != 0 {
		t.Fatalf("off must not log: %s", buf.String())
	}
}

func TestChat_LogsWithRequestID(t *testing.T) {
	buf := captureLogs(t)
	req := httptest.NewRequest(http.MethodPost, "/chat?log=debug", strings.NewReader(`{"persona":"lawyer","message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, req)
	out := buf.String()
	if !strings.Contains(out, "request start") || !strings.Contains(out, "request end") || !strings.Contains(out, `"request_id"`) {
		t.Fatalf("unexpected logs: %s", out)
	}
}
