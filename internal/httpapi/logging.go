package httpapi

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	zlogger "github.com/rs/zerolog/log"
)

// zlog is the structured logger of the HTTP layer. Defaults to the global
// zerolog logger.
var zlog = &zlogger.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug", "1":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// defaultLogLevel is read once from PERSONAD_REQUEST_LOG; requests log at
// info unless it says otherwise.
var defaultLogLevel = func() LogLevel {
	if v, ok := os.LookupEnv("PERSONAD_REQUEST_LOG"); ok {
		return parseLevel(v)
	}
	return LevelInfo
}()

// requestLogLevel honors ?log= and X-Log-Level overrides.
func requestLogLevel(r *http.Request) LogLevel {
	if v := r.URL.Query().Get("log"); v != "" {
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// logStart records the beginning of a generation request.
func logStart(r *http.Request, lvl LogLevel, persona string) {
	if lvl < LevelDebug {
		return
	}
	zlog.Debug().Str("path", r.URL.Path).Str("persona", persona).
		Str("request_id", middleware.GetReqID(r.Context())).Msg("request start")
}

// logEnd records the outcome of a generation request. Errors log at LevelError
// and above, successes at LevelInfo and above.
func logEnd(r *http.Request, lvl LogLevel, persona string, status int, start time.Time, err error) {
	if lvl == LevelOff || (err == nil && lvl < LevelInfo) {
		return
	}
	var ev *zerolog.Event
	switch {
	case err != nil && status >= http.StatusInternalServerError:
		ev = zlog.Error()
	case err != nil:
		ev = zlog.Warn()
	default:
		ev = zlog.Info()
	}
	ev = ev.Str("path", r.URL.Path).Str("persona", persona).Int("status", status).Dur("dur", time.Since(start))
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		ev = ev.Str("request_id", rid)
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("request end")
}
