package httpapi

import (
	"time"

	"golang.org/x/time/rate"
)

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// maxUploadBytes bounds multipart audio uploads on /voicechat.
var maxUploadBytes int64 = 25 << 20

// SetMaxUploadBytes configures the /voicechat upload limit.
func SetMaxUploadBytes(n int64) {
	if n <= 0 {
		maxUploadBytes = 25 << 20
		return
	}
	maxUploadBytes = n
}

// requestTimeout bounds /chat and /voicechat, persona loads included.
// Zero means no limit beyond the client connection.
var requestTimeout time.Duration

// SetRequestTimeoutSeconds sets the request timeout in seconds (0 disables).
func SetRequestTimeoutSeconds(sec int64) {
	if sec < 0 {
		sec = 0
	}
	requestTimeout = time.Duration(sec) * time.Second
}

// CORS configuration. If disabled, no CORS middleware is added.
var (
	corsEnabled          bool
	corsAllowedOrigins   []string
	corsAllowedMethods   []string
	corsAllowedHeaders   []string
	corsAllowCredentials bool
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string, credentials bool) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
	corsAllowCredentials = credentials
}

// Rate limiting of generation endpoints, per client IP. rps <= 0 disables it.
var (
	rateRPS   rate.Limit
	rateBurst int
)

// SetRateLimit configures the per-client token bucket for /chat and /voicechat.
func SetRateLimit(rps float64, burst int) {
	if rps <= 0 {
		rateRPS, rateBurst = 0, 0
		return
	}
	if burst <= 0 {
		burst = int(rps) + 1
	}
	rateRPS, rateBurst = rate.Limit(rps), burst
}
