package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"personad/internal/voice"
	"personad/pkg/types"
)

// rootMessage is the static liveness payload of GET /.
const rootMessage = "personad running with persona adapters"

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Chat(ctx context.Context, req types.ChatRequest) (types.ChatResponse, error)
	Adapters() ([]string, error)
	Switch(ctx context.Context, persona string) (string, error)
	Status() types.StatusResponse
	Ready() bool
	// VoiceChat returns voice.ErrDisabled when voice chat is not configured.
	VoiceChat(ctx context.Context, req voice.Request) (io.ReadCloser, error)
}

type handlers struct {
	svc Service
}

// NewMux builds the router. Middleware, CORS and rate limiting follow the
// package-level settings at call time.
func NewMux(svc Service) http.Handler {
	h := &handlers{svc: svc}
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsAllowedOrigins,
			AllowedMethods:   corsAllowedMethods,
			AllowedHeaders:   corsAllowedHeaders,
			AllowCredentials: corsAllowCredentials,
			MaxAge:           300,
		}))
	}

	r.Get("/", h.root)
	r.Get("/adapters", h.adapters)
	r.Get("/status", h.status)
	r.Post("/switch", h.switchPersona)
	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)

	r.Group(func(r chi.Router) {
		if rateRPS > 0 {
			r.Use(newRateLimiter(rateRPS, rateBurst).middleware)
		}
		r.Post("/chat", h.chat)
		r.Post("/voicechat", h.voiceChat)
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)
	return r
}

// root godoc
// @Summary      Liveness message
// @Tags         system
// @Produce      json
// @Success      200  {object}  types.MessageResponse
// @Router       / [get]
func (h *handlers) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.MessageResponse{Message: rootMessage})
}

// adapters godoc
// @Summary      List persona adapters
// @Description  Names of the adapter directories currently published under the adapters root.
// @Tags         personas
// @Produce      json
// @Success      200  {object}  types.AdaptersResponse
// @Failure      500  {object}  types.ErrorResponse
// @Router       /adapters [get]
func (h *handlers) adapters(w http.ResponseWriter, r *http.Request) {
	names, err := h.svc.Adapters()
	if err != nil {
		writeError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, types.AdaptersResponse{Adapters: names})
}

// status godoc
// @Summary      Cache status
// @Tags         system
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// chat godoc
// @Summary      Chat with a persona
// @Description  Loads the persona's merged model if another one is resident, then generates a reply.
// @Tags         chat
// @Accept       json
// @Produce      json
// @Param        request  body      types.ChatRequest  true  "Chat request"
// @Success      200      {object}  types.ChatResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      404      {object}  types.ErrorResponse
// @Failure      415      {object}  types.ErrorResponse
// @Failure      422      {object}  types.ErrorResponse
// @Failure      429      {object}  types.ErrorResponse
// @Failure      500      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /chat [post]
func (h *handlers) chat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	lvl := requestLogLevel(r)
	start := time.Now()
	logStart(r, lvl, req.Persona)

	ctx, cancel := requestContext(r.Context())
	defer cancel()
	resp, err := h.svc.Chat(ctx, req)
	if err != nil {
		// client went away: nobody to answer
		if r.Context().Err() != nil {
			return
		}
		status := writeError(w, err)
		logEnd(r, lvl, req.Persona, status, start, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	logEnd(r, lvl, req.Persona, http.StatusOK, start, nil)
}

// switchPersona godoc
// @Summary      Preload a persona
// @Description  Resolves the persona and loads it in the background.
// @Tags         personas
// @Accept       json
// @Produce      json
// @Param        request  body      types.SwitchRequest  true  "Persona to preload"
// @Success      202      {object}  types.SwitchResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      404      {object}  types.ErrorResponse
// @Router       /switch [post]
func (h *handlers) switchPersona(w http.ResponseWriter, r *http.Request) {
	var req types.SwitchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	op, err := h.svc.Switch(r.Context(), req.Persona)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.SwitchResponse{OpID: op, Persona: req.Persona})
}

// voiceChat godoc
// @Summary      Spoken persona reply
// @Description  Transcribes the uploaded clip, answers in character and streams the reply as WAV.
// @Tags         chat
// @Accept       mpfd
// @Produce      audio/wav
// @Param        file       formData  file    true  "Audio clip"
// @Param        agentname  formData  string  true  "Assistant name"
// @Param        persona    formData  string  true  "Persona"
// @Success      200
// @Failure      400  {object}  types.ErrorResponse
// @Failure      404  {object}  types.ErrorResponse
// @Failure      502  {object}  types.ErrorResponse
// @Router       /voicechat [post]
func (h *handlers) voiceChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "multipart form with file, agentname and persona is required")
		return
	}
	defer r.MultipartForm.RemoveAll()
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	req := voice.Request{
		Audio:     file,
		Filename:  hdr.Filename,
		AgentName: strings.TrimSpace(r.FormValue("agentname")),
		Persona:   strings.TrimSpace(r.FormValue("persona")),
	}
	if req.AgentName == "" || req.Persona == "" {
		writeJSONError(w, http.StatusBadRequest, "agentname and persona are required")
		return
	}

	lvl := requestLogLevel(r)
	start := time.Now()
	logStart(r, lvl, req.Persona)
	ctx, cancel := requestContext(r.Context())
	defer cancel()
	audio, err := h.svc.VoiceChat(ctx, req)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		status := writeError(w, err)
		logEnd(r, lvl, req.Persona, status, start, err)
		return
	}
	defer audio.Close()

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	n, err := io.Copy(flushWriter{w}, audio)
	voiceBytes.Add(float64(n))
	logEnd(r, lvl, req.Persona, http.StatusOK, start, err)
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	if h.svc.Ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("loading"))
}

// decodeJSON enforces a JSON content type and the body size limit. It writes
// the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// oversize bodies get the same 400 so the limit is not disclosed
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// flushWriter flushes after every write so audio reaches the client as it is
// synthesized.
type flushWriter struct {
	w http.ResponseWriter
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if fl, ok := f.w.(http.Flusher); ok {
		fl.Flush()
	}
	return n, err
}
