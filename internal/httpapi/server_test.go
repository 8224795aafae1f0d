package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"personad/internal/engine"
	"personad/internal/manager"
	"personad/internal/prompt"
	"personad/internal/registry"
	"personad/internal/voice"
	"personad/pkg/types"
)

func TestRootHandler(t *testing.T) {
	w := get(NewMux(&mockService{}), "/")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.MessageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Message != rootMessage {
		t.Fatalf("message=%q", body.Message)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing security header")
	}
}

func TestAdaptersHandler(t *testing.T) {
	w := get(NewMux(&mockService{adapters: []string{"doctor", "lawyer"}}), "/adapters")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var body types.AdaptersResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body.Adapters) != 2 || body.Adapters[0] != "doctor" {
		t.Fatalf("adapters=%v", body.Adapters)
	}
}

func TestAdaptersHandler_EmptyIsArray(t *testing.T) {
	w := get(NewMux(&mockService{}), "/adapters")
	if !strings.Contains(w.Body.String(), `"adapters":[]`) {
		t.Fatalf("body=%s", w.Body.String())
	}
}

func TestAdaptersHandler_Error(t *testing.T) {
	w := get(NewMux(&mockService{listErr: errors.New("read dir: permission denied")}), "/adapters")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{State: "ready", LoadsTotal: 3}}
	w := get(NewMux(svc), "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.LoadsTotal != 3 || body.State != "ready" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestReadyz(t *testing.T) {
	w := get(NewMux(&mockService{ready: true}), "/readyz")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	w = get(NewMux(&mockService{}), "/readyz")
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "loading") {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
	if w := get(NewMux(&mockService{}), "/healthz"); w.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", w.Code)
	}
}

func TestChat_OK(t *testing.T) {
	svc := &mockService{}
	w := postJSON(NewMux(svc), "/chat", `{"persona":"lawyer","message":"hi","max_new_tokens":64,"temperature":0.3}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var body types.ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Response != "hello from lawyer" {
		t.Fatalf("response=%q", body.Response)
	}
	if svc.lastChat.MaxNewTokens == nil || *svc.lastChat.MaxNewTokens != 64 || svc.lastChat.TopP != nil {
		t.Fatalf("request not decoded as sent: %+v", svc.lastChat)
	}
}

func TestChat_RequiresJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestChat_BadJSON(t *testing.T) {
	w := postJSON(NewMux(&mockService{}), "/chat", `{"persona":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestChat_BodyTooLarge(t *testing.T) {
	SetMaxBodyBytes(16)
	defer SetMaxBodyBytes(0)
	w := postJSON(NewMux(&mockService{}), "/chat", `{"persona":"lawyer","message":"`+strings.Repeat("x", 64)+`"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestChat_ErrorMapping(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		code  int
		stage string
	}{
		{"not found", &registry.NotFoundError{Name: "pirate"}, http.StatusNotFound, ""},
		{"invalid", &prompt.InvalidParameterError{Field: "top_p", Reason: "must be in (0, 1]"}, http.StatusBadRequest, ""},
		{"incompatible", &manager.LoadError{Persona: "doctor", Stage: engine.StageApply, Err: &engine.Failure{Stage: engine.StageApply, Err: &engine.IncompatibleAdapterError{Adapter: "doctor", Reason: "arch"}}}, http.StatusUnprocessableEntity, "apply"},
		{"merge failure", &manager.LoadError{Persona: "doctor", Stage: engine.StageMerge, Err: &engine.Failure{Stage: engine.StageMerge, Err: errors.New("exit 1")}}, http.StatusInternalServerError, "merge"},
		{"generate failure", &engine.Failure{Stage: engine.StageGenerate, Err: errors.New("boom")}, http.StatusInternalServerError, "generate"},
		{"too busy", &manager.TooBusyError{Persona: "lawyer", Reason: "queue_full"}, http.StatusTooManyRequests, ""},
		{"dependency", engine.ErrDependencyUnavailable("llama-server not found"), http.StatusServiceUnavailable, ""},
		{"closed", manager.ErrClosed, http.StatusServiceUnavailable, ""},
		{"custom", mockHTTPError{msg: "teapot", code: http.StatusTeapot}, http.StatusTeapot, ""},
		{"plain", errors.New("unexpected"), http.StatusInternalServerError, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := postJSON(NewMux(&mockService{chatErr: c.err}), "/chat", `{"persona":"x","message":"y"}`)
			if w.Code != c.code {
				t.Fatalf("status=%d want %d", w.Code, c.code)
			}
			var body types.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("json: %v", err)
			}
			if body.Code != c.code || body.Error == "" || body.Stage != c.stage {
				t.Fatalf("unexpected error body: %+v", body)
			}
		})
	}
}

func TestSwitch(t *testing.T) {
	w := postJSON(NewMux(&mockService{}), "/switch", `{"persona":"doctor"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.SwitchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.OpID != "op-1" || body.Persona != "doctor" {
		t.Fatalf("body=%+v", body)
	}
	w = postJSON(NewMux(&mockService{switchErr: &registry.NotFoundError{Name: "pirate"}}), "/switch", `{"persona":"pirate"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
}

func voiceForm(t *testing.T, fields map[string]string, withFile bool) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if withFile {
		fw, err := mw.CreateFormFile("file", "clip.wav")
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write([]byte("RIFFpcm"))
	}
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestVoiceChat_StreamsWav(t *testing.T) {
	svc := &mockService{audio: "RIFFreply"}
	body, ct := voiceForm(t, map[string]string{"agentname": "AVA", "persona": "doctor"}, true)
	req := httptest.NewRequest(http.MethodPost, "/voicechat", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("Content-Type") != "audio/wav" || w.Body.String() != "RIFFreply" {
		t.Fatalf("unexpected response %q %q", w.Header().Get("Content-Type"), w.Body.String())
	}
	if svc.lastVoice.Persona != "doctor" || svc.lastVoice.AgentName != "AVA" || svc.lastVoice.Filename != "clip.wav" {
		t.Fatalf("request=%+v", svc.lastVoice)
	}
}

func TestVoiceChat_Validation(t *testing.T) {
	cases := []struct {
		name     string
		fields   map[string]string
		withFile bool
	}{
		{"no file", map[string]string{"agentname": "AVA", "persona": "doctor"}, false},
		{"no persona", map[string]string{"agentname": "AVA"}, true},
		{"no agent", map[string]string{"persona": "doctor"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			body, ct := voiceForm(t, c.fields, c.withFile)
			req := httptest.NewRequest(http.MethodPost, "/voicechat", body)
			req.Header.Set("Content-Type", ct)
			w := httptest.NewRecorder()
			NewMux(&mockService{}).ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status=%d", w.Code)
			}
		})
	}
	w := postJSON(NewMux(&mockService{}), "/voicechat", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("non-multipart status=%d", w.Code)
	}
}

func TestVoiceChat_Errors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{voice.ErrDisabled, http.StatusNotFound},
		{&voice.UpstreamError{Service: "tts", Status: 500, Err: errors.New("down")}, http.StatusBadGateway},
	}
	for _, c := range cases {
		body, ct := voiceForm(t, map[string]string{"agentname": "AVA", "persona": "doctor"}, true)
		req := httptest.NewRequest(http.MethodPost, "/voicechat", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		NewMux(&mockService{voiceErr: c.err}).ServeHTTP(w, req)
		if w.Code != c.code {
			t.Fatalf("%v: status=%d want %d", c.err, w.Code, c.code)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	SetCORSOptions(true, []string{"*"}, []string{"GET", "POST"}, []string{"*"}, false)
	defer SetCORSOptions(false, nil, nil, nil, false)
	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-origin=%q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewMux(&mockService{})
	_ = get(h, "/adapters")
	w := get(h, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "personad_http_requests_total") {
		t.Fatalf("missing http metrics")
	}
}
