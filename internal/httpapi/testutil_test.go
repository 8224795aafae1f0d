package httpapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"personad/internal/voice"
	"personad/pkg/types"
)

type mockService struct {
	adapters  []string
	listErr   error
	status    types.StatusResponse
	ready     bool
	chatErr   error
	lastChat  types.ChatRequest
	switchErr error
	voiceErr  error
	lastVoice voice.Request
	audio     string
}

func (m *mockService) Chat(ctx context.Context, req types.ChatRequest) (types.ChatResponse, error) {
	m.lastChat = req
	if m.chatErr != nil {
		return types.ChatResponse{}, m.chatErr
	}
	return types.ChatResponse{Response: "hello from " + req.Persona, Persona: req.Persona}, nil
}

func (m *mockService) Adapters() ([]string, error) { return m.adapters, m.listErr }

func (m *mockService) Switch(ctx context.Context, persona string) (string, error) {
	if m.switchErr != nil {
		return "", m.switchErr
	}
	return "op-1", nil
}

func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }

func (m *mockService) VoiceChat(ctx context.Context, req voice.Request) (io.ReadCloser, error) {
	if m.voiceErr != nil {
		return nil, m.voiceErr
	}
	b, _ := io.ReadAll(req.Audio)
	req.Audio = bytes.NewReader(b)
	m.lastVoice = req
	return io.NopCloser(strings.NewReader(m.audio)), nil
}

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

func postJSON(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}
