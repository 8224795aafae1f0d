package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"personad/internal/prompt"
)

// Transcriber turns audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// Chatter answers a system and user message pair.
type Chatter interface {
	Chat(ctx context.Context, msgs []prompt.Message) (string, error)
}

// Synthesizer renders text as audio. The caller closes the returned stream.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}

// STTClient calls an OpenAI-compatible transcription endpoint.
type STTClient struct {
	BaseURL string
	Model   string
	HTTP    *http.Client
}

type transcription struct {
	Text string `json:"text"`
}

func (c *STTClient) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename == "" {
		filename = "audio.wav"
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	_ = mw.WriteField("model", c.Model)
	_ = mw.WriteField("response_format", "json")
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(c.BaseURL, "/v1/audio/transcriptions"), &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := httpClient(c.HTTP).Do(req)
	if err != nil {
		return "", &UpstreamError{Service: "stt", Err: err}
	}
	defer resp.Body.Close()
	if err := checkStatus("stt", resp); err != nil {
		return "", err
	}
	var out transcription
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &UpstreamError{Service: "stt", Err: fmt.Errorf("decode: %w", err)}
	}
	return strings.TrimSpace(out.Text), nil
}

// TTSClient calls an OpenAI-compatible speech endpoint and requests WAV.
type TTSClient struct {
	BaseURL string
	Model   string
	Voice   string
	HTTP    *http.Client
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice,omitempty"`
	ResponseFormat string `json:"response_format"`
}

func (c *TTSClient) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	b, err := json.Marshal(speechRequest{Model: c.Model, Input: text, Voice: c.Voice, ResponseFormat: "wav"})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(c.BaseURL, "/v1/audio/speech"), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient(c.HTTP).Do(req)
	if err != nil {
		return nil, &UpstreamError{Service: "tts", Err: err}
	}
	if err := checkStatus("tts", resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// OllamaChat answers through the Ollama chat API.
type OllamaChat struct {
	Client     *api.Client
	Model      string
	NumPredict int
}

// NewOllamaChat returns a chat client for the Ollama server at rawURL.
func NewOllamaChat(rawURL, model string, numPredict int, hc *http.Client) (*OllamaChat, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url: %w", err)
	}
	c := *httpClient(hc)
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.Transport = statusTransport{base: base}
	return &OllamaChat{Client: api.NewClient(u, &c), Model: model, NumPredict: numPredict}, nil
}

type statusKey struct{}

// statusTransport stores the response status in the *int the request
// context carries under statusKey. The ollama client only reports it for
// JSON error bodies without an "error" field.
type statusTransport struct {
	base http.RoundTripper
}

func (t statusTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(r)
	if resp != nil {
		if p, ok := r.Context().Value(statusKey{}).(*int); ok {
			*p = resp.StatusCode
		}
	}
	return resp, err
}

func (c *OllamaChat) Chat(ctx context.Context, msgs []prompt.Message) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    c.Model,
		Messages: make([]api.Message, 0, len(msgs)),
		Stream:   &stream,
		Options:  map[string]any{"num_predict": c.NumPredict},
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, api.Message{Role: m.Role, Content: m.Content})
	}
	var sb strings.Builder
	var status int
	err := c.Client.Chat(context.WithValue(ctx, statusKey{}, &status), req, func(r api.ChatResponse) error {
		sb.WriteString(r.Message.Content)
		return nil
	})
	if err != nil {
		var se api.StatusError
		if errors.As(err, &se) {
			return "", &UpstreamError{Service: "llm", Status: se.StatusCode, Err: err}
		}
		if status >= http.StatusBadRequest {
			return "", &UpstreamError{Service: "llm", Status: status, Err: err}
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &UpstreamError{Service: "llm", Err: err}
	}
	return strings.TrimSpace(sb.String()), nil
}

func endpoint(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

func httpClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}

func checkStatus(service string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &UpstreamError{Service: service, Status: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(b)))}
}
