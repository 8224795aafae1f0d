package voice

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"personad/internal/config"
	"personad/internal/prompt"
)

// Request is one uploaded voice question.
type Request struct {
	Audio     io.Reader
	Filename  string
	AgentName string
	Persona   string
}

// Service chains transcription, persona chat and speech synthesis.
type Service struct {
	stt    Transcriber
	llm    Chatter
	tts    Synthesizer
	prompt prompt.Builder
	log    zerolog.Logger
}

// New wires a Service from its three backends.
func New(stt Transcriber, llm Chatter, tts Synthesizer, b prompt.Builder, log zerolog.Logger) *Service {
	return &Service{stt: stt, llm: llm, tts: tts, prompt: b, log: log}
}

// FromConfig builds HTTP clients for the configured speech and chat servers.
// It returns ErrDisabled when voice chat is off.
func FromConfig(cfg config.Voice, b prompt.Builder, log zerolog.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	hc := &http.Client{Timeout: 5 * time.Minute}
	llm, err := NewOllamaChat(cfg.OllamaURL, cfg.OllamaModel, cfg.NumPredict, hc)
	if err != nil {
		return nil, err
	}
	return New(
		&STTClient{BaseURL: cfg.STTURL, Model: cfg.STTModel, HTTP: hc},
		llm,
		&TTSClient{BaseURL: cfg.TTSURL, Model: cfg.TTSModel, Voice: cfg.TTSVoice, HTTP: hc},
		b, log,
	), nil
}

// Reply answers req and returns the synthesized WAV stream. Nothing is
// streamed until every upstream step has succeeded, so failures can still be
// reported as JSON errors.
func (s *Service) Reply(ctx context.Context, req Request) (io.ReadCloser, error) {
	start := time.Now()
	transcript, err := s.stt.Transcribe(ctx, req.Filename, req.Audio)
	if err != nil {
		return nil, err
	}
	msgs, err := s.prompt.Messages(prompt.Input{
		Persona:   strings.TrimSpace(req.Persona),
		AgentName: req.AgentName,
		Style:     prompt.StyleVoice,
		Message:   transcript,
	})
	if err != nil {
		return nil, err
	}
	text, err := s.llm.Chat(ctx, msgs)
	if err != nil {
		return nil, err
	}
	text = prompt.StripControl(text)
	audio, err := s.tts.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("event", "voice_reply").Str("persona", req.Persona).Int("transcript_len", len(transcript)).
		Int("reply_len", len(text)).Dur("took", time.Since(start)).Msg("voice")
	return audio, nil
}
