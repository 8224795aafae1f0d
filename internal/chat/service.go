// Package chat turns a chat request into a persona reply: it leases the
// persona's model from the cache, renders the prompt and runs one
// generation against the leased weights.
package chat

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"personad/internal/engine"
	"personad/internal/manager"
	"personad/internal/prompt"
	"personad/pkg/types"
)

// InvalidParameterError reports an out-of-range request field (400).
type InvalidParameterError = prompt.InvalidParameterError

// IsInvalidParameter reports whether err is an InvalidParameterError.
func IsInvalidParameter(err error) bool { return prompt.IsInvalidParameter(err) }

// Cache is the part of the persona cache the service needs.
// *manager.Manager satisfies it.
type Cache interface {
	GetOrLoad(ctx context.Context, persona string) (*manager.Lease, error)
	IsBaseAlias(persona string) bool
	Engine() engine.Engine
}

// Defaults fill omitted generation parameters.
type Defaults struct {
	MaxNewTokens      int
	Temperature       float64
	TopP              float64
	MaxNewTokensLimit int
}

// DefaultDefaults mirrors the documented request defaults.
var DefaultDefaults = Defaults{MaxNewTokens: 32, Temperature: 0.2, TopP: 0.9, MaxNewTokensLimit: 1024}

// Options configure a Service.
type Options struct {
	Cache    Cache
	Prompt   prompt.Builder
	Defaults Defaults
	Logger   *zerolog.Logger
}

// Service handles chat requests. It keeps no state of its own.
type Service struct {
	cache  Cache
	prompt prompt.Builder
	def    Defaults
	log    zerolog.Logger
	tracer trace.Tracer
}

// New returns a Service. Zero-valued defaults fall back to DefaultDefaults.
func New(opts Options) *Service {
	d := opts.Defaults
	if d.MaxNewTokens <= 0 {
		d.MaxNewTokens = DefaultDefaults.MaxNewTokens
	}
	if d.Temperature <= 0 {
		d.Temperature = DefaultDefaults.Temperature
	}
	if d.TopP <= 0 || d.TopP > 1 {
		d.TopP = DefaultDefaults.TopP
	}
	if d.MaxNewTokensLimit <= 0 {
		d.MaxNewTokensLimit = DefaultDefaults.MaxNewTokensLimit
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &Service{
		cache:  opts.Cache,
		prompt: opts.Prompt,
		def:    d,
		log:    log,
		tracer: otel.Tracer("personad/chat"),
	}
}

// Params resolves the generation parameters of req, applying defaults and
// range checks.
func (s *Service) Params(req types.ChatRequest) (engine.Params, error) {
	p := engine.Params{
		MaxNewTokens: s.def.MaxNewTokens,
		Temperature:  s.def.Temperature,
		TopP:         s.def.TopP,
		Stop:         []string{"<|eot_id|>"},
	}
	if req.MaxNewTokens != nil {
		n := *req.MaxNewTokens
		if n <= 0 || n > s.def.MaxNewTokensLimit {
			return p, &InvalidParameterError{Field: "max_new_tokens", Reason: fmt.Sprintf("must be in [1, %d], got %d", s.def.MaxNewTokensLimit, n)}
		}
		p.MaxNewTokens = n
	}
	if req.Temperature != nil {
		t := *req.Temperature
		if math.IsNaN(t) || math.IsInf(t, 0) || t <= 0 {
			return p, &InvalidParameterError{Field: "temperature", Reason: fmt.Sprintf("must be > 0, got %v", t)}
		}
		p.Temperature = t
	}
	if req.TopP != nil {
		v := *req.TopP
		if math.IsNaN(v) || v <= 0 || v > 1 {
			return p, &InvalidParameterError{Field: "top_p", Reason: fmt.Sprintf("must be in (0, 1], got %v", v)}
		}
		p.TopP = v
	}
	return p, nil
}

// Handle serves one chat request. Invalid input is rejected before any model
// work; a failed generation is returned as is and never retried.
func (s *Service) Handle(ctx context.Context, req types.ChatRequest) (resp types.ChatResponse, err error) {
	persona := strings.TrimSpace(req.Persona)
	ctx, span := s.tracer.Start(ctx, "chat.handle", trace.WithAttributes(attribute.String("persona", persona)))
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		chatRequests.WithLabelValues(outcome).Inc()
		chatDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		span.End()
	}()

	params, err := s.Params(req)
	if err != nil {
		return resp, err
	}
	in := prompt.Input{Persona: persona, AgentName: req.AgentName, Message: req.Message}
	if s.cache.IsBaseAlias(persona) {
		in.Persona = ""
	}
	text, err := s.prompt.Build(in)
	if err != nil {
		return resp, err
	}

	lctx, lspan := s.tracer.Start(ctx, "chat.lease")
	lease, err := s.cache.GetOrLoad(lctx, persona)
	endSpan(lspan, err)
	if err != nil {
		return resp, err
	}
	defer lease.Release()

	done, err := lease.Begin(ctx)
	if err != nil {
		return resp, err
	}
	defer done()

	eng := s.cache.Engine()
	model := lease.Model()
	gctx, gspan := s.tracer.Start(ctx, "chat.generate", trace.WithAttributes(
		attribute.String("model.id", model.ID),
		attribute.Int("max_new_tokens", params.MaxNewTokens),
	))
	reply, usage, err := s.generate(gctx, eng, model, text, params)
	endSpan(gspan, err)
	if err != nil {
		s.log.Warn().Str("event", "generate_error").Str("persona", persona).Str("stage", string(engine.StageOf(err))).Err(err).Msg("chat")
		return resp, err
	}
	generatedTokens.Add(float64(usage.CompletionTokens))
	s.log.Debug().Str("event", "chat_done").Str("persona", persona).Int("completion_tokens", usage.CompletionTokens).
		Dur("took", time.Since(start)).Msg("chat")

	if persona == "" {
		persona = "base"
	}
	return types.ChatResponse{Response: reply, Persona: persona, Usage: &usage}, nil
}

func (s *Service) generate(ctx context.Context, eng engine.Engine, m *engine.Model, text string, params engine.Params) (string, types.Usage, error) {
	toks, err := eng.Encode(ctx, m, text)
	if err != nil {
		return "", types.Usage{}, err
	}
	c, err := eng.Generate(ctx, m, engine.Prompt{Text: text, Tokens: toks}, params)
	if err != nil {
		return "", types.Usage{}, err
	}
	out := c.Text
	if out == "" && len(c.Tokens) > 0 {
		if out, err = eng.Decode(ctx, m, c.Tokens); err != nil {
			return "", types.Usage{}, err
		}
	}
	usage := c.Usage
	if usage.TotalTokens == 0 {
		usage = types.Usage{PromptTokens: len(toks), CompletionTokens: len(c.Tokens)}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return prompt.StripControl(out), usage, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
