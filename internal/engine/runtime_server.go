package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"personad/pkg/types"
)

// serverRuntime spawns one llama-server process per loaded model and talks to
// it over its native HTTP API.
type serverRuntime struct {
	bin          string
	host         string
	portStart    int
	portEnd      int
	ctxSize      int
	threads      int
	ngl          int
	extraArgs    []string
	readyTimeout time.Duration
	reqTimeout   time.Duration
	client       *http.Client
	log          zerolog.Logger
}

func newServerRuntime(o Options, log zerolog.Logger) *serverRuntime {
	host := strings.TrimSpace(o.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	ready := o.ReadyTimeout
	if ready <= 0 {
		ready = 60 * time.Second
	}
	// Timeout=0: every call carries a context deadline instead.
	return &serverRuntime{
		bin:          o.ServerBin,
		host:         host,
		portStart:    o.PortStart,
		portEnd:      o.PortEnd,
		ctxSize:      o.CtxSize,
		threads:      o.Threads,
		ngl:          o.NGL,
		extraArgs:    o.ExtraArgs,
		readyTimeout: ready,
		reqTimeout:   o.RequestTimeout,
		client:       &http.Client{Timeout: 0},
		log:          log,
	}
}

func (r *serverRuntime) Name() string { return "server" }

func (r *serverRuntime) Start(ctx context.Context, path string) (instance, error) {
	if r.bin == "" {
		return nil, ErrDependencyUnavailable("llama-server not found: set engine.server_bin or PERSONAD_LLAMA_BIN_DIR")
	}
	var port int
	var err error
	if r.portStart > 0 && r.portEnd >= r.portStart {
		port, err = pickPortInRange(r.host, r.portStart, r.portEnd)
	} else {
		port, err = pickFreePort(r.host)
	}
	if err != nil {
		return nil, err
	}
	baseURL := fmt.Sprintf("http://%s:%d", r.host, port)
	args := []string{"-m", path, "--host", r.host, "--port", strconv.Itoa(port)}
	if r.ctxSize > 0 {
		args = append(args, "-c", strconv.Itoa(r.ctxSize))
	}
	if r.ngl > 0 {
		args = append(args, "-ngl", strconv.Itoa(r.ngl))
	}
	if r.threads > 0 {
		args = append(args, "-t", strconv.Itoa(r.threads))
	}
	args = append(args, r.extraArgs...)

	// Not CommandContext: the process outlives the load call.
	cmd := exec.Command(r.bin, args...)
	stderr := newTailBuffer(4096)
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, ErrDependencyUnavailable(fmt.Sprintf("llama-server not runnable: %v", err))
		}
		return nil, fmt.Errorf("start llama-server: %w", err)
	}
	inst := &serverInstance{
		rt:      r,
		cmd:     cmd,
		baseURL: baseURL,
		pid:     cmd.Process.Pid,
		stderr:  stderr,
		done:    make(chan struct{}),
	}
	go func() {
		inst.waitErr = cmd.Wait()
		close(inst.done)
	}()
	r.log.Info().Str("event", "spawn_start").Str("model", path).Int("pid", inst.pid).Str("url", baseURL).Msg("runtime")

	if err := inst.waitReady(ctx, r.readyTimeout); err != nil {
		_ = inst.Stop()
		r.log.Warn().Str("event", "spawn_failed").Str("model", path).Int("pid", inst.pid).Err(err).Msg("runtime")
		return nil, err
	}
	r.log.Info().Str("event", "spawn_ready").Str("model", path).Int("pid", inst.pid).Msg("runtime")
	return inst, nil
}

type serverInstance struct {
	rt      *serverRuntime
	cmd     *exec.Cmd
	baseURL string
	pid     int
	stderr  *tailBuffer
	done    chan struct{}
	waitErr error
}

func (s *serverInstance) waitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-s.done:
			if s.waitErr != nil {
				return fmt.Errorf("llama-server exited early: %v; stderr tail: %s", s.waitErr, s.stderr.String())
			}
			return fmt.Errorf("llama-server exited before ready: %s", s.baseURL)
		default:
		}
		if s.healthy(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("llama-server not ready in time: %s: %w", s.baseURL, ctx.Err())
		case <-s.done:
		case <-tick.C:
		}
	}
}

// healthy reports whether /health answers 200. llama-server answers 503
// while the model is still loading.
func (s *serverInstance) healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.rt.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

type tokenizeRequest struct {
	Content      string `json:"content"`
	AddSpecial   bool   `json:"add_special"`
	ParseSpecial bool   `json:"parse_special"`
}

type tokenizeResponse struct {
	Tokens []int `json:"tokens"`
}

type detokenizeRequest struct {
	Tokens []int `json:"tokens"`
}

type detokenizeResponse struct {
	Content string `json:"content"`
}

type completionRequest struct {
	Prompt       any      `json:"prompt"`
	NPredict     int      `json:"n_predict"`
	Temperature  float64  `json:"temperature"`
	TopP         float64  `json:"top_p"`
	Stop         []string `json:"stop,omitempty"`
	Seed         int      `json:"seed,omitempty"`
	CachePrompt  bool     `json:"cache_prompt"`
	ReturnTokens bool     `json:"return_tokens"`
	Stream       bool     `json:"stream"`
}

type completionResponse struct {
	Content         string `json:"content"`
	Tokens          []int  `json:"tokens"`
	TokensEvaluated int    `json:"tokens_evaluated"`
	TokensPredicted int    `json:"tokens_predicted"`
	StoppedEOS      bool   `json:"stopped_eos"`
	StoppedLimit    bool   `json:"stopped_limit"`
	StoppedWord     bool   `json:"stopped_word"`
}

func (s *serverInstance) Tokenize(ctx context.Context, text string) ([]int, error) {
	var out tokenizeResponse
	// The prompt carries its own <|begin_of_text|>.
	err := s.post(ctx, "/tokenize", tokenizeRequest{Content: text, ParseSpecial: true}, &out)
	return out.Tokens, err
}

func (s *serverInstance) Detokenize(ctx context.Context, tokens []int) (string, error) {
	var out detokenizeResponse
	err := s.post(ctx, "/detokenize", detokenizeRequest{Tokens: tokens}, &out)
	return out.Content, err
}

func (s *serverInstance) Complete(ctx context.Context, p Prompt, params Params) (Completion, error) {
	req := completionRequest{
		Prompt:       p.Text,
		NPredict:     params.MaxNewTokens,
		Temperature:  params.Temperature,
		TopP:         params.TopP,
		Stop:         params.Stop,
		Seed:         params.Seed,
		CachePrompt:  true,
		ReturnTokens: true,
	}
	if len(p.Tokens) > 0 {
		req.Prompt = p.Tokens
	}
	var out completionResponse
	if err := s.post(ctx, "/completion", req, &out); err != nil {
		return Completion{}, err
	}
	c := Completion{Text: out.Content, Tokens: out.Tokens}
	c.Usage = types.Usage{
		PromptTokens:     out.TokensEvaluated,
		CompletionTokens: out.TokensPredicted,
		TotalTokens:      out.TokensEvaluated + out.TokensPredicted,
	}
	switch {
	case out.StoppedLimit:
		c.FinishReason = "length"
	case out.StoppedEOS, out.StoppedWord:
		c.FinishReason = "stop"
	}
	return c, nil
}

func (s *serverInstance) post(ctx context.Context, path string, in, out any) error {
	if s.rt.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.rt.reqTimeout)
		defer cancel()
	}
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.rt.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("llama-server %s: %s: %s", path, resp.Status, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("llama-server %s: decode: %w", path, err)
	}
	return nil
}

// Stop sends SIGTERM and falls back to kill after two seconds.
func (s *serverInstance) Stop() error {
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	select {
	case <-s.done:
		return nil
	default:
	}
	_ = s.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		_ = s.cmd.Process.Kill()
		<-s.done
	}
	s.rt.log.Info().Str("event", "spawn_stop").Int("pid", s.pid).Msg("runtime")
	return nil
}

func pickPortInRange(host string, start, end int) (int, error) {
	for p := start; p <= end; p++ {
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err != nil {
			continue
		}
		_ = l.Close()
		return p, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", start, end)
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
