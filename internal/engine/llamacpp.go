package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"personad/internal/common/fsutil"
	"personad/pkg/types"
)

// Options configure a LlamaCPP engine.
type Options struct {
	BaseModel     string
	Runtime       string // "server" or "inproc"
	QuantType     string // llama-quantize type; "" or "none" skips quantization
	WorkDir       string
	ServerBin     string
	ExportLoraBin string
	QuantizeBin   string

	Host      string
	PortStart int
	PortEnd   int
	CtxSize   int
	Threads   int
	NGL       int
	ExtraArgs []string

	ReadyTimeout   time.Duration
	RequestTimeout time.Duration

	Logger *zerolog.Logger
}

// LlamaCPP prepares persona models with the llama.cpp tools
// (llama-export-lora, llama-quantize) and serves them through a runtime.
// The base weights file is only ever read.
type LlamaCPP struct {
	opts     Options
	base     *Model
	baseGGUF ggufInfo
	rt       runtime
	log  zerolog.Logger
	run  toolRunner

	mu        sync.Mutex
	instances map[string]instance
	closed    bool
}

var _ Engine = (*LlamaCPP)(nil)

// New inspects the base model and prepares the work directory. It does not
// start a runtime.
func New(opts Options) (*LlamaCPP, error) {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	if strings.TrimSpace(opts.BaseModel) == "" {
		return nil, ErrDependencyUnavailable("engine.base_model not configured")
	}
	path, err := fsutil.Resolve(opts.BaseModel)
	if err != nil {
		return nil, err
	}
	if !fsutil.IsFile(path) {
		return nil, ErrDependencyUnavailable(fmt.Sprintf("base model not found: %s", path))
	}
	h, err := readGGUF(path)
	if err != nil {
		return nil, err
	}
	if t := h.kind(); t != "unknown" && t != "model" {
		return nil, fmt.Errorf("base model %s has general.type=%q", path, t)
	}
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(os.TempDir(), "personad")
	}
	if opts.WorkDir, err = fsutil.Resolve(opts.WorkDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("work dir: %w", err)
	}
	if opts.ServerBin == "" {
		opts.ServerBin = discoverBin("llama-server")
	}
	if opts.ExportLoraBin == "" {
		opts.ExportLoraBin = discoverBin("llama-export-lora")
	}
	if opts.QuantizeBin == "" {
		opts.QuantizeBin = discoverBin("llama-quantize")
	}
	e := &LlamaCPP{
		opts: opts,
		base: &Model{
			ID:        "base",
			Path:      path,
			Arch:      h.arch(),
			Precision: h.precision(),
		},
		baseGGUF:  h,
		log:       log,
		instances: make(map[string]instance),
	}
	e.run = e.execTool
	switch opts.Runtime {
	case "", "server":
		e.rt = newServerRuntime(opts, log)
	case "inproc":
		e.rt = newInprocRuntime(opts)
	default:
		return nil, fmt.Errorf("unknown runtime %q", opts.Runtime)
	}
	log.Info().Str("event", "engine_init").Str("base", path).Str("arch", e.base.Arch).
		Str("precision", string(e.base.Precision)).Str("runtime", e.rt.Name()).Msg("engine")
	return e, nil
}

// Base returns the on-disk base model. It is never loaded or released
// directly; Load returns a separate handle for it.
func (e *LlamaCPP) Base() *Model { return e.base }

// Apply checks the adapter against base and returns a working model that
// references the base weights read-only plus the adapter payload.
func (e *LlamaCPP) Apply(ctx context.Context, base *Model, a types.Adapter) (*Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(StageApply, err)
	}
	if base == nil || base.Merged || base.Adapter != "" {
		return nil, fail(StageApply, errors.New("apply needs the unmodified base model"))
	}
	if !base.Precision.Full() {
		return nil, fail(StageApply, fmt.Errorf("%w: %s", ErrQuantizedBase, base.Precision))
	}
	if a.File == "" {
		return nil, &IncompatibleAdapterError{Adapter: a.Name, Reason: "no payload"}
	}
	h, err := readGGUF(a.File)
	if err != nil {
		return nil, &IncompatibleAdapterError{Adapter: a.Name, Reason: err.Error()}
	}
	if t := h.kind(); t != "adapter" {
		return nil, &IncompatibleAdapterError{Adapter: a.Name, Reason: fmt.Sprintf("general.type=%q, want adapter", t)}
	}
	if t := h.str("adapter.type"); t != "lora" {
		return nil, &IncompatibleAdapterError{Adapter: a.Name, Reason: fmt.Sprintf("adapter.type=%q, want lora", t)}
	}
	if arch := h.arch(); base.Arch != "" && arch != base.Arch {
		return nil, &IncompatibleAdapterError{Adapter: a.Name, Reason: fmt.Sprintf("architecture %q, base is %q", arch, base.Arch)}
	}
	if n, want := h.embeddingLength(), e.baseGGUF.embeddingLength(); n != 0 && want != 0 && n != want {
		return nil, &IncompatibleAdapterError{Adapter: a.Name, Reason: fmt.Sprintf("embedding length %d, base is %d", n, want)}
	}
	if err := checkLoRAShapes(e.baseGGUF, h); err != nil {
		return nil, &IncompatibleAdapterError{Adapter: a.Name, Reason: err.Error()}
	}
	if c := a.Config; c != nil {
		if err := checkAdapterConfig(e.baseGGUF, c.PeftType, c.BaseModel); err != nil {
			return nil, &IncompatibleAdapterError{Adapter: a.Name, Reason: err.Error()}
		}
	}
	scale := a.Config.Scale()
	if v, ok := h.kv["adapter.lora.alpha"].(float32); ok && v > 0 {
		// llama.cpp applies alpha/r from the header itself.
		scale = 1
	}
	return &Model{
		ID:        uuid.NewString(),
		Adapter:   a.Name,
		Path:      base.Path,
		Arch:      base.Arch,
		Precision: base.Precision,
		LoRA:      a.File,
		Scale:     scale,
	}, nil
}

// Merge folds the attached adapter into a new weights file in the work dir.
func (e *LlamaCPP) Merge(ctx context.Context, m *Model) (*Model, error) {
	if m == nil || m.LoRA == "" || m.Merged {
		return nil, fail(StageMerge, ErrNoAdapter)
	}
	if !m.Precision.Full() {
		return nil, fail(StageMerge, fmt.Errorf("%w: %s", ErrNotFullPrecision, m.Precision))
	}
	id := uuid.NewString()
	out := e.workPath(m.Adapter, id, "merged-"+strings.ToLower(string(m.Precision)))
	args := []string{"-m", m.Path, "--lora-scaled", m.LoRA, strconv.FormatFloat(m.Scale, 'f', -1, 64), "-o", out}
	if e.opts.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(e.opts.Threads))
	}
	if err := e.run(ctx, e.opts.ExportLoraBin, args...); err != nil {
		_ = os.Remove(out)
		return nil, fail(StageMerge, err)
	}
	if !fsutil.IsFile(out) {
		return nil, fail(StageMerge, fmt.Errorf("export-lora produced no output at %s", out))
	}
	return &Model{
		ID:        id,
		Adapter:   m.Adapter,
		Path:      out,
		Arch:      m.Arch,
		Precision: m.Precision,
		Merged:    true,
		Owned:     true,
	}, nil
}

// Quantize compresses full-precision weights to the configured type. A model
// that is already compressed, or an engine configured without a quant type,
// is returned unchanged.
func (e *LlamaCPP) Quantize(ctx context.Context, m *Model) (*Model, error) {
	if m == nil {
		return nil, fail(StageQuantize, errors.New("nil model"))
	}
	if m.LoRA != "" && !m.Merged {
		return nil, fail(StageQuantize, errors.New("quantize before merge"))
	}
	qt := strings.ToUpper(strings.TrimSpace(e.opts.QuantType))
	if !m.Precision.Full() || qt == "" || qt == "NONE" || Precision(qt) == m.Precision {
		return m, nil
	}
	id := uuid.NewString()
	out := e.workPath(m.Adapter, id, strings.ToLower(qt))
	args := []string{m.Path, out, qt}
	if e.opts.Threads > 0 {
		args = append(args, strconv.Itoa(e.opts.Threads))
	}
	if err := e.run(ctx, e.opts.QuantizeBin, args...); err != nil {
		_ = os.Remove(out)
		return nil, fail(StageQuantize, err)
	}
	if !fsutil.IsFile(out) {
		return nil, fail(StageQuantize, fmt.Errorf("llama-quantize produced no output at %s", out))
	}
	return &Model{
		ID:        id,
		Adapter:   m.Adapter,
		Path:      out,
		Arch:      m.Arch,
		Precision: Precision(qt),
		Merged:    m.Merged,
		Owned:     true,
	}, nil
}

// Load starts a runtime instance for m. The returned model takes over
// ownership of m's file; m itself must not be released afterwards.
func (e *LlamaCPP) Load(ctx context.Context, m *Model) (*Model, error) {
	if m == nil || (m.LoRA != "" && !m.Merged) {
		return nil, fail(StageLoad, errors.New("load needs merged or base weights"))
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, fail(StageLoad, errors.New("engine closed"))
	}
	inst, err := e.rt.Start(ctx, m.Path)
	if err != nil {
		return nil, fail(StageLoad, err)
	}
	loaded := *m
	loaded.ID = uuid.NewString()
	loaded.Loaded = true
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		_ = inst.Stop()
		return nil, fail(StageLoad, errors.New("engine closed"))
	}
	e.instances[loaded.ID] = inst
	e.mu.Unlock()
	return &loaded, nil
}

func (e *LlamaCPP) instance(m *Model) (instance, bool) {
	if m == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.instances[m.ID]
	return inst, ok
}

func (e *LlamaCPP) Encode(ctx context.Context, m *Model, text string) ([]int, error) {
	inst, ok := e.instance(m)
	if !ok {
		return nil, fail(StageEncode, ErrNotLoaded)
	}
	toks, err := inst.Tokenize(ctx, text)
	return toks, fail(StageEncode, err)
}

func (e *LlamaCPP) Decode(ctx context.Context, m *Model, tokens []int) (string, error) {
	inst, ok := e.instance(m)
	if !ok {
		return "", fail(StageDecode, ErrNotLoaded)
	}
	s, err := inst.Detokenize(ctx, tokens)
	return s, fail(StageDecode, err)
}

func (e *LlamaCPP) Generate(ctx context.Context, m *Model, p Prompt, params Params) (Completion, error) {
	inst, ok := e.instance(m)
	if !ok {
		return Completion{}, fail(StageGenerate, ErrNotLoaded)
	}
	c, err := inst.Complete(ctx, p, params)
	return c, fail(StageGenerate, err)
}

// Release stops m's runtime instance and removes files the engine created
// for it. Releasing the base model is a no-op.
func (e *LlamaCPP) Release(m *Model) error {
	if m == nil || m == e.base || (m.Path == e.base.Path && !m.Owned && !m.Loaded) {
		return nil
	}
	var errs []error
	e.mu.Lock()
	inst, ok := e.instances[m.ID]
	delete(e.instances, m.ID)
	e.mu.Unlock()
	if ok {
		errs = append(errs, inst.Stop())
	}
	if m.Owned && m.Path != e.base.Path {
		if err := os.Remove(m.Path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	e.log.Debug().Str("event", "release").Str("model", m.ID).Str("adapter", m.Adapter).Msg("engine")
	return errors.Join(errs...)
}

// Close stops every runtime instance. Files are left to Release.
func (e *LlamaCPP) Close() error {
	e.mu.Lock()
	e.closed = true
	insts := e.instances
	e.instances = make(map[string]instance)
	e.mu.Unlock()
	var errs []error
	for _, inst := range insts {
		errs = append(errs, inst.Stop())
	}
	return errors.Join(errs...)
}

func (e *LlamaCPP) workPath(adapter, id, suffix string) string {
	name := adapter
	if name == "" {
		name = "base"
	}
	return filepath.Join(e.opts.WorkDir, fmt.Sprintf("%s-%s-%s.gguf", name, id[:8], suffix))
}
