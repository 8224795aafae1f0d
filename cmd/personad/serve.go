package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"personad/internal/chat"
	"personad/internal/config"
	"personad/internal/engine"
	"personad/internal/httpapi"
	"personad/internal/manager"
	"personad/internal/prompt"
	"personad/internal/registry"
	"personad/internal/telemetry"
	"personad/internal/voice"
)

const shutdownTimeout = 15 * time.Second

// stack is the wired service graph behind the HTTP API.
type stack struct {
	eng     *engine.LlamaCPP
	reg     *registry.Registry
	mgr     *manager.Manager
	handler http.Handler
}

func buildStack(a *app) (*stack, error) {
	cfg := a.cfg
	log := a.log
	eng, err := engine.New(engine.OptionsFromConfig(cfg.Engine, &log))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	reg, err := registry.Open(cfg.AdaptersDir, registry.Options{Cached: cfg.AdaptersCache, Logger: &log})
	if err != nil {
		_ = eng.Close()
		return nil, fmt.Errorf("registry: %w", err)
	}
	mgr := manager.New(manager.Config{
		Engine:          eng,
		Registry:        reg,
		BaseAliases:     cfg.BaseAliases,
		PromptPersonas:  cfg.PromptPersonas,
		AllowPromptOnly: cfg.AllowPromptOnly,
		MaxQueueDepth:   cfg.Queue.MaxDepth,
		MaxWait:         cfg.Queue.MaxWait(),
		Parallel:        cfg.Queue.Parallel,
		DrainTimeout:    cfg.Queue.DrainTimeout(),
		LoadTimeout:     time.Duration(cfg.Engine.LoadTimeoutSeconds) * time.Second,
		Publisher:       manager.LogPublisher{Log: log},
		Logger:          &log,
	})
	builder := prompt.Builder{AssistantName: cfg.AssistantName}
	chatSvc := chat.New(chat.Options{
		Cache:  mgr,
		Prompt: builder,
		Defaults: chat.Defaults{
			MaxNewTokens:      cfg.Generation.MaxNewTokens,
			Temperature:       cfg.Generation.Temperature,
			TopP:              cfg.Generation.TopP,
			MaxNewTokensLimit: cfg.Generation.MaxNewTokensLimit,
		},
		Logger: &log,
	})
	voiceSvc, err := voice.FromConfig(cfg.Voice, builder, log)
	switch {
	case errors.Is(err, voice.ErrDisabled):
		voiceSvc = nil
	case err != nil:
		_ = eng.Close()
		return nil, fmt.Errorf("voice: %w", err)
	}

	configureHTTP(cfg)
	httpapi.SetLogger(log)
	return &stack{
		eng:     eng,
		reg:     reg,
		mgr:     mgr,
		handler: httpapi.NewMux(httpapi.NewBackend(chatSvc, mgr, reg, voiceSvc)),
	}, nil
}

func configureHTTP(cfg config.Config) {
	h := cfg.HTTP
	httpapi.SetMaxBodyBytes(h.MaxBodyBytes)
	httpapi.SetMaxUploadBytes(h.MaxUploadBytes)
	httpapi.SetRequestTimeoutSeconds(h.RequestTimeoutSeconds)
	httpapi.SetCORSOptions(h.CORS.Enabled, h.CORS.AllowedOrigins, h.CORS.AllowedMethods, h.CORS.AllowedHeaders, h.CORS.AllowCredentials)
	httpapi.SetRateLimit(h.RateLimit.RPS, h.RateLimit.Burst)
}

func runServe(ctx context.Context, a *app) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := a.log

	tp, err := telemetry.Init(ctx, a.cfg.Telemetry, log)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	st, err := buildStack(a)
	if err != nil {
		return err
	}
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	if a.cfg.WarmBase {
		go func() {
			start := time.Now()
			if err := st.mgr.Warm(ctx); err != nil {
				log.Error().Str("event", "warm_error").Err(err).Msg("personad")
				return
			}
			log.Info().Str("event", "warm_done").Dur("dur", time.Since(start)).Msg("personad")
		}()
	}

	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           st.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.cfg.Addr).Str("adapters_dir", st.reg.Root()).
			Str("base", st.eng.Base().Path).Msg("personad listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	case serveErr = <-errCh:
		if serveErr != nil {
			log.Error().Err(serveErr).Msg("server error")
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	cancelBase()
	if err := st.mgr.Close(sctx); err != nil {
		log.Warn().Err(err).Msg("cache drain error")
	}
	if err := st.eng.Close(); err != nil {
		log.Warn().Err(err).Msg("engine close error")
	}
	return serveErr
}
