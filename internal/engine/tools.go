package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// toolRunner runs one llama.cpp command-line tool to completion.
type toolRunner func(ctx context.Context, bin string, args ...string) error

func (e *LlamaCPP) execTool(ctx context.Context, bin string, args ...string) error {
	if bin == "" {
		return ErrDependencyUnavailable("llama.cpp tool not configured")
	}
	start := time.Now()
	cmd := exec.CommandContext(ctx, bin, args...)
	stderr := newTailBuffer(4096)
	cmd.Stderr = stderr
	cmd.Stdout = stderr
	e.log.Debug().Str("event", "tool_start").Str("bin", filepath.Base(bin)).Strs("args", args).Msg("engine")
	err := cmd.Run()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return ErrDependencyUnavailable(fmt.Sprintf("%s not runnable: %v", filepath.Base(bin), err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w; output tail: %s", filepath.Base(bin), err, strings.TrimSpace(stderr.String()))
	}
	e.log.Debug().Str("event", "tool_done").Str("bin", filepath.Base(bin)).Dur("took", time.Since(start)).Msg("engine")
	return nil
}

// discoverBin locates a llama.cpp binary on PATH or in common install dirs.
func discoverBin(name string) string {
	if lp, err := exec.LookPath(name); err == nil {
		return lp
	}
	home, _ := os.UserHomeDir()
	candidates := []string{
		filepath.Join(home, "llama.cpp", "build", "bin", name),
		filepath.Join(home, "apps", "llama.cpp", "build", "bin", name),
		filepath.Join("/usr/local/bin", name),
		filepath.Join("/opt/homebrew/bin", name),
	}
	for _, p := range candidates {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}
