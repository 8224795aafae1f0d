package engine

import (
	"time"

	"github.com/rs/zerolog"

	"personad/internal/config"
)

// OptionsFromConfig maps the engine section of the service config.
func OptionsFromConfig(c config.Engine, log *zerolog.Logger) Options {
	return Options{
		BaseModel:      c.BaseModel,
		Runtime:        c.Runtime,
		QuantType:      c.QuantType,
		WorkDir:        c.WorkDir,
		ServerBin:      c.ServerBin,
		ExportLoraBin:  c.ExportLoraBin,
		QuantizeBin:    c.QuantizeBin,
		Host:           c.Host,
		PortStart:      c.PortStart,
		PortEnd:        c.PortEnd,
		CtxSize:        c.CtxSize,
		Threads:        c.Threads,
		NGL:            c.NGL,
		ExtraArgs:      c.ExtraArgs,
		ReadyTimeout:   time.Duration(c.ReadyTimeoutSeconds) * time.Second,
		RequestTimeout: time.Duration(c.RequestTimeoutSeconds) * time.Second,
		Logger:         log,
	}
}
