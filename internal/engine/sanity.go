package engine

import (
	"os"

	"personad/pkg/types"
)

// SanityCheck reports which external dependencies the engine can reach. It
// does not mutate state and is safe to call at any time.
func (e *LlamaCPP) SanityCheck() types.SanityReport {
	r := types.SanityReport{
		Runtime:   e.rt.Name(),
		BaseModel: e.base.Path,
		Binaries:  map[string]string{},
	}
	if fi, err := os.Stat(e.base.Path); err == nil && !fi.IsDir() {
		r.BaseFound = true
	} else if err != nil {
		r.Error = err.Error()
	}
	bins := map[string]string{
		"llama-export-lora": e.opts.ExportLoraBin,
		"llama-quantize":    e.opts.QuantizeBin,
	}
	if e.rt.Name() == "server" {
		bins["llama-server"] = e.opts.ServerBin
	}
	for _, name := range []string{"llama-export-lora", "llama-quantize", "llama-server"} {
		path, want := bins[name]
		if !want {
			continue
		}
		if fi, err := os.Stat(path); path != "" && err == nil && !fi.IsDir() {
			r.Binaries[name] = path
			continue
		}
		r.Missing = append(r.Missing, name)
	}
	if e.rt.Name() == "inproc" && !inprocBuilt {
		r.Missing = append(r.Missing, "llama build tag")
	}
	if len(r.Missing) > 0 && r.Error == "" {
		r.Error = "missing dependencies"
	}
	return r
}
