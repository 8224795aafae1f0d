package engine

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/ollama/ollama/fs/ggml"
)

// ggufInfo is the metadata and tensor table of a GGUF file. Array values
// (tokenizer vocabularies and the like) are not collected.
type ggufInfo struct {
	kv     ggml.KV
	shapes map[string][]uint64
}

// string-typed keys read through ggml.KV accessors.
var ggufStringKeys = []string{"general.architecture", "general.type", "general.size_label", "adapter.type"}

func readGGUF(path string) (info ggufInfo, err error) {
	// ggml.KV accessors panic on mistyped keys, including inside Decode.
	defer func() {
		if r := recover(); r != nil {
			info, err = ggufInfo{}, fmt.Errorf("gguf %s: %v", path, r)
		}
	}()
	f, err := os.Open(path)
	if err != nil {
		return ggufInfo{}, err
	}
	defer f.Close()
	g, err := ggml.Decode(f, 0)
	if err != nil {
		return ggufInfo{}, fmt.Errorf("gguf %s: %w", path, err)
	}
	info = ggufInfo{kv: g.KV(), shapes: map[string][]uint64{}}
	for _, k := range ggufStringKeys {
		if v, ok := info.kv[k]; ok {
			if _, isStr := v.(string); !isStr {
				return ggufInfo{}, fmt.Errorf("gguf %s: %s has type %T", path, k, v)
			}
		}
	}
	for _, t := range g.Tensors().Items() {
		info.shapes[t.Name] = t.Shape
	}
	return info, nil
}

// kind is general.type, "unknown" when absent.
func (g ggufInfo) kind() string { return g.kv.Kind() }

func (g ggufInfo) arch() string {
	if _, ok := g.kv["general.architecture"]; !ok {
		return ""
	}
	return g.kv.Architecture()
}

func (g ggufInfo) str(key string) string {
	s, _ := g.kv[key].(string)
	return s
}

// embeddingLength is <arch>.embedding_length, 0 when absent.
func (g ggufInfo) embeddingLength() uint64 {
	if _, ok := g.kv[g.kv.Architecture()+".embedding_length"].(uint32); !ok {
		return 0
	}
	return g.kv.EmbeddingLength()
}

func (g ggufInfo) precision() Precision {
	v, ok := g.kv["general.file_type"].(uint32)
	if !ok {
		return ""
	}
	if s := ggml.FileType(v).String(); s != "unknown" {
		return Precision(s)
	}
	return ""
}

// checkLoRAShapes compares every lora_a/lora_b pair of an adapter with the
// base tensor it patches, the way llama.cpp validates on load:
// a is [in, r], b is [r, out], base is [in, out].
func checkLoRAShapes(base, adapter ggufInfo) error {
	for name, a := range adapter.shapes {
		target, ok := strings.CutSuffix(name, ".lora_a")
		if !ok {
			continue
		}
		b, ok := adapter.shapes[target+".lora_b"]
		if !ok {
			return fmt.Errorf("tensor %s has no lora_b", target)
		}
		w, ok := base.shapes[target]
		if !ok {
			return fmt.Errorf("tensor %s not in base model", target)
		}
		if len(a) < 2 || len(b) < 2 || len(w) < 2 {
			return fmt.Errorf("tensor %s is not a matrix", target)
		}
		if a[1] != b[0] {
			return fmt.Errorf("tensor %s: lora_a rank %d, lora_b rank %d", target, a[1], b[0])
		}
		if a[0] != w[0] || b[1] != w[1] {
			return fmt.Errorf("tensor %s: adapter shape [%d %d], base [%d %d]", target, a[0], b[1], w[0], w[1])
		}
	}
	for name := range adapter.shapes {
		if target, ok := strings.CutSuffix(name, ".lora_b"); ok {
			if _, ok := adapter.shapes[target+".lora_a"]; !ok {
				return fmt.Errorf("tensor %s has no lora_a", target)
			}
		}
	}
	return nil
}

var sizeLabelRe = regexp.MustCompile(`(?i)(?:^|[-_./\s])(\d+(?:\.\d+)?[BM])(?:$|[-_./\s])`)

// checkAdapterConfig rejects PEFT metadata that contradicts the base model:
// a non-LoRA peft_type, or a base_model_name_or_path whose size label
// (1B, 3B, 8B, ...) differs from the base's general.size_label.
func checkAdapterConfig(base ggufInfo, peftType, baseModel string) error {
	if peftType != "" && !strings.EqualFold(peftType, "lora") {
		return fmt.Errorf("peft_type %q, want LORA", peftType)
	}
	want := base.str("general.size_label")
	if baseModel == "" || want == "" {
		return nil
	}
	m := sizeLabelRe.FindStringSubmatch(baseModel)
	if m == nil {
		return nil
	}
	if !strings.EqualFold(m[1], want) {
		return fmt.Errorf("trained for %s (%s), base is %s", baseModel, m[1], want)
	}
	return nil
}
