package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"personad/pkg/types"
)

const (
	payloadName = "adapter.gguf"
	configName  = "adapter_config.json"
)

// scanDir reads the immediate subdirectories of root. Each one is an adapter
// name; files at the top level are ignored.
func scanDir(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !validName(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// validName reports whether name can address a single directory under root.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, os.PathSeparator)
}

// readAdapter builds the record for root/name. The caller checked that the
// directory exists.
func readAdapter(root, name string) (types.Adapter, error) {
	dir := filepath.Join(root, name)
	a := types.Adapter{Name: name, Dir: dir}
	file, err := pickPayload(dir)
	if err != nil {
		return a, err
	}
	a.File = file
	cfg, err := readConfig(filepath.Join(dir, configName))
	if err != nil {
		return a, err
	}
	a.Config = cfg
	return a, nil
}

// pickPayload returns adapter.gguf when present, else the only *.gguf file.
func pickPayload(dir string) (string, error) {
	preferred := filepath.Join(dir, payloadName)
	if st, err := os.Stat(preferred); err == nil && st.Mode().IsRegular() {
		return preferred, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read adapter dir: %w", err)
	}
	var found []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".gguf") {
			found = append(found, filepath.Join(dir, e.Name()))
		}
	}
	switch len(found) {
	case 0:
		return "", &PayloadError{Dir: dir, Reason: "no .gguf payload"}
	case 1:
		return found[0], nil
	default:
		return "", &PayloadError{Dir: dir, Reason: fmt.Sprintf("%d .gguf files and no %s", len(found), payloadName)}
	}
}

// readConfig parses a PEFT adapter_config.json. A missing file is not an error.
func readConfig(path string) (*types.AdapterConfig, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", configName, err)
	}
	var cfg types.AdapterConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, &PayloadError{Dir: filepath.Dir(path), Reason: "invalid " + configName + ": " + err.Error()}
	}
	return &cfg, nil
}
