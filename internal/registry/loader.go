package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"inferd/internal/common/fsutil"
	"inferd/pkg/types"
)

var quantRe = regexp.MustCompile(`(?i)\b(i?q[0-9]+(_[a-z0-9_]+)?|f16|f32|bf16)\b`)

// LoadDir scans a directory for *.gguf files and builds a model registry
// from filenames. ID is the full filename (including extension); Path is
// the absolute file path. Quant and Family are best-effort guesses from
// the filename and may be empty.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		models = append(models, types.Model{
			ID:     name,
			Name:   name,
			Path:   filepath.Join(abs, name),
			Quant:  guessQuant(name),
			Family: guessFamily(name),
		})
	}
	return models, nil
}

// guessQuant extracts a quantization tag such as "Q4_K_M" or "f16" from
// a gguf filename.
func guessQuant(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	stem = strings.NewReplacer(".", "_", "-", " ").Replace(stem)
	return quantRe.FindString(stem)
}

// guessFamily takes the leading alphabetic run of the filename, e.g.
// "llama-3.1-8b-q4_k_m.gguf" -> "llama".
func guessFamily(name string) string {
	for i, r := range name {
		alpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !alpha {
			return strings.ToLower(name[:i])
		}
	}
	return strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
}
