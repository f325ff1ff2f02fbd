package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML (.yaml, .yml) or JSON-with-comments (.json, .jsonc)
// config file, applies LOGBUF_* overrides for keys the file leaves unset, and
// fills the remaining defaults.
func Load(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	doc := make(map[string]any)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Options{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
			return Options{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	default:
		return Options{}, fmt.Errorf("unsupported config format %q", ext)
	}

	opts, err := FromMap(doc)
	if err != nil {
		return Options{}, err
	}
	applyEnvOverrides(&opts, func(key string) bool {
		_, ok := doc[key]
		return ok
	})
	opts = opts.WithDefaults()
	return opts, opts.Validate()
}

// FromEnv builds options from LOGBUF_* variables and defaults only.
func FromEnv() (Options, error) {
	var opts Options
	applyEnvOverrides(&opts, func(string) bool { return false })
	opts = opts.WithDefaults()
	return opts, opts.Validate()
}
