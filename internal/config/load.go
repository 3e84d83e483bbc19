package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, and validates the runtime configuration.
// Missing file is not an error; defaults apply with a warning.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	content, err := os.ReadFile(resolvedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			base := Default()
			warnings, verr := Validate(&base)
			if verr != nil {
				return Loaded{}, verr
			}
			warnings = append([]Warning{{
				Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
			}}, warnings...)
			return Loaded{
				Path:     resolvedPath,
				Config:   base,
				Warnings: warnings,
				Exists:   false,
			}, nil
		}
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	}

	cfg, warnings, err := Parse(content)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: warnings,
		Exists:   true,
	}, nil
}

// Parse unmarshals YAML content over the defaults and validates the result.
func Parse(content []byte) (Config, []Warning, error) {
	cfg := Default()
	if err := yaml.UnmarshalWithOptions(content, &cfg, yaml.Strict()); err != nil {
		return Config{}, nil, err
	}
	warnings, err := Validate(&cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}
