package config

import (
	"fmt"
	"os"
	"strings"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

const envPrefix = "SPRINTCTL_"

// LoadGuardrails loads guardrails from a YAML file, then overrides with
// environment variables.
//
// Precedence (highest to lowest):
//  1. SPRINTCTL_* environment variables (SPRINTCTL_LOCK_TIMEOUT, ...)
//  2. The YAML file
//  3. Defaults
//
// A missing file is not an error; defaults plus environment apply.
func LoadGuardrails(path string) (*Guardrails, error) {
	k := koanf.New(".")

	if data, err := os.ReadFile(path); err == nil {
		if err := k.Load(rawbytes.Provider(data), kyaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse guardrails file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read guardrails file: %w", err)
	}

	// SPRINTCTL_LOCK_TIMEOUT -> lock_timeout
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment overrides: %w", err)
	}

	cfg := DefaultGuardrails()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal guardrails: %w", err)
	}
	return cfg, nil
}

// guardrailsFile is the on-disk shape; durations are written as "5s" style
// strings so the file stays hand-editable.
type guardrailsFile struct {
	ForbiddenPatterns     []string `yaml:"forbidden_patterns"`
	DefaultMaxFileChanges int      `yaml:"default_max_file_changes"`
	BackupsToKeep         int      `yaml:"backups_to_keep"`
	LockTimeout           string   `yaml:"lock_timeout"`
	LockStaleAfter        string   `yaml:"lock_stale_after"`
}

// SaveGuardrails writes guardrails to a YAML file
func SaveGuardrails(cfg *Guardrails, path string) error {
	data, err := yaml.Marshal(guardrailsFile{
		ForbiddenPatterns:     cfg.ForbiddenPatterns,
		DefaultMaxFileChanges: cfg.DefaultMaxFileChanges,
		BackupsToKeep:         cfg.BackupsToKeep,
		LockTimeout:           cfg.LockTimeout.String(),
		LockStaleAfter:        cfg.LockStaleAfter.String(),
	})
	if err != nil {
		return fmt.Errorf("marshal guardrails: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write guardrails file: %w", err)
	}

	return nil
}

// LoadStack reads the approved technology registry from a YAML file.
// A missing file yields an empty registry: nothing is approved.
func LoadStack(path string) (Stack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Stack{}, nil
		}
		return nil, fmt.Errorf("read approved stack file: %w", err)
	}

	var stack Stack
	if err := yaml.Unmarshal(data, &stack); err != nil {
		return nil, fmt.Errorf("unmarshal approved stack: %w", err)
	}
	if stack == nil {
		stack = Stack{}
	}

	return stack, nil
}

// SaveStack writes the approved technology registry to a YAML file
func SaveStack(stack Stack, path string) error {
	data, err := yaml.Marshal(stack)
	if err != nil {
		return fmt.Errorf("marshal approved stack: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write approved stack file: %w", err)
	}

	return nil
}
