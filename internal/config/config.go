// Package config loads the guardrail configuration and the approved
// technology registry from the state directory.
//
// Guardrails are loaded from guardrails.yaml and can be overridden with
// SPRINTCTL_-prefixed environment variables (SPRINTCTL_LOCK_TIMEOUT,
// SPRINTCTL_BACKUPS_TO_KEEP, ...).
package config

import (
	"time"
)

// Guardrails holds the scope-enforcement and store limits for a sprint
type Guardrails struct {
	// ForbiddenPatterns are regular expressions matched against changed file
	// paths and declared technology versions. A match is a scope violation.
	ForbiddenPatterns []string `koanf:"forbidden_patterns" yaml:"forbidden_patterns"`

	// DefaultMaxFileChanges applies to tasks that declare no file budget
	DefaultMaxFileChanges int `koanf:"default_max_file_changes" yaml:"default_max_file_changes"`

	// BackupsToKeep bounds the snapshot rotation
	BackupsToKeep int `koanf:"backups_to_keep" yaml:"backups_to_keep"`

	// LockTimeout bounds lock acquisition before failing with contention
	LockTimeout time.Duration `koanf:"lock_timeout" yaml:"lock_timeout"`

	// LockStaleAfter is the age past which a leftover lock is broken
	LockStaleAfter time.Duration `koanf:"lock_stale_after" yaml:"lock_stale_after"`
}

// DefaultGuardrails returns guardrails with sensible defaults
func DefaultGuardrails() *Guardrails {
	return &Guardrails{
		ForbiddenPatterns: []string{
			`-alpha[.\d]*$`,
			`-beta[.\d]*$`,
			`-rc[.\d]*$`,
			`-SNAPSHOT$`,
		},
		DefaultMaxFileChanges: 10,
		BackupsToKeep:         10,
		LockTimeout:           5 * time.Second,
		LockStaleAfter:        10 * time.Minute,
	}
}

// Stack is the approved technology registry: name to the one approved
// version. Compliance is exact equality, no range matching.
type Stack map[string]string

// Approved reports whether the technology is registered with exactly the
// given version.
func (s Stack) Approved(name, version string) bool {
	approved, ok := s[name]
	return ok && approved == version
}

// Has reports whether the technology is registered at all
func (s Stack) Has(name string) bool {
	_, ok := s[name]
	return ok
}
