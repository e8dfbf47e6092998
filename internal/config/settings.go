// Package config persists YubiAge settings as TOML.
package config

import (
	"fmt"
	"strings"

	"YubiAge/internal/batch"
)

// keySeparator joins remembered key paths in a single TOML string, matching
// the layout earlier releases wrote.
const keySeparator = ";"

// Settings is the on-disk configuration.
type Settings struct {
	Keys   Keys   `toml:"keys"`
	Tool   Tool   `toml:"tool"`
	Policy Policy `toml:"policy"`
}

// Keys holds remembered recipient key files. Identities are never stored.
type Keys struct {
	Remember bool   `toml:"remember"`
	Paths    string `toml:"paths"`
}

// Tool locates the age binary.
type Tool struct {
	Path string `toml:"path"`
}

// Policy mirrors batch.Policy and batch.Config in TOML form.
type Policy struct {
	SingleDecrypt   bool   `toml:"single_decrypt"`
	AvoidCollisions bool   `toml:"avoid_collisions"`
	Directories     string `toml:"directories"`
	StrictKeys      bool   `toml:"strict_keys"`
}

// Defaults returns the settings used when no file exists.
func Defaults() *Settings {
	return &Settings{
		Tool: Tool{Path: "age"},
		Policy: Policy{
			SingleDecrypt:   true,
			AvoidCollisions: true,
			Directories:     batch.DirectoriesArchive.String(),
		},
	}
}

// KeyPaths returns the remembered recipient key files, or nil when
// remembering is off.
func (s *Settings) KeyPaths() []string {
	if !s.Keys.Remember {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s.Keys.Paths, keySeparator) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// RememberKeys stores paths and turns remembering on. An empty list turns it
// off.
func (s *Settings) RememberKeys(paths []string) {
	s.Keys.Remember = len(paths) > 0
	s.Keys.Paths = strings.Join(paths, keySeparator)
}

// ForgetKeys clears remembered keys.
func (s *Settings) ForgetKeys() {
	s.Keys = Keys{}
}

// BatchPolicy converts the policy section for batch.Classify.
func (s *Settings) BatchPolicy() (batch.Policy, error) {
	dirs, err := batch.ParseDirectoryPolicy(s.Policy.Directories)
	if err != nil {
		return batch.Policy{}, fmt.Errorf("policy.directories: %w", err)
	}
	return batch.Policy{SingleDecrypt: s.Policy.SingleDecrypt, Directories: dirs}, nil
}

// BatchConfig converts the policy section for batch.NewOrchestrator.
func (s *Settings) BatchConfig() batch.Config {
	return batch.Config{
		AvoidCollisions: s.Policy.AvoidCollisions,
		StrictKeys:      s.Policy.StrictKeys,
	}
}

// Validate reports settings that cannot be used.
func (s *Settings) Validate() error {
	if _, err := s.BatchPolicy(); err != nil {
		return err
	}
	if strings.TrimSpace(s.Tool.Path) == "" {
		return fmt.Errorf("tool.path must not be empty")
	}
	return nil
}
