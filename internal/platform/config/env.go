// Package config loads service configuration from the process environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv fills target's `env`-tagged fields from the environment.
//
// Every variable this project reads carries the CODETRAIL_ prefix, declared
// on each command's config struct; command-line flags layer on top of the
// parsed values afterwards.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
