// Package config loads service configuration from the environment and
// provides the shared fatal-exit helper for command-line tools. Kingshot
// Atlas services declare their settings as structs tagged with
// KINGSHOT_ATLAS-prefixed variable names.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv fills target from environment variables declared in its env tags.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
