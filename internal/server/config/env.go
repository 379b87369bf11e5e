package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// parseEnv overlays fields tagged with `env:"..."` from the environment.
// Unset variables leave the current value untouched. Malformed values panic,
// like a malformed JSON file does.
func parseEnv(config *Config) {
	if err := env.Parse(config); err != nil {
		panic(fmt.Errorf("parse env: %w", err))
	}
}
