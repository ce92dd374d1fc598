// Package config loads and validates the broker's externally supplied
// settings: the upstream provider, token lifetimes, signing material, the
// transaction store and the client registry seed.
package config

import (
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config interface {
	EnvConfig
	UpstreamConfig
	TokenConfig
	CorsConfig
}

// Load reads .env (when present) and the process environment, then validates
// the result. A broker with an incomplete upstream configuration must not
// start.
func Load() (Config, error) {
	_ = godotenv.Load()

	env := newEnvVars()
	if err := validator.New().Struct(env); err != nil {
		return nil, errors.Wrap(err, "[config.Load] validation")
	}

	return mainConfig{EnvVars: env}, nil
}

type mainConfig struct {
	EnvVars
	Cors
}
