package config

import (
	"fmt"

	"github.com/marmos91/tracelisten/internal/wire"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks a Config for structural and value errors using struct
// tags, plus a handful of cross-field rules validator can't express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}

	if cfg.Server.MaxOptionSize == 0 {
		return fmt.Errorf("server.max_option_size must be greater than zero")
	}

	if cfg.Server.CPUMax == 0 {
		return fmt.Errorf("server.cpu_max must be greater than zero")
	}
	if cfg.Server.CPUMax > wire.CPUMax {
		return fmt.Errorf("server.cpu_max %d exceeds the wire format's CPU_MAX %d", cfg.Server.CPUMax, wire.CPUMax)
	}

	return nil
}
