package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# tracelisten Configuration File
#
# Generated by config.InitConfig. Uncomment and edit values as needed;
# any field left unset falls back to its documented default.

logging:
  level: "INFO"       # DEBUG, INFO, WARN, ERROR
  format: "text"       # text, json
  output: "stdout"     # stdout, stderr, or a file path

telemetry:
  enabled: false
  endpoint: "localhost:4317"
  insecure: true
  sample_rate: 1.0

metrics:
  enabled: false
  port: 9090

server:
  host: ""
  port: 7685
  handshake_timeout: 10s
  meta_idle_timeout: 30s
  max_option_size: 4096
  cpu_max: 256

fanout:
  dial_timeout: 10s
  max_concurrent: 0

hooks:
  default_file: ""

shutdown_timeout: 30s
`

// InitConfig writes a starter configuration file to the default config
// location. Returns the path written to. Fails if the file already exists
// unless force is true.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a starter configuration file to the given path.
// Fails if the file already exists unless force is true.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(configTemplate), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
