package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration, read from the environment
// once at startup and passed by reference to the components that need
// it. There are no config files and no ambient globals.
type Config struct {
	// Backend wrapping API.
	VaultAddr  string        `env:"VAULT_ADDR,required,notEmpty"`
	VaultToken string        `env:"VAULT_TOKEN,required,notEmpty"`
	Timeout    time.Duration `env:"BACKEND_TIMEOUT" envDefault:"15s"`

	// HTTP listener.
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	TLSCertFile string `env:"TLS_CERT_FILE"`
	TLSKeyFile  string `env:"TLS_KEY_FILE"`

	// Upload ceiling for file secrets, in bytes.
	MaxFileBytes int64 `env:"MAX_FILE_BYTES" envDefault:"786432"`

	// Logging.
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}
