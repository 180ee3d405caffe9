package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/caarlos0/env/v9"
)

const EnvPrefix = "DAVC_"

type Config struct {
	Server             string `json:"server" env:"SERVER"`
	BasePath           string `json:"base_path" env:"BASE_PATH"`
	Port               int    `json:"port" env:"PORT"`
	User               string `json:"user" env:"USER"`
	Password           string `json:"password" env:"PASSWORD"`
	Proxy              string `json:"proxy" env:"PROXY"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify" env:"INSECURE_SKIP_VERIFY"`
	Timeout            int64  `json:"timeout" env:"TIMEOUT"`
	UploadTimeout      int64  `json:"upload_timeout" env:"UPLOAD_TIMEOUT"`
	Thread             int    `json:"thread" env:"THREAD"`
	Retry              int    `json:"retry" env:"RETRY"`
	LogLevel           string `json:"log_level" env:"LOG_LEVEL"`
}

func Default() *Config {
	return &Config{
		BasePath:      "/",
		Timeout:       60,
		UploadTimeout: 3600,
		Thread:        4,
		Retry:         3,
		LogLevel:      "info",
	}
}

// Parse reads a JSON config file on top of the defaults.
func Parse(f string) (*Config, error) {
	raw, err := os.ReadFile(f)
	if err != nil {
		return nil, fmt.Errorf("read file:%w", err)
	}
	c := Default()
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("unmarshal file:%w", err)
	}
	return c, nil
}

// ApplyEnv overrides c with the DAVC_* environment variables that are set.
func ApplyEnv(c *Config) error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env:%w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("no server configured")
	}
	if c.Thread <= 0 {
		c.Thread = 1
	}
	if c.Retry <= 0 {
		c.Retry = 1
	}
	return nil
}
