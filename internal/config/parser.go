package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads, expands, and validates the agent configuration file at path.
// Environment variables referenced as ${VAR} are substituted before YAML
// parsing, the same convention the teacher's benchmark config used.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadDotenv overlays local-development overrides for the controller
// address/port and log level from a .env file, without requiring the
// caller to edit the checked-in YAML config. Missing files are not an
// error: godotenv.Load already treats that as a no-op in the teacher's
// cmd/main.go usage.
func LoadDotenv(cfg *Config, envPath string) error {
	if err := godotenv.Load(envPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load %s: %w", envPath, err)
	}
	if v := os.Getenv("ENB_CONTROLLER_ADDR"); v != "" {
		cfg.Controller.Addr = v
	}
	if v := os.Getenv("ENB_CONTROLLER_PORT"); v != "" {
		p, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("ENB_CONTROLLER_PORT %q: %w", v, err)
		}
		cfg.Controller.Port = uint16(p)
	}
	if v := os.Getenv("ENB_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := match[2 : len(match)-1]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return match
	})
}

// Validate enforces the invalid-argument boundary checks from spec.md §7:
// reject at the boundary, never mutate or start with partial state.
func (c *Config) Validate() error {
	if c.Enb.ID == 0 {
		return fmt.Errorf("enb.id must be > 0")
	}
	if c.Controller.Addr == "" {
		return fmt.Errorf("controller.addr is required")
	}
	if c.Controller.Port == 0 {
		return fmt.Errorf("controller.port is required")
	}
	if _, _, ok := RBGParams(c.Cell.NPRB); !ok {
		return fmt.Errorf("cell.n_prb %d does not resolve to a known cell width", c.Cell.NPRB)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}
