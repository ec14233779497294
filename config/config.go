// Package config loads the gateway configuration from an optional file,
// a .env file and RESQ_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/resqmeals/gateway/core/auditlog"
	"github.com/resqmeals/gateway/core/dispatch"
	"github.com/resqmeals/gateway/core/factory"
	"github.com/resqmeals/gateway/core/metrics"
	"github.com/resqmeals/gateway/infra/llm"
	"github.com/resqmeals/gateway/infra/monitoring"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: RESQ_LLM__API_KEY sets llm.api_key.
const EnvPrefix = "RESQ_"

type Config struct {
	Server   ServerConfig      `json:"server"`
	LLM      llm.Config        `json:"llm"`
	Store    StoreConfig       `json:"store"`
	Dispatch dispatch.Config   `json:"dispatch"`
	AuditLog auditlog.Config   `json:"audit_log"`
	Metrics  metrics.Config    `json:"metrics"`
	Notify   NotifyConfig      `json:"notify"`
	Sentry   monitoring.Config `json:"sentry"`
	Logging  LoggingConfig     `json:"logging"`
}

// NotifyConfig lists the driver notification channels.
type NotifyConfig struct {
	Channels []factory.ModuleConfig `json:"channels"`
}

// Load reads path (YAML or JSON, optional when empty), then .env, then the
// environment. Missing credentials are not load errors.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		cfg.Server.Port = p
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills unset values in every section.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.LLM.SetDefaults()
	c.Store.SetDefaults()
	c.Dispatch.SetDefaults()
	c.AuditLog.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := validateAuditLog(c.AuditLog); err != nil {
		return fmt.Errorf("audit_log: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}

func validateAuditLog(c auditlog.Config) error {
	switch c.Backend {
	case auditlog.BackendNone, auditlog.BackendJSONL, auditlog.BackendRotating, auditlog.BackendSQLite:
	default:
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	if c.Backend != auditlog.BackendNone && c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}
