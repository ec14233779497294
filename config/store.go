package config

import (
	"fmt"

	"github.com/resqmeals/gateway/auth"
	"github.com/resqmeals/gateway/core/store"
)

// Store backends.
const (
	StoreCloudant = "cloudant"
	StoreMemory   = "memory"
)

// StoreConfig selects the document store. BaseURL is the Cloudant account
// URL; SeedFile optionally preloads the memory backend.
type StoreConfig struct {
	Backend        string            `json:"backend"`
	BaseURL        string            `json:"base_url"`
	Auth           auth.Conf         `json:"auth"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	SeedFile       string            `json:"seed_file"`
	Collections    store.Collections `json:"collections"`
}

// SetDefaults applies sane defaults.
func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = StoreCloudant
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = auth.ModeIAM
	}
	c.Collections.SetDefaults()
}

// Validate checks the backend name. An empty base URL is reported by the
// store on first use.
func (c StoreConfig) Validate() error {
	if c.Backend != StoreCloudant && c.Backend != StoreMemory {
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	return nil
}
