package metrics

import (
	"fmt"
	"regexp"

	"github.com/resqmeals/gateway/core/factory"
)

var labelName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Label names used by the sinks themselves. Shared labels may not shadow them.
var reservedLabels = map[string]bool{
	"stage":            true,
	"outcome":          true,
	"channel":          true,
	"failed_stage":     true,
	"ranking_fallback": true,
	"dispatch_id":      true,
	"driver_id":        true,
	"restaurant_id":    true,
	"component":        true,
}

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// Labels are attached to every series or point, e.g. the deployment
	// site. A sink's own "labels" entry wins on conflict.
	Labels map[string]string `json:"labels"`
	// Stages limits stage events to the named pipeline stages. Empty
	// records every stage.
	Stages []string `json:"stages"`
}

// Validate checks sink types and label names.
func (c Config) Validate() error {
	for i, s := range c.Sinks {
		if s.Type == "" {
			return fmt.Errorf("sink %d: type is required", i)
		}
	}
	for name := range c.Labels {
		if !labelName.MatchString(name) {
			return fmt.Errorf("invalid label name %q", name)
		}
		if reservedLabels[name] {
			return fmt.Errorf("label %q is reserved", name)
		}
	}
	for _, st := range c.Stages {
		if st == "" {
			return fmt.Errorf("empty stage name")
		}
	}
	return nil
}
