// Package trigger implements cron scheduling and webhook ingestion:
// alternative front doors that feed the same pipeline entry point as
// the CLI and the HTTP API.
package trigger

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/HarinGuptha/FlowBit-Harin/internal/classify"
	"github.com/HarinGuptha/FlowBit-Harin/internal/session"
)

// Processor is the pipeline entry point consumed by triggers.
type Processor interface {
	Process(ctx context.Context, content []byte, hint classify.FormatType) (*session.ProcessingSession, error)
}

// WebhookTrigger is one named webhook endpoint. The content template is
// rendered with the posted JSON payload bound to .payload.
type WebhookTrigger struct {
	Name            string `yaml:"name"`
	ContentTemplate string `yaml:"content_template"`
	Hint            string `yaml:"hint,omitempty"`
}

// ScheduleTrigger is one cron entry feeding fixed content through the
// pipeline. Cron expressions use the standard 5-field format.
type ScheduleTrigger struct {
	Cron        string `yaml:"cron"`
	Description string `yaml:"description,omitempty"`
	Content     string `yaml:"content"`
	Hint        string `yaml:"hint,omitempty"`
}

// Config is the operator trigger configuration file.
type Config struct {
	Webhooks  []WebhookTrigger  `yaml:"webhooks"`
	Schedules []ScheduleTrigger `yaml:"schedules"`
}

// LoadConfig reads a trigger configuration YAML. A missing file means no
// triggers, not an error.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading trigger config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing trigger config: %w", err)
	}
	return &cfg, nil
}
