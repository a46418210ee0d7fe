package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/rlust/rvcctl/core/confirm"
	"github.com/rlust/rvcctl/core/metrics"
	"github.com/rlust/rvcctl/infra/mqtt"
)

// Config is the root configuration document.
type Config struct {
	MQTT    mqtt.Config    `json:"mqtt"`
	Confirm ConfirmConfig  `json:"confirm"`
	Metrics metrics.Config `json:"metrics"`
}

// ConfirmConfig carries the confirmation engine tuning in plain units so it
// reads naturally in YAML.
type ConfirmConfig struct {
	MaxRetries           int      `json:"max_retries"`
	RetryDelaySeconds    float64  `json:"retry_delay_seconds"`
	ConfirmWindowSeconds float64  `json:"confirm_window_seconds"`
	BurstSeconds         float64  `json:"burst_seconds"`
	BurstIntervalMS      int      `json:"burst_interval_ms"`
	NudgeEnabled         bool     `json:"nudge_enabled"`
	ProbeOnFail          bool     `json:"probe_on_fail"`
	ProbeSeconds         int      `json:"probe_seconds"`
	ProbeOutPath         string   `json:"probe_out_path"`
	ProbeTopics          []string `json:"probe_topics"`
}

// Params converts the config section into engine parameters; zero values
// fall through to the engine defaults.
func (c ConfirmConfig) Params() confirm.Params {
	return confirm.Params{
		MaxRetries:    c.MaxRetries,
		RetryDelay:    secs(c.RetryDelaySeconds),
		ConfirmWindow: secs(c.ConfirmWindowSeconds),
		BurstDuration: secs(c.BurstSeconds),
		BurstInterval: time.Duration(c.BurstIntervalMS) * time.Millisecond,
		NudgeEnabled:  c.NudgeEnabled,
		ProbeOnFail:   c.ProbeOnFail,
		ProbeWindow:   time.Duration(c.ProbeSeconds) * time.Second,
		ProbeOutPath:  c.ProbeOutPath,
		ProbeTopics:   c.ProbeTopics,
	}
}

func secs(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// Load reads the configuration file and applies K_-prefixed environment
// overrides (K_MQTT__BROKER maps to mqtt.broker).
func Load(path string) (*Config, error) {
	k := koanf.New(".")
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
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.MQTT.SetDefaults()
	cfg.Metrics.SetDefaults()
	if err := cfg.MQTT.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
