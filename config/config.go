// Package config loads the service configuration from a YAML or JSON
// file with optional CAD_ environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/openrp/cad/core/dispatch"
	"github.com/openrp/cad/core/metrics"
	"github.com/openrp/cad/infra/mqtt"
)

type Config struct {
	API      APIConfig       `json:"api"`
	Bridge   BridgeConfig    `json:"bridge"`
	Dispatch dispatch.Config `json:"dispatch"`
	Metrics  metrics.Config  `json:"metrics"`
	History  HistoryConfig   `json:"history"`
	Sentry   SentryConfig    `json:"sentry"`
}

// BridgeConfig wraps the MQTT game-server bridge settings. Disabled
// deployments run API-only, with reports arriving over HTTP.
type BridgeConfig struct {
	Enabled bool `json:"enabled"`

	mqtt.Config `json:",squash"`
}

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
	// Optional environment overrides
	if err := k.Load(env.Provider("CAD_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "cad_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.API.SetDefaults()
	cfg.Dispatch.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.History.SetDefaults()
	if err := cfg.API.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.History.Validate(); err != nil {
		return nil, err
	}
	if cfg.Bridge.Enabled && cfg.Bridge.Broker == "" {
		return nil, fmt.Errorf("bridge enabled without broker address")
	}
	return &cfg, nil
}
