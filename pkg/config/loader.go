package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/scrywarden/scrywarden/pkg/logging"
)

// fileName is the default config file name, matching the CLI's
// "--config <path>" default of "scrywarden.yml".
const fileName = "scrywarden.yml"

// yamlConfig mirrors the top-level keys of scrywarden.yml.
type yamlConfig struct {
	Database   DatabaseYAMLConfig         `yaml:"database"`
	Logging    logging.Config             `yaml:"logging"`
	Pipeline   PipelineConfig             `yaml:"pipeline"`
	Transports map[string]TransportConfig `yaml:"transports"`
	Profiles   map[string]ProfileConfig   `yaml:"profiles"`
	Shippers   map[string]ShipperConfig   `yaml:"shippers"`
}

// defaultPipelineConfig matches the upstream Pipeline constructor's
// queue_size=500, timeout=10.0 defaults.
func defaultPipelineConfig() PipelineConfig {
	return PipelineConfig{QueueSize: 500, Timeout: 10 * time.Second}
}

// Initialize loads, defaults, and validates the config file at
// <configPath>, the path to either a config file or a directory
// containing scrywarden.yml.
func Initialize(ctx context.Context, configPath string) (*Config, error) {
	log := slog.With("config_path", configPath)
	log.InfoContext(ctx, "loading configuration")

	cfg, err := load(configPath)
	if err != nil {
		return nil, err
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	log.InfoContext(ctx, "configuration loaded",
		"transports", len(cfg.Transports),
		"profiles", len(cfg.Profiles),
		"shippers", len(cfg.Shippers))
	return cfg, nil
}

func load(configPath string) (*Config, error) {
	path := configPath
	if info, err := os.Stat(configPath); err == nil && info.IsDir() {
		path = filepath.Join(configPath, fileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(path, ErrConfigNotFound)
		}
		return nil, NewLoadError(path, err)
	}
	data = ExpandEnv(data)

	var parsed yamlConfig
	parsed.Pipeline = defaultPipelineConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	// Re-merge defaults on top of a config block that set some but not
	// all pipeline fields, so an unset queue_size or timeout still gets
	// its default rather than the YAML zero value.
	defaults := defaultPipelineConfig()
	if err := mergo.Merge(&parsed.Pipeline, defaults); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("failed to apply pipeline defaults: %w", err))
	}
	if parsed.Database.SSLMode == "" {
		parsed.Database.SSLMode = "disable"
	}

	configDir := filepath.Dir(path)
	return &Config{
		configDir:  configDir,
		Database:   parsed.Database,
		Logging:    parsed.Logging,
		Pipeline:   parsed.Pipeline,
		Transports: parsed.Transports,
		Profiles:   parsed.Profiles,
		Shippers:   parsed.Shippers,
	}, nil
}
