package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// PipelineConfig holds the "pipeline" YAML block: the collect command's
// batch-accumulation knobs.
type PipelineConfig struct {
	QueueSize int           `yaml:"queue_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// ComponentConfig is the common "class: dotted.path, config: {...}" shape
// every pluggable piece of the pipeline (transports, collectors,
// analyzers, shippers) is declared with. Config is kept as a raw
// yaml.Node since the schema of the nested options is owned by whichever
// constructor Class resolves to, not by this package - wiring decodes it
// once Class has been validated against a known registry.
type ComponentConfig struct {
	Class  string    `yaml:"class"`
	Config yaml.Node `yaml:"config"`
}

// TransportConfig is one entry of the "transports" map.
type TransportConfig struct {
	ComponentConfig `yaml:",inline"`
}

// ProfileConfig is one entry of the "profiles" map: the profile's own
// class/config, plus the collector and analyzer it investigates with.
type ProfileConfig struct {
	ComponentConfig `yaml:",inline"`
	Collector       ComponentConfig `yaml:"collector"`
	Analyzer        ComponentConfig `yaml:"analyzer"`
}

// ShipperConfig is one entry of the "shippers" map. Limit caps the
// shipper's inbound queue depth; zero uses the curator's default.
type ShipperConfig struct {
	ComponentConfig `yaml:",inline"`
	Limit           int `yaml:"limit"`
}

// DatabaseYAMLConfig is the "database" YAML block.
type DatabaseYAMLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}
