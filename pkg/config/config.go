package config

import "github.com/scrywarden/scrywarden/pkg/logging"

// Config is the parsed, defaulted, and validated scrywarden.yml. It is the
// primary object returned by Initialize and used to wire up the collect
// and investigate commands.
type Config struct {
	configDir string

	Database   DatabaseYAMLConfig
	Logging    logging.Config
	Pipeline   PipelineConfig
	Transports map[string]TransportConfig
	Profiles   map[string]ProfileConfig
	Shippers   map[string]ShipperConfig
}

// Initialize is defined in loader.go

// ConfigDir returns the directory the config file was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}
