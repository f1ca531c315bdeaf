package config

import "time"

type ProvidersConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig describes one logical backend replicated across Instances.
type ProviderConfig struct {
	Type          string            `yaml:"type"`
	Instances     []string          `yaml:"instances"`
	APIKey        string            `yaml:"api_key"`
	APIVersion    string            `yaml:"api_version,omitempty"`
	MaxConcurrent int               `yaml:"max_concurrent"`
	Timeout       time.Duration     `yaml:"timeout"`
	HealthTimeout time.Duration     `yaml:"health_timeout"`
	Headers       map[string]string `yaml:"headers,omitempty"`
}

// WithDefaults fills zero timeouts from the routing config.
func (p ProviderConfig) WithDefaults(r RoutingConfig) ProviderConfig {
	if p.Timeout <= 0 {
		p.Timeout = r.GenerateTimeout
	}
	if p.HealthTimeout <= 0 {
		p.HealthTimeout = r.HealthTimeout
	}
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = 16
	}
	return p
}
