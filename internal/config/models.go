package config

import "fmt"

// ModelsConfig is the model registry: logical model names bound to providers.
type ModelsConfig struct {
	Models   []ModelEntry `yaml:"models" json:"models"`
	Fallback string       `yaml:"fallback" json:"fallback"`
}

type ModelEntry struct {
	Name         string   `yaml:"name" json:"name"`
	Provider     string   `yaml:"provider" json:"provider"`
	Capabilities []string `yaml:"capabilities" json:"capabilities,omitempty"`
	Priority     int      `yaml:"priority" json:"priority"`
	Description  string   `yaml:"description" json:"description,omitempty"`
}

// Bindings returns the model name to provider name mapping.
func (m *ModelsConfig) Bindings() (map[string]string, error) {
	out := make(map[string]string, len(m.Models))
	for _, e := range m.Models {
		if e.Name == "" {
			return nil, fmt.Errorf("model entry without name (provider %q)", e.Provider)
		}
		if e.Provider == "" {
			return nil, fmt.Errorf("model %q has no provider", e.Name)
		}
		if _, dup := out[e.Name]; dup {
			return nil, fmt.Errorf("model %q declared twice", e.Name)
		}
		out[e.Name] = e.Provider
	}
	return out, nil
}
