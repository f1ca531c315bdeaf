package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// IntentRules is the classifier rule set.
type IntentRules struct {
	DefaultIntent string     `yaml:"default_intent"`
	Intents       IntentList `yaml:"intents"`
}

type Intent struct {
	Name        string   `yaml:"-"`
	Keywords    []string `yaml:"keywords"`
	Models      []string `yaml:"models"`
	Description string   `yaml:"description"`
}

// IntentList keeps intents in file order. Scoring ties are broken by this
// order, so it must not come from map iteration.
type IntentList []Intent

func (l *IntentList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: intents must be a mapping", node.Line)
	}
	out := make(IntentList, 0, len(node.Content)/2)
	seen := make(map[string]bool, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		var it Intent
		if err := node.Content[i+1].Decode(&it); err != nil {
			return fmt.Errorf("intent %q: %w", key.Value, err)
		}
		if seen[key.Value] {
			return fmt.Errorf("line %d: intent %q declared twice", key.Line, key.Value)
		}
		seen[key.Value] = true
		it.Name = key.Value
		out = append(out, it)
	}
	*l = out
	return nil
}

// Lookup returns the intent with the given name.
func (r *IntentRules) Lookup(name string) (Intent, bool) {
	for _, it := range r.Intents {
		if it.Name == name {
			return it, true
		}
	}
	return Intent{}, false
}

// Validate checks that the default intent is declared.
func (r *IntentRules) Validate() error {
	if r.DefaultIntent == "" {
		return fmt.Errorf("default_intent is required")
	}
	if _, ok := r.Lookup(r.DefaultIntent); !ok {
		return fmt.Errorf("default_intent %q is not declared in intents", r.DefaultIntent)
	}
	return nil
}
