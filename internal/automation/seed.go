package automation

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type seedFile struct {
	Rules []RuleInput `yaml:"rules"`
}

// DefaultRules returns the rules every new organization starts with.
func DefaultRules() ([]RuleInput, error) {
	return ParseRules(defaultsYAML)
}

// ParseRules decodes a YAML rule list.
func ParseRules(data []byte) ([]RuleInput, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	return f.Rules, nil
}
