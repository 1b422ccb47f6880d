package driftline

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseScenarios decodes a list of scenario records (JSON or YAML).
func ParseScenarios(data []byte, source string) ([]Scenario, error) {
	var list []Scenario
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, &ConfigurationError{Record: source, Reason: "decode: " + err.Error()}
	}
	seen := make(map[string]bool, len(list))
	for i := range list {
		sc := &list[i]
		sc.Name = strings.TrimSpace(sc.Name)
		if sc.Name == "" {
			return nil, &ConfigurationError{Record: fmt.Sprintf("%s[%d]", source, i), Field: "scenario", Reason: "required"}
		}
		if seen[sc.Name] {
			return nil, &ConfigurationError{Record: source, Field: "scenario", Reason: fmt.Sprintf("duplicate name %q", sc.Name)}
		}
		seen[sc.Name] = true
	}
	return list, nil
}

// LoadScenarios reads a scenario file. A missing file yields no scenarios.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read scenarios %s: %w", path, err)
	}
	return ParseScenarios(data, path)
}

// FindScenario returns the scenario with the given name (case-insensitive).
func FindScenario(list []Scenario, name string) (Scenario, error) {
	for _, sc := range list {
		if strings.EqualFold(sc.Name, name) {
			return sc, nil
		}
	}
	return Scenario{}, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
}

// ScenarioNames returns scenario names in file order.
func ScenarioNames(list []Scenario) []string {
	names := make([]string, len(list))
	for i, sc := range list {
		names[i] = sc.Name
	}
	return names
}
