package rules

import (
	"context"
	"fmt"
	"os"

	"automation-platform/internal/actions"

	"gopkg.in/yaml.v3"
)

const RuleFileSchemaV1 = "1.0"

// RuleFile is the top-level YAML seed document. Deployments check triggers
// into version control and load them at worker start.
type RuleFile struct {
	SchemaVersion string    `yaml:"schemaVersion"`
	Rules         []RuleDoc `yaml:"rules"`
}

// RuleDoc is one trigger definition in a seed file.
type RuleDoc struct {
	Name       string         `yaml:"name"`
	IsActive   *bool          `yaml:"isActive,omitempty"` // default true
	EventType  string         `yaml:"eventType"`
	EventScope string         `yaml:"eventScope,omitempty"`
	Conditions *ConditionNode `yaml:"conditions,omitempty"`
	Actions    []actions.Spec `yaml:"actions"`
	Settings   Settings       `yaml:"settings,omitempty"`
}

// LoadRuleFile reads and validates a YAML seed file.
func LoadRuleFile(path string) (RuleFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RuleFile{}, fmt.Errorf("rules: read seed file: %w", err)
	}
	return ParseRuleFile(raw)
}

// ParseRuleFile decodes a YAML seed document.
func ParseRuleFile(raw []byte) (RuleFile, error) {
	var file RuleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return RuleFile{}, fmt.Errorf("rules: parse seed file: %w", err)
	}
	if file.SchemaVersion != RuleFileSchemaV1 {
		return RuleFile{}, fmt.Errorf("rules: unsupported schema version %q", file.SchemaVersion)
	}
	for i, doc := range file.Rules {
		if err := doc.toRule().Validate(); err != nil {
			return RuleFile{}, fmt.Errorf("rules: seed rule %d (%s): %w", i, doc.Name, err)
		}
	}
	return file, nil
}

// Seed upserts every rule in the file, keyed by name. Inactive rules are
// stored too; the matcher skips them at evaluation time.
func Seed(ctx context.Context, repo Repository, file RuleFile) (int, error) {
	count := 0
	for _, doc := range file.Rules {
		if _, err := repo.Upsert(ctx, doc.toRule()); err != nil {
			return count, fmt.Errorf("rules: seed %q: %w", doc.Name, err)
		}
		count++
	}
	return count, nil
}

func (d RuleDoc) toRule() Rule {
	active := true
	if d.IsActive != nil {
		active = *d.IsActive
	}
	return Rule{
		Name:       d.Name,
		IsActive:   active,
		EventType:  d.EventType,
		EventScope: d.EventScope,
		Conditions: d.Conditions,
		Actions:    d.Actions,
		Settings:   d.Settings,
	}
}
