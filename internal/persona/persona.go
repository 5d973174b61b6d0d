// Package persona loads and validates character persona profiles.
package persona

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/castmark/persona-engine/internal/model"
)

// Load reads a persona profile from a YAML file.
func Load(path string) (*model.Persona, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML persona profile.
func Parse(b []byte) (*model.Persona, error) {
	var p model.Persona
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse persona: %w", err)
	}
	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the required persona fields.
func Validate(p *model.Persona) error {
	if p.CharacterID == "" {
		return fmt.Errorf("persona: character_id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("persona %s: name is required", p.CharacterID)
	}
	for i, c := range p.HardConstraints {
		if c == "" {
			return fmt.Errorf("persona %s: hard_constraints[%d] is empty", p.CharacterID, i)
		}
	}
	return nil
}
