package ai

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Persona captures the voice the generator writes in: free-form style rules
// injected into every composition prompt, plus a hard avoid-word list.
type Persona struct {
	Name       string   `yaml:"name"`
	Platform   string   `yaml:"platform"`
	Style      []string `yaml:"style"`
	AvoidWords []string `yaml:"avoidWords"`
}

// DefaultPersona is the built-in voice used when no persona file is
// configured: a regular channel member, brief and casual.
func DefaultPersona() *Persona {
	return &Persona{
		Name:     "regular user",
		Platform: "Discord",
		Style: []string{
			"keep it brief, it should feel like a real chat message",
			"casual and friendly tone, never robotic or overly formal",
			"don't use emojis or overly casual language unless it fits the context",
			"don't use capital case",
		},
		AvoidWords: []string{
			"Gm", "Gn", "Hello", "Hi", "Role", "Good",
			"Bitch", "Jack of", "Hentai", "Kill yourself", "Bondage", "Shitty",
		},
	}
}

// LoadPersona reads a persona YAML file. Missing fields fall back to the
// built-in defaults so a partial file only overrides what it names.
func LoadPersona(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read persona file %s: %w", path, err)
	}

	p := DefaultPersona()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("cannot parse persona file %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = "regular user"
	}
	return p, nil
}
