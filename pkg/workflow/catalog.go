package workflow

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFallbackTarget is tried when a step's specific target does not exist
// on the backend.
const DefaultFallbackTarget = "test-hello-world"

// Catalog maps step actions to backend target names. Without an explicit
// mapping an action resolves to a conventional "test-" prefixed name.
type Catalog struct {
	targets  map[string]string
	fallback string
}

type catalogFile struct {
	FallbackTarget string            `yaml:"fallback_target"`
	Targets        map[string]string `yaml:"targets"`
}

// NewCatalog returns a catalog with no explicit mappings.
func NewCatalog() *Catalog {
	return &Catalog{targets: map[string]string{}, fallback: DefaultFallbackTarget}
}

// LoadCatalog reads action-to-target overrides from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := NewCatalog()
	if strings.TrimSpace(f.FallbackTarget) != "" {
		c.fallback = f.FallbackTarget
	}
	for action, target := range f.Targets {
		c.targets[action] = target
	}
	return c, nil
}

// TargetFor returns the target name to try first for an action.
func (c *Catalog) TargetFor(action string) string {
	if t, ok := c.targets[action]; ok {
		return t
	}
	return "test-" + action
}

// Fallback returns the generic target tried when the specific one is absent.
func (c *Catalog) Fallback() string {
	return c.fallback
}
