package topology

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
)

// Load reads a topology document, YAML or JSON, from path.
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology file %s failed, error: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a topology document and validates it.
func Parse(data []byte) (*Topology, error) {
	t := &Topology{}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("decode topology failed, error: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid topology, error: %w", err)
	}
	return t, nil
}
