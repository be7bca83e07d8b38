package metrics

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseFixture decodes a snapshot document. JSON fixtures are accepted since
// JSON is valid YAML. Records are not validated.
func ParseFixture(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode fixture: %w", err)
	}
	return snap, nil
}

// LoadFixture reads and decodes the snapshot document at path.
func LoadFixture(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}
