// CUE schema validation code
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var defaultSchema []byte

// DefaultSchema returns the embedded CUE schema.
func DefaultSchema() []byte {
	return append([]byte(nil), defaultSchema...)
}

// Validate checks YAML config bytes against a CUE schema. filename is only
// used in error positions.
func Validate(filename string, configYAML, schemaCUE []byte) error {
	ctx := cuecontext.New()

	schemaVal := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := schemaVal.Err(); err != nil {
		return fmt.Errorf("invalid CUE schema: %w", err)
	}

	file, err := yaml.Extract(filename, configYAML)
	if err != nil {
		return fmt.Errorf("cannot parse YAML config: %w", err)
	}
	configVal := ctx.BuildFile(file)
	if err := configVal.Err(); err != nil {
		return fmt.Errorf("cannot build YAML config: %w", err)
	}

	final := schemaVal.Unify(configVal)
	if err := final.Err(); err != nil {
		return fmt.Errorf("schema unify failed: %w", err)
	}
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// ValidateFile validates the YAML config at configFile against the embedded schema.
func ValidateFile(configFile string) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("cannot read YAML config: %w", err)
	}
	return Validate(configFile, data, defaultSchema)
}
