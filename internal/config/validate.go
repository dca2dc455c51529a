package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	sigsyaml "sigs.k8s.io/yaml"
)

// validateYAML checks YAML content against a JSON schema. The YAML is
// converted to JSON first; jsonschema operates on decoded JSON values.
func validateYAML(yamlContent, schemaContent []byte, schemaName string) error {
	jsonContent, err := sigsyaml.YAMLToJSON(yamlContent)
	if err != nil {
		return fmt.Errorf("failed to convert YAML to JSON: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaName, bytes.NewReader(schemaContent)); err != nil {
		return fmt.Errorf("failed to load schema %s: %w", schemaName, err)
	}
	sch, err := compiler.Compile(schemaName)
	if err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", schemaName, err)
	}

	var doc interface{}
	if err := json.Unmarshal(jsonContent, &doc); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("validation against %s failed: %w", schemaName, err)
	}
	return nil
}
