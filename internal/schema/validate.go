// Package schema provides JSON schema validation for group metadata files.
// Metadata is authored in YAML; documents are converted to their JSON form
// before validation.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	schemafs "github.com/AndreyAkinshin/fleetbuild/schema"
)

const (
	groupSchemaName  = "group.schema.json"
	targetSchemaName = "target.schema.json"
)

var (
	groupSchema  *jsonschema.Schema
	targetSchema *jsonschema.Schema
	compileOnce  sync.Once
	compileErr   error
)

// compileSchemas compiles all embedded schemas once.
func compileSchemas() error {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()

		for _, name := range []string{groupSchemaName, targetSchemaName} {
			data, err := schemafs.FS.ReadFile(name)
			if err != nil {
				compileErr = fmt.Errorf("read %s: %w", name, err)
				return
			}
			doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
			if err != nil {
				compileErr = fmt.Errorf("unmarshal %s: %w", name, err)
				return
			}
			if err := compiler.AddResource(name, doc); err != nil {
				compileErr = fmt.Errorf("add %s resource: %w", name, err)
				return
			}
		}

		var err error
		groupSchema, err = compiler.Compile(groupSchemaName)
		if err != nil {
			compileErr = fmt.Errorf("compile group schema: %w", err)
			return
		}
		targetSchema, err = compiler.Compile(targetSchemaName)
		if err != nil {
			compileErr = fmt.Errorf("compile target schema: %w", err)
			return
		}
	})

	return compileErr
}

// ValidateGroup validates YAML data against the group.yml schema.
func ValidateGroup(data []byte) error {
	if err := compileSchemas(); err != nil {
		return err
	}
	v, err := toJSONValue(data)
	if err != nil {
		return err
	}
	if err := groupSchema.Validate(v); err != nil {
		return fmt.Errorf("group validation failed: %w", err)
	}
	return nil
}

// ValidateTarget validates YAML data against the image/rpm config schema.
func ValidateTarget(data []byte) error {
	if err := compileSchemas(); err != nil {
		return err
	}
	v, err := toJSONValue(data)
	if err != nil {
		return err
	}
	if err := targetSchema.Validate(v); err != nil {
		return fmt.Errorf("target validation failed: %w", err)
	}
	return nil
}

// toJSONValue decodes YAML and re-reads it through the jsonschema decoder so
// numbers arrive as json.Number.
func toJSONValue(data []byte) (any, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert YAML to JSON: %w", err)
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
}
