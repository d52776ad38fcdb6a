package template

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// templateSchema validates template definition files before they are decoded
// into structs, so malformed files fail with a field-level message instead of
// a zero-valued registry entry.
const templateSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "fields"],
  "additionalProperties": false,
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "pdf": {"type": "string"},
    "fields": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "kind"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "pattern": "^[a-z0-9_]+$"},
          "kind": {"enum": ["text", "currency", "ssn", "date", "checkbox"]},
          "aliases": {"type": "array", "items": {"type": "string", "minLength": 1}},
          "pdf_field": {"type": "string"},
          "value_layout": {"enum": ["same-line", "below"]},
          "overlay": {"$ref": "#/definitions/coord"},
          "anchor": {"$ref": "#/definitions/coord"}
        }
      }
    }
  },
  "definitions": {
    "coord": {
      "type": "object",
      "required": ["page", "x", "y"],
      "additionalProperties": false,
      "properties": {
        "page": {"type": "integer", "minimum": 0},
        "x": {"type": "number"},
        "y": {"type": "number"}
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("template.schema.json", bytes.NewReader([]byte(templateSchema))); err != nil {
		panic(fmt.Sprintf("failed to load template schema: %v", err))
	}
	schema, err := compiler.Compile("template.schema.json")
	if err != nil {
		panic(fmt.Sprintf("failed to compile template schema: %v", err))
	}
	return schema
}

// validateDefinition checks raw YAML template bytes against the schema.
// The YAML is round-tripped through JSON so the validator sees the exact
// value types encoding/json would produce.
func validateDefinition(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert template to JSON: %w", err)
	}
	var jsonDoc any
	if err := json.Unmarshal(jsonBytes, &jsonDoc); err != nil {
		return fmt.Errorf("failed to decode template for validation: %w", err)
	}

	if err := compiledSchema.Validate(jsonDoc); err != nil {
		return fmt.Errorf("template does not match schema: %w", err)
	}
	return nil
}
