package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// configSchema rejects structurally broken config files before decoding so
// the operator sees a path to the offending field instead of a zero value.
const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": [
    "transportDsn",
    "lateFolder",
    "earlyFolder",
    "lateStagingDir",
    "earlyStagingDir",
    "archiveDir",
    "catalogDsn"
  ],
  "properties": {
    "transportDsn": {"type": "string", "minLength": 1},
    "lateFolder": {"type": "string", "minLength": 1},
    "earlyFolder": {"type": "string", "minLength": 1},
    "lateStagingDir": {"type": "string", "minLength": 1},
    "earlyStagingDir": {"type": "string", "minLength": 1},
    "archiveDir": {"type": "string", "minLength": 1},
    "catalogDsn": {"type": "string", "minLength": 1},
    "retentionDays": {"type": "integer", "minimum": 0},
    "filenamePattern": {"type": "string"},
    "timestampLayout": {"type": "string"},
    "runInterval": {"type": "string", "pattern": "^[0-9]"},
    "listenAddr": {"type": "string"},
    "serviceRefresh": {
      "type": "object",
      "required": ["adminBase", "service"],
      "properties": {
        "adminBase": {"type": "string", "minLength": 1},
        "folder": {"type": "string"},
        "service": {"type": "string", "minLength": 1},
        "serviceType": {"type": "string"}
      },
      "additionalProperties": false
    }
  },
  "additionalProperties": false
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(configSchema))
	if err != nil {
		panic(fmt.Sprintf("config schema is not valid JSON: %v", err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", doc); err != nil {
		panic(fmt.Sprintf("config schema could not be registered: %v", err))
	}
	schema, err := compiler.Compile("config.schema.json")
	if err != nil {
		panic(fmt.Sprintf("config schema does not compile: %v", err))
	}
	return schema
}

func validateSchema(r io.Reader) error {
	instance, err := jsonschema.UnmarshalJSON(r)
	if err != nil {
		return fmt.Errorf("config is not valid JSON: %w", err)
	}
	if err := compiledSchema.Validate(instance); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}
