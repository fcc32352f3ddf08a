package sandbox

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// ValidateArguments checks args against the tool's parameter schema.
// Tools without a schema accept anything.
func ValidateArguments(tool models.ToolDefinition, args map[string]interface{}) error {
	if len(tool.Parameters) == 0 {
		return nil
	}

	schema, err := compileSchema(tool)
	if err != nil {
		return models.WrapError(models.KindExecutionError, "INVALID_SCHEMA",
			fmt.Sprintf("tool %s has an invalid parameter schema", tool.ID), err)
	}

	instance, err := roundTrip(args)
	if err != nil {
		return models.WrapError(models.KindExecutionError, "INVALID_ARGUMENTS",
			"arguments are not representable as JSON", err)
	}

	if err := schema.Validate(instance); err != nil {
		return models.WrapError(models.KindExecutionError, "INVALID_ARGUMENTS",
			fmt.Sprintf("arguments do not satisfy the schema for tool %s", tool.ID), err).
			WithSuggestion("check the tool's parameter schema for required fields and types")
	}
	return nil
}

func compileSchema(tool models.ToolDefinition) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(tool.Parameters)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	url := "gateway:///tools/" + tool.ID + ".json"
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

// roundTrip re-decodes args through JSON so the validator sees the same
// value shapes the wire would carry.
func roundTrip(args map[string]interface{}) (interface{}, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}
