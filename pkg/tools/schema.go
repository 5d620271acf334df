// Package tools holds the set of capabilities the remote model may invoke
// during a session: a registry with schema-described definitions, the two
// wire dialects used to describe them to different model providers, and the
// dispatcher that routes function-call requests to handlers.
package tools

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// Definition describes a capability in the native wire dialect:
//
//	{name, description, input_schema}
type Definition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

// OpenAIFunction is the inner function object of the OpenAI-style dialect.
type OpenAIFunction struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// OpenAIDefinition describes a capability in the OpenAI-style dialect:
//
//	{type:"function", function:{name, description, parameters}}
type OpenAIDefinition struct {
	Type     string         `json:"type"`
	Function OpenAIFunction `json:"function"`
}

// OpenAI projects the definition into the OpenAI-style dialect. The schema
// is shared, not copied; definitions are immutable after registration.
func (d Definition) OpenAI() OpenAIDefinition {
	return OpenAIDefinition{
		Type: "function",
		Function: OpenAIFunction{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.InputSchema,
		},
	}
}

// ObjectSchema builds the common top-level input schema shape: an object
// with the given properties and required field names.
func ObjectSchema(properties map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	if required == nil {
		required = []string{}
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}
