package httpclient

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaBase = "https://formload.local/schema/"

const formSchema = `{
  "type": "object",
  "required": ["id", "kind"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "kind": {"enum": ["page", "dialog", "lookup"]},
    "fields": {"type": "object", "additionalProperties": {"type": "string"}},
    "actions": {"type": "array", "items": {"type": "string"}},
    "repeater": {
      "type": "object",
      "required": ["offset", "viewport"],
      "properties": {
        "offset": {"type": "integer", "minimum": 0},
        "viewport": {"type": ["array", "null"]}
      }
    }
  }
}`

const sessionSchema = `{
  "type": "object",
  "required": ["session", "roleCenter"],
  "properties": {
    "session": {"type": "string", "minLength": 1},
    "roleCenter": {"$ref": "form.json"}
  }
}`

const responseSchema = `{
  "type": "object",
  "properties": {
    "forms": {"type": "array", "items": {"$ref": "form.json"}},
    "opened": {"$ref": "form.json"},
    "closed": {"type": "array", "items": {"type": "string"}}
  }
}`

// envelopes holds the compiled schemas for server replies.
type envelopes struct {
	session  *jsonschema.Schema
	response *jsonschema.Schema
}

func compileEnvelopes() (*envelopes, error) {
	compiler := jsonschema.NewCompiler()
	for name, src := range map[string]string{
		schemaBase + "form.json":     formSchema,
		schemaBase + "session.json":  sessionSchema,
		schemaBase + "response.json": responseSchema,
	} {
		if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("invalid schema %s: %w", name, err)
		}
	}

	session, err := compiler.Compile(schemaBase + "session.json")
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	response, err := compiler.Compile(schemaBase + "response.json")
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &envelopes{session: session, response: response}, nil
}

// decode validates body against schema before unmarshalling it into v.
func decode(schema *jsonschema.Schema, body []byte, v any) error {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return &ProtocolError{Reason: err.Error()}
	}
	return json.Unmarshal(body, v)
}

// ProtocolError reports a reply that does not match the wire protocol.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "httpclient: malformed reply: " + e.Reason
}
