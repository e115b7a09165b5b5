package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/qri-io/jsonschema"
)

// envelopeSchema is the response shape every backend endpoint shares.
const envelopeSchema = `{
  "type": "object",
  "required": ["success"],
  "properties": {
    "success": {"type": "boolean"},
    "message": {"type": "string"},
    "error": {"type": ["string", "object", "null"]}
  }
}`

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

// failureMessage picks the backend's own words for a failure.
func (e envelope) failureMessage() string {
	if len(e.Error) > 0 {
		var text string
		if err := json.Unmarshal(e.Error, &text); err == nil && strings.TrimSpace(text) != "" {
			return text
		}
		var obj struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(e.Error, &obj); err == nil && strings.TrimSpace(obj.Message) != "" {
			return obj.Message
		}
	}
	return e.Message
}

type envelopeValidator struct {
	schema *jsonschema.Schema
}

func newEnvelopeValidator() (*envelopeValidator, error) {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal([]byte(envelopeSchema), rs); err != nil {
		return nil, fmt.Errorf("compile envelope schema: %w", err)
	}
	return &envelopeValidator{schema: rs}, nil
}

func (v *envelopeValidator) check(ctx context.Context, body []byte) error {
	verrs, err := v.schema.ValidateBytes(ctx, body)
	if err != nil {
		return fmt.Errorf("schema validate: %w", err)
	}
	if len(verrs) > 0 {
		var sb strings.Builder
		for _, e := range verrs {
			sb.WriteString(e.Message)
			sb.WriteString("; ")
		}
		return fmt.Errorf("response does not match envelope: %s", strings.TrimSuffix(sb.String(), "; "))
	}
	return nil
}
