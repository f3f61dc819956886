package webhook

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const deliverySchema = `{
  "type": "object",
  "required": ["object", "entry"],
  "properties": {
    "object": {"type": "string", "enum": ["instagram", "page"]},
    "entry": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "time": {"type": "number"},
          "changes": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["field", "value"],
              "properties": {
                "field": {"type": "string"},
                "value": {"type": "object"}
              }
            }
          },
          "messaging": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["sender"],
              "properties": {
                "sender": {
                  "type": "object",
                  "required": ["id"],
                  "properties": {"id": {"type": "string"}}
                },
                "message": {"type": "object"},
                "postback": {"type": "object"}
              }
            }
          }
        }
      }
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(deliverySchema))
})

// Validate checks the raw body against the delivery schema.
func Validate(body []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("failed to compile webhook schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	if !result.Valid() {
		var errors []string
		for _, desc := range result.Errors() {
			errors = append(errors, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(errors, "; "))
	}

	return nil
}
