package vision

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const classificationSchemaJSON = `{
  "type": "object",
  "properties": {
    "page_type": {"type": "string", "enum": ["question", "explanation", "diagram", "mixed"]},
    "has_image": {"type": "boolean"},
    "question_numbers": {"type": "array", "items": {"type": "integer", "minimum": 1}},
    "is_explanation_for": {"type": "array", "items": {"type": "integer", "minimum": 1}},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  },
  "required": ["page_type", "has_image", "question_numbers", "is_explanation_for", "confidence"],
  "additionalProperties": false
}`

const extractionSchemaJSON = `{
  "type": "object",
  "properties": {
    "questions": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "question_number": {"type": "integer", "minimum": 1},
          "text": {"type": "string", "minLength": 1},
          "options": {
            "type": "array",
            "minItems": 2,
            "items": {
              "type": "object",
              "properties": {
                "letter": {"type": "string", "minLength": 1},
                "text": {"type": "string"},
                "is_correct": {"type": "boolean"}
              },
              "required": ["letter", "text", "is_correct"],
              "additionalProperties": false
            }
          },
          "explanation": {"type": "string"},
          "difficulty": {"type": "string", "enum": ["easy", "medium", "hard"]},
          "has_image": {"type": "boolean"}
        },
        "required": ["question_number", "text", "options", "explanation", "difficulty", "has_image"],
        "additionalProperties": false
      }
    }
  },
  "required": ["questions"],
  "additionalProperties": false
}`

var (
	schemaOnce           sync.Once
	classificationSchema *jsonschema.Schema
	extractionSchema     *jsonschema.Schema
)

func compileSchemas() {
	schemaOnce.Do(func() {
		classificationSchema = jsonschema.MustCompileString("classification.json", classificationSchemaJSON)
		extractionSchema = jsonschema.MustCompileString("extraction.json", extractionSchemaJSON)
	})
}

// validateAgainst runs a compiled schema over already-parsed JSON text.
func validateAgainst(schema *jsonschema.Schema, raw string) error {
	var value any
	if err := json.NewDecoder(strings.NewReader(raw)).Decode(&value); err != nil {
		return err
	}
	return schema.Validate(value)
}
