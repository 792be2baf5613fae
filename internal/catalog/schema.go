package catalog

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// catalogSchema describes catalog.yaml
const catalogSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["services"],
  "properties": {
    "services": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "title", "price_min", "price_max", "duration", "category"],
        "properties": {
          "id":            {"type": "string", "pattern": "^[a-z0-9][a-z0-9-]*$"},
          "title":         {"type": "string", "minLength": 1},
          "description":   {"type": "string"},
          "price_min":     {"type": "integer", "minimum": 0},
          "price_max":     {"type": "integer", "minimum": 0},
          "duration":      {"type": "integer", "minimum": 1},
          "category":      {"type": "string", "minLength": 1},
          "complexity":    {"type": "integer", "minimum": 0},
          "value_drivers": {"type": ["array", "null"], "items": {"type": "string"}}
        }
      }
    },
    "complementary": {
      "type": ["object", "null"],
      "additionalProperties": {"type": "array", "items": {"type": "string"}}
    },
    "bundle_discounts": {
      "type": ["object", "null"],
      "patternProperties": {
        "^[0-9]+$": {"type": "number", "minimum": 0, "exclusiveMaximum": 1}
      },
      "additionalProperties": false
    },
    "roi_multipliers": {
      "type": ["object", "null"],
      "additionalProperties": {"type": "integer", "minimum": 1}
    },
    "default_roi_multiplier": {"type": "integer", "minimum": 0}
  }
}`

// quizSchema describes quiz.yaml
const quizSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["questions"],
  "properties": {
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "prompt", "cardinality", "options"],
        "properties": {
          "id":          {"type": "string", "minLength": 1},
          "prompt":      {"type": "string", "minLength": 1},
          "cardinality": {"enum": ["single", "multiple"]},
          "options": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["value", "label"],
              "properties": {
                "value":   {"type": "string", "minLength": 1},
                "label":   {"type": "string"},
                "weights": {
                  "type": ["object", "null"],
                  "additionalProperties": {"type": "integer", "minimum": 1}
                }
              }
            }
          }
        }
      }
    }
  }
}`

// validateDocument checks a raw YAML document against a JSON schema.
// The document is validated before typed decoding so missing keys are reported.
func validateDocument(schema string, data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewGoLoader(jsonCompatible(doc)),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("document does not match schema: %s", strings.Join(errs, "; "))
	}

	return nil
}

// jsonCompatible converts YAML maps with non-string keys (bundle_discounts) into
// string-keyed maps the JSON loader can encode
func jsonCompatible(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, e := range t {
			t[k] = jsonCompatible(e)
		}
		return t
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = jsonCompatible(e)
		}
		return out
	case []interface{}:
		for i, e := range t {
			t[i] = jsonCompatible(e)
		}
		return t
	}
	return v
}
