package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// providerPayloadSchema constrains what an external metadata provider may
// hand back before it enters the shared response cache. Providers differ
// in which attributes they fill, so everything beyond artist and title is
// optional.
const providerPayloadSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["albums"],
	"properties": {
		"albums": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["artist", "title"],
				"properties": {
					"artist":         {"type": "string", "minLength": 1},
					"title":          {"type": "string", "minLength": 1},
					"genre_tags":     {"type": "array", "items": {"type": "string"}},
					"mood_tags":      {"type": "array", "items": {"type": "string"}},
					"year":           {"type": "integer", "minimum": 0},
					"label":          {"type": "string"},
					"country":        {"type": "string"},
					"catalog_number": {"type": "string"},
					"format":         {"type": "string"},
					"popularity":     {"type": "number", "minimum": 0},
					"similar_to": {
						"type": "object",
						"additionalProperties": {"type": "number", "minimum": 0, "maximum": 1}
					}
				}
			}
		}
	}
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(
			gojsonschema.NewStringLoader(providerPayloadSchema))
	})
	return schema, schemaErr
}

// ValidateProviderPayload checks a raw provider response against the
// payload schema and returns the collected violations as one error.
func ValidateProviderPayload(raw []byte) error {
	s, err := loadSchema()
	if err != nil {
		return fmt.Errorf("loading provider payload schema: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validating provider payload: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var violations []string
	for _, e := range result.Errors() {
		violations = append(violations, e.String())
	}
	return fmt.Errorf("provider payload failed validation: %s", strings.Join(violations, "; "))
}
