package proxy

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dreamshop/gateway/internal/apierr"
)

// Schema is a compiled JSON Schema for an inbound request body.
type Schema struct {
	schema *gojsonschema.Schema
}

// MustSchema compiles src and panics on an invalid schema; schemas are
// package-level literals.
func MustSchema(src string) *Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("compile schema: %v", err))
	}
	return &Schema{schema: s}
}

// Validate returns a 400 *apierr.Error listing every violation.
func (s *Schema) Validate(body []byte) error {
	if len(body) == 0 {
		body = []byte("{}")
	}
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return apierr.BadRequest("request body is not valid JSON")
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return apierr.BadRequest("invalid request: " + strings.Join(msgs, "; "))
}
