// Package validate checks JSON request bodies against compiled JSON Schemas
// and reports every violation with the field it belongs to.
package validate

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xeipuuv/gojsonschema"

	"repairscribe/internal/apperr"
)

const failedMessage = "Validation failed"

// Schema is a compiled request schema.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// MustCompile compiles src and panics on an invalid schema.
func MustCompile(name, src string) *Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("validate: compile %s schema: %v", name, err))
	}
	return &Schema{name: name, schema: s}
}

// Validate checks body against the schema. Violations are returned as a
// validation error carrying one FieldError each.
func (s *Schema) Validate(body []byte) error {
	if len(strings.TrimSpace(string(body))) == 0 {
		return apperr.Validation(failedMessage, apperr.FieldError{Field: "body", Message: "Request body is required"})
	}
	if !json.Valid(body) {
		return apperr.Validation(failedMessage, apperr.FieldError{Field: "body", Message: "Request body must be valid JSON"})
	}
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "schema validation error", err)
	}
	if result.Valid() {
		return nil
	}
	details := make([]apperr.FieldError, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		details = append(details, apperr.FieldError{Field: fieldName(e), Message: e.Description()})
	}
	return apperr.Validation(failedMessage, details...)
}

// BindJSON reads the request body, validates it and decodes it into dst.
func BindJSON(c *gin.Context, s *Schema, dst any) error {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return apperr.Validation(failedMessage, apperr.FieldError{Field: "body", Message: "Request body could not be read"})
	}
	if err := s.Validate(body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperr.Validation(failedMessage, apperr.FieldError{Field: "body", Message: err.Error()})
	}
	return nil
}

func fieldName(e gojsonschema.ResultError) string {
	field := e.Field()
	if field == "(root)" {
		field = ""
	}
	if e.Type() == "required" {
		if prop, ok := e.Details()["property"].(string); ok {
			if field == "" {
				return prop
			}
			return field + "." + prop
		}
	}
	if field == "" {
		return "body"
	}
	return field
}
