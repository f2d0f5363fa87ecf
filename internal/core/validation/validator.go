package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/kleanup/dashboard/internal/core/record"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (e *ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(msgs, "; ")
}

// Fields returns the first message per field.
func (e *ValidationErrors) Fields() map[string]string {
	out := make(map[string]string, len(e.Errors))
	for _, err := range e.Errors {
		if _, ok := out[err.Field]; !ok {
			out[err.Field] = err.Message
		}
	}
	return out
}

// Validator checks drafts against JSON Schemas generated from resource schemas.
// Compiled schemas are cached by key.
type Validator struct {
	mu       sync.Mutex
	compiled map[string]*gojsonschema.Schema
}

func NewValidator() *Validator {
	return &Validator{compiled: make(map[string]*gojsonschema.Schema)}
}

// Validate checks data against s, including required-field presence. key
// identifies s in the cache, usually the resource name.
func (v *Validator) Validate(key string, s record.Schema, data record.Record) error {
	return v.validate(key, s, data, true)
}

// ValidatePartial checks only the fields present in data.
func (v *Validator) ValidatePartial(key string, s record.Schema, data record.Record) error {
	return v.validate(key+":partial", s, data, false)
}

func (v *Validator) validate(key string, s record.Schema, data record.Record, required bool) error {
	if len(s.Fields) == 0 {
		// No schema defined, allow any data
		return nil
	}

	schema, err := v.schema(key, s, required)
	if err != nil {
		return err
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return err
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(dataJSON))
	if err != nil {
		return err
	}

	if !result.Valid() {
		var validationErrors []ValidationError
		for _, desc := range result.Errors() {
			validationErrors = append(validationErrors, describe(desc))
		}
		sort.SliceStable(validationErrors, func(i, j int) bool {
			return validationErrors[i].Field < validationErrors[j].Field
		})
		return &ValidationErrors{Errors: validationErrors}
	}

	return nil
}

func (v *Validator) schema(key string, s record.Schema, required bool) (*gojsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if compiled, ok := v.compiled[key]; ok {
		return compiled, nil
	}

	doc := SchemaFor(s, required)
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", key, err)
	}
	v.compiled[key] = compiled
	return compiled, nil
}

// SchemaFor renders s as a JSON Schema document. Required fields may not be null
// and required strings may not be blank.
func SchemaFor(s record.Schema, required bool) map[string]any {
	props := make(map[string]any, len(s.Fields))
	var requiredFields []string

	for _, f := range s.Fields {
		props[f.Name] = fieldSchema(f.Kind, f.Required)
		if required && f.Required {
			requiredFields = append(requiredFields, f.Name)
		}
	}

	doc := map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"properties": props,
	}
	if len(requiredFields) > 0 {
		doc["required"] = requiredFields
	}
	return doc
}

func fieldSchema(kind record.FieldKind, required bool) map[string]any {
	types := func(t ...string) []string {
		if !required {
			t = append(t, "null")
		}
		return t
	}

	switch kind {
	case record.KindString:
		fs := map[string]any{"type": types("string")}
		if required {
			fs["pattern"] = `\S`
		}
		return fs
	case record.KindNumber:
		return map[string]any{"type": types("number")}
	case record.KindBoolean:
		return map[string]any{"type": types("boolean")}
	case record.KindTimestamp:
		return map[string]any{"type": types("string")}
	case record.KindReference:
		fs := map[string]any{"type": types("string", "number")}
		if required {
			fs["minLength"] = 1
		}
		return fs
	case record.KindFile:
		// A new upload, or the URL the backend already stores.
		return map[string]any{"type": types("object", "string")}
	}
	return map[string]any{}
}

func describe(desc gojsonschema.ResultError) ValidationError {
	field := desc.Field()
	details := desc.Details()

	switch desc.Type() {
	case "required":
		if p, ok := details["property"].(string); ok {
			field = p
		}
		return ValidationError{Field: field, Message: "is required"}
	case "pattern", "string_gte":
		return ValidationError{Field: field, Message: "is required"}
	case "invalid_type":
		if details["given"] == "null" {
			return ValidationError{Field: field, Message: "is required"}
		}
		return ValidationError{Field: field, Message: fmt.Sprintf("must be of type %v", details["expected"])}
	}
	return ValidationError{Field: field, Message: desc.Description()}
}

func IsValidationError(err error) bool {
	var ve *ValidationErrors
	return errors.As(err, &ve)
}

func GetValidationErrors(err error) *ValidationErrors {
	var ve *ValidationErrors
	if errors.As(err, &ve) {
		return ve
	}
	return nil
}
