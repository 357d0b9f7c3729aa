package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// JSONSchema validates raw JSON documents against a compiled schema.
type JSONSchema struct {
	name   string
	raw    map[string]any
	once   sync.Once
	schema *jsonschema.Schema
	err    error
}

// NewJSONSchema wraps a schema expressed as a generic map. Compilation is
// deferred to first use.
func NewJSONSchema(name string, schemaMap map[string]any) *JSONSchema {
	return &JSONSchema{name: name, raw: schemaMap}
}

func (s *JSONSchema) compile() {
	b, err := json.Marshal(s.raw)
	if err != nil {
		s.err = fmt.Errorf("marshal schema: %w", err)
		return
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(s.name, bytes.NewReader(b)); err != nil {
		s.err = fmt.Errorf("add schema: %w", err)
		return
	}
	s.schema, s.err = compiler.Compile(s.name)
	if s.err != nil {
		s.err = fmt.Errorf("compile schema: %w", s.err)
	}
}

// Validate checks data; a mismatch is reported as an INVALID_INPUT AppError.
func (s *JSONSchema) Validate(data []byte) error {
	s.once.Do(s.compile)
	if s.err != nil {
		return s.err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return NewAppError(CodeInvalidInput, "malformed json", fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}
	if err := s.schema.Validate(v); err != nil {
		return NewAppError(CodeInvalidInput, "json does not match schema", fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}
	return nil
}
