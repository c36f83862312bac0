// Package schema validates JSON documents against JSON Schema.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"foreman/internal/domain"
	"foreman/internal/ports"
)

const resourceURL = "schema.json"

var _ ports.SchemaValidator = (*Validator)(nil)

// Validator compiles schemas with a fixed default draft and caches them by
// content. Schemas attached to services are immutable, so a cached
// compilation never goes stale.
type Validator struct {
	draft *jsonschema.Draft
	cache sync.Map // string(schema) -> *jsonschema.Schema
}

type Option func(*Validator)

// WithDraft sets the draft used for schemas that do not declare $schema.
func WithDraft(draft *jsonschema.Draft) Option {
	return func(v *Validator) {
		v.draft = draft
	}
}

func NewValidator(opts ...Option) *Validator {
	v := &Validator{draft: jsonschema.Draft4}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Validator) CheckSchema(schema json.RawMessage) ([]domain.Violation, error) {
	_, violations, err := v.compile(schema)
	return violations, err
}

func (v *Validator) Validate(document, schema json.RawMessage) ([]domain.Violation, error) {
	compiled, violations, err := v.compile(schema)
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		return nil, fmt.Errorf("schema: cannot validate against an invalid schema: %s", violations[0])
	}

	value, err := decode(document)
	if err != nil {
		return []domain.Violation{{Message: "document is not valid JSON: " + err.Error()}}, nil
	}

	err = compiled.Validate(value)
	if err == nil {
		return nil, nil
	}
	var verr *jsonschema.ValidationError
	if errors.As(err, &verr) {
		return flatten(verr), nil
	}
	return nil, fmt.Errorf("schema: validate: %w", err)
}

func (v *Validator) compile(schema json.RawMessage) (*jsonschema.Schema, []domain.Violation, error) {
	key := string(bytes.TrimSpace(schema))
	if cached, ok := v.cache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil, nil
	}
	if _, err := decode(schema); err != nil {
		return nil, []domain.Violation{{Message: "schema is not valid JSON: " + err.Error()}}, nil
	}

	// A schema must be self-contained: what it means may never depend on a
	// file or URL that can change after registration.
	var external string
	compiler := jsonschema.NewCompiler()
	compiler.Draft = v.draft
	compiler.LoadURL = func(url string) (io.ReadCloser, error) {
		if external == "" {
			external = url
		}
		return nil, fmt.Errorf("schema: external reference %q is not allowed", url)
	}
	if err := compiler.AddResource(resourceURL, strings.NewReader(key)); err != nil {
		return nil, []domain.Violation{{Message: err.Error()}}, nil
	}
	compiled, err := compiler.Compile(resourceURL)
	if err != nil {
		if external != "" {
			return nil, []domain.Violation{{Message: fmt.Sprintf("external reference %q is not allowed", external)}}, nil
		}
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return nil, flatten(verr), nil
		}
		var serr *jsonschema.SchemaError
		if errors.As(err, &serr) {
			return nil, []domain.Violation{{Message: serr.Err.Error()}}, nil
		}
		return nil, nil, fmt.Errorf("schema: compile: %w", err)
	}

	v.cache.Store(key, compiled)
	return compiled, nil, nil
}

func decode(raw json.RawMessage) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("unexpected data after top-level value")
	}
	return value, nil
}

// flatten collects the leaves of a validation error tree, one violation per
// failed keyword, sorted by field for stable output.
func flatten(verr *jsonschema.ValidationError) []domain.Violation {
	var out []domain.Violation
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, domain.Violation{
				Field:   strings.TrimPrefix(e.InstanceLocation, "/"),
				Message: e.Message,
			})
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(verr)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}
