package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator compiles schemas once and checks values against them.
// It is safe for concurrent use.
type Validator struct {
	mu     sync.Mutex
	cache  map[string]*jsonschema.Schema
	failed map[string]error
}

func NewValidator() *Validator {
	return &Validator{
		cache:  make(map[string]*jsonschema.Schema),
		failed: make(map[string]error),
	}
}

// DefaultValidator is shared by the generators and checks.
var DefaultValidator = NewValidator()

// Compile returns the compiled form of node.
func (v *Validator) Compile(node any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	key := string(raw)

	v.mu.Lock()
	defer v.mu.Unlock()
	if compiled, ok := v.cache[key]; ok {
		return compiled, nil
	}
	if err, ok := v.failed[key]; ok {
		return nil, err
	}

	h := fnv.New64a()
	h.Write(raw)
	url := fmt.Sprintf("mem://kensa/%x.json", h.Sum64())

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	compiler.AssertFormat = true
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		v.failed[key] = err
		return nil, err
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		err = classifyCompileError(err)
		v.failed[key] = err
		return nil, err
	}
	v.cache[key] = compiled
	return compiled, nil
}

func classifyCompileError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "$ref") || strings.Contains(msg, "resource"):
		return fmt.Errorf("%w: %v", ErrUnresolvedReference, err)
	case strings.Contains(msg, "regex") || strings.Contains(msg, "pattern"):
		return fmt.Errorf("%w: %v", ErrInvalidRegex, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalidSchema, err)
}

// Validate checks value against node.
func (v *Validator) Validate(node any, value any) error {
	compiled, err := v.Compile(node)
	if err != nil {
		return err
	}
	normalized, err := Normalize(value)
	if err != nil {
		return err
	}
	return compiled.Validate(normalized)
}

// IsValid reports whether value conforms to node. Schemas that fail to
// compile accept every value.
func (v *Validator) IsValid(node any, value any) bool {
	compiled, err := v.Compile(node)
	if err != nil {
		return true
	}
	normalized, err := Normalize(value)
	if err != nil {
		return false
	}
	return compiled.Validate(normalized) == nil
}

// Normalize turns arbitrary Go values into the representation the validator
// expects by round-tripping through JSON. Numbers decode as json.Number.
func Normalize(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// FormatConforms reports whether value satisfies the named format. Unknown
// formats accept everything. An empty hostname is not a valid hostname.
func FormatConforms(format string, value any) bool {
	if format == "hostname" && value == "" {
		return false
	}
	check, ok := jsonschema.Formats[format]
	if !ok {
		return true
	}
	return check(value)
}

// KnownFormat reports whether the format checker understands format.
func KnownFormat(format string) bool {
	_, ok := jsonschema.Formats[format]
	return ok
}
