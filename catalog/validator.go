package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator checks event payloads against the JSON Schema attached to their
// event type definition. Compiled schemas are cached by content, so repeated
// publishes of the same event type compile once.
type Validator struct {
	mu       sync.RWMutex
	compiled map[string]*jsonschema.Schema // keyed by schema content hash
}

// NewValidator returns an empty Validator.
func NewValidator() *Validator {
	return &Validator{
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Validate checks data against schema. A nil schema accepts everything.
func (v *Validator) Validate(schema, data any) error {
	if schema == nil {
		return nil
	}

	sc, err := v.schemaFor(schema)
	if err != nil {
		return fmt.Errorf("schema compilation error: %w", err)
	}
	return sc.Validate(data)
}

// schemaFor compiles schema, reusing a previous compilation of identical
// content when one exists.
func (v *Validator) schemaFor(schema any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	sum := sha256.Sum256(raw)
	key := hex.EncodeToString(sum[:])

	v.mu.RLock()
	sc, ok := v.compiled[key]
	v.mu.RUnlock()
	if ok {
		return sc, nil
	}

	// The compiler wants plain unmarshalled JSON, not the caller's Go value,
	// which may be a struct.
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// Resource URLs only need to be unique per schema; the content hash
	// already is.
	url := "courier://schema/" + key

	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sc, err = c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.mu.Lock()
	v.compiled[key] = sc
	v.mu.Unlock()
	return sc, nil
}
