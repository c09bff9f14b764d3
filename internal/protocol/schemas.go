package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const (
	SchemaSnapshot    = "snapshot.schema.json"
	SchemaTurnResult  = "turn_result.schema.json"
	SchemaOrder       = "order.schema.json"
	SchemaTurnSummary = "turn_summary.schema.json"
)

var schemaNames = []string{SchemaSnapshot, SchemaTurnResult, SchemaOrder, SchemaTurnSummary}

const schemaBase = "https://empires.ai/schemas/"

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func compileAll() (map[string]*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	for _, name := range schemaNames {
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBase+name, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	out := make(map[string]*jsonschema.Schema, len(schemaNames))
	for _, name := range schemaNames {
		s, err := c.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
}

// Schema returns the compiled embedded schema with the given file name.
func Schema(name string) (*jsonschema.Schema, error) {
	compileOnce.Do(func() { compiled, compileErr = compileAll() })
	if compileErr != nil {
		return nil, compileErr
	}
	s, ok := compiled[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}
	return s, nil
}

// Validate checks raw JSON against the named schema.
func Validate(name string, raw []byte) error {
	s, err := Schema(name)
	if err != nil {
		return err
	}
	// Numbers stay json.Number so large int64 fields validate exactly.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return s.Validate(v)
}

func ValidateSnapshot(raw []byte) error   { return Validate(SchemaSnapshot, raw) }
func ValidateTurnResult(raw []byte) error { return Validate(SchemaTurnResult, raw) }
func ValidateOrder(raw []byte) error      { return Validate(SchemaOrder, raw) }
