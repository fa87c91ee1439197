package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const summarySchemaFile = "summary.schema.json"

var (
	summarySchema *jsonschema.Schema
	compileOnce   sync.Once
	compileErr    error
)

// compileSchemas compiles the embedded schema once.
func compileSchemas() error {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()

		data, err := FS.ReadFile(summarySchemaFile)
		if err != nil {
			compileErr = fmt.Errorf("read summary schema: %w", err)
			return
		}

		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal summary schema: %w", err)
			return
		}

		if err := compiler.AddResource(summarySchemaFile, doc); err != nil {
			compileErr = fmt.Errorf("add summary schema resource: %w", err)
			return
		}

		summarySchema, err = compiler.Compile(summarySchemaFile)
		if err != nil {
			compileErr = fmt.Errorf("compile summary schema: %w", err)
			return
		}
	})

	return compileErr
}

// ValidateSummary validates a serialized summary log.
func ValidateSummary(data []byte) error {
	if err := compileSchemas(); err != nil {
		return err
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := summarySchema.Validate(v); err != nil {
		return fmt.Errorf("summary validation failed: %w", err)
	}

	return nil
}
