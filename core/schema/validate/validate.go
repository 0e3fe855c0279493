package validate

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"

	schemastream "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/stream"
)

//go:embed envelope_schema.json
var envelopeSchemaDoc []byte

var (
	envelopeOnce   sync.Once
	envelopeSchema *jsonschema.Schema
	envelopeErr    error
)

func compiledEnvelopeSchema() (*jsonschema.Schema, error) {
	envelopeOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		envelopeSchema, envelopeErr = compiler.Compile(envelopeSchemaDoc)
		if envelopeErr != nil {
			envelopeErr = fmt.Errorf("compile envelope schema: %w", envelopeErr)
		}
	})
	return envelopeSchema, envelopeErr
}

// ValidateEnvelope checks raw JSON against the event envelope schema without
// decoding it.
func ValidateEnvelope(data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("envelope is not valid JSON")
	}
	schema, err := compiledEnvelopeSchema()
	if err != nil {
		return err
	}
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("envelope schema validation failed: %v", result.Errors)
}

// DecodeEnvelope validates raw JSON at the ingestion boundary and decodes it
// into an EventEnvelope. Downstream code trusts the result; everything
// malformed is rejected here.
func DecodeEnvelope(data []byte) (schemastream.EventEnvelope, error) {
	if err := ValidateEnvelope(data); err != nil {
		return schemastream.EventEnvelope{}, err
	}
	var envelope schemastream.EventEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return schemastream.EventEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return envelope, nil
}
