package contracts

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/intent.schema.json
var intentSchemaSrc string

//go:embed schemas/lease.schema.json
var leaseSchemaSrc string

var (
	intentSchema = jsonschema.MustCompileString("intent.schema.json", intentSchemaSrc)
	leaseSchema  = jsonschema.MustCompileString("lease.schema.json", leaseSchemaSrc)
)

// ValidateIntentRecord checks raw intent JSON against the record schema.
// Records loaded from disk pass through here before use, so a hand-edited
// file is rejected rather than silently misread.
func ValidateIntentRecord(raw []byte) error {
	return validate(intentSchema, raw, "intent")
}

// ValidateLeaseRecord checks raw lease JSON against the record schema.
func ValidateLeaseRecord(raw []byte) error {
	return validate(leaseSchema, raw, "lease")
}

func validate(schema *jsonschema.Schema, raw []byte, kind string) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%s record is not valid JSON: %w", kind, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%s record failed schema validation: %w", kind, err)
	}
	return nil
}
