package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/metaquery/errors"
)

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return compiledSchema, schemaErr
}

// ValidateSchema checks cfg against the embedded JSON Schema. It catches
// type and range mistakes with the offending field path before the per-section
// Validate methods fill defaults.
func ValidateSchema(cfg *Config) error {
	m, err := toMap(cfg)
	if err != nil {
		return errors.WrapFatal(err, "Config", "ValidateSchema", "encode configuration")
	}
	return validateDocument(m)
}

func validateDocument(doc map[string]any) error {
	schema, err := loadSchema()
	if err != nil {
		return errors.WrapFatal(err, "Config", "ValidateSchema", "compile schema")
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return errors.WrapFatal(err, "Config", "ValidateSchema", "encode document")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return errors.WrapInvalid(err, "Config", "ValidateSchema", "validate document")
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
		"Config", "ValidateSchema", "validate document")
}
