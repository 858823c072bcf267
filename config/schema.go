package config

//go:generate go run ../tools/schema-generator -o ../schema/definitions/sparus.schema.json

import (
	"encoding/json"
	"fmt"
	"sync"

	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/Ludea/Sparus/schema"
	"github.com/invopop/jsonschema"
)

var (
	validatorOnce sync.Once
	validator     *schema.Validator
	validatorErr  error
)

// GenerateSchema reflects the JSON Schema of the configuration document.
// Raw sections such as "logging" are allowed as additional properties.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		ExpandedStruct:            true,
		FieldNameTag:              "json",
	}

	s := r.Reflect(&Config{})
	s.Title = "Sparus Configuration"
	s.Description = "Launcher settings read from Sparus.json."

	return json.MarshalIndent(s, "", "  ")
}

// Validate checks a decoded configuration document against the generated
// schema.
func Validate(document map[string]interface{}) error {
	validatorOnce.Do(func() {
		data, err := GenerateSchema()
		if err != nil {
			validatorErr = fmt.Errorf("failed to generate config schema: %w", err)
			return
		}
		validator, validatorErr = schema.NewValidator("sparus.schema.json", data)
	})
	if validatorErr != nil {
		return sparuserrors.Wrap(validatorErr, sparuserrors.KindConfig, "config schema unavailable")
	}
	if err := validator.Validate(document); err != nil {
		return sparuserrors.Wrap(err, sparuserrors.KindConfig, "invalid configuration")
	}
	return nil
}
