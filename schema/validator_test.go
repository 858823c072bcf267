package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "name": {"type": "string"},
    "port": {"type": "integer", "minimum": 1}
  }
}`

func TestValidator(t *testing.T) {
	v, err := NewValidator("test.json", []byte(testSchema))
	require.NoError(t, err)

	assert.NoError(t, v.Validate(map[string]interface{}{"name": "kataster", "port": 8012}))

	err = v.Validate(map[string]interface{}{"port": "8012"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/port")

	err = v.Validate(map[string]interface{}{"port": 0})
	require.Error(t, err)
}

func TestNewValidatorRejectsBadSchema(t *testing.T) {
	_, err := NewValidator("bad.json", []byte(`{"type": 12}`))
	assert.Error(t, err)
}

func TestValidatorKeepsNumberPrecision(t *testing.T) {
	v, err := NewValidator("test.json", []byte(testSchema))
	require.NoError(t, err)

	err = v.Validate(map[string]interface{}{"port": 8012.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/port")

	assert.NoError(t, v.Validate(map[string]interface{}{"port": int64(1) << 60}))
	assert.NoError(t, v.Validate(struct {
		Name string `json:"name"`
		Port int    `json:"port"`
	}{"kataster", 8012}))
}
