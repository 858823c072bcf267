package errors

import (
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSparusError(t *testing.T) {
	// Test basic error creation
	err := New(KindUpdate, "update failed")
	assert.Equal(t, KindUpdate, err.Kind)

	// Test error wrapping
	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, KindRepository, "fetch failed")
	assert.Equal(t, cause, wrapped.Unwrap())

	assert.True(t, Is(wrapped, KindRepository))
	assert.False(t, Is(wrapped, KindUpdate))

	// Kinds survive fmt wrapping
	outer := fmt.Errorf("context: %w", wrapped)
	assert.Equal(t, KindRepository, GetKind(outer))

	detailed := err.WithDetail("version", "1.2.0")
	assert.Equal(t, "1.2.0", detailed.Details["version"])
}

func TestMarshalJSON(t *testing.T) {
	err := Wrap(fmt.Errorf("connection refused"), KindRepository, "repository current failed")

	data, marshalErr := json.Marshal(err)
	require.NoError(t, marshalErr)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "repository", decoded["kind"])
	assert.Equal(t, "repository current failed: connection refused", decoded["message"])
	assert.Len(t, decoded, 2)
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))

	_, statErr := os.Stat("/definitely/not/here")
	assert.Equal(t, KindIO, From(statErr).Kind)

	var v struct{}
	jsonErr := json.Unmarshal([]byte("{"), &v)
	assert.Equal(t, KindJSON, From(jsonErr).Kind)

	original := Semver("x.y", fmt.Errorf("bad"))
	assert.Same(t, original, From(fmt.Errorf("wrapped: %w", original)))

	assert.Equal(t, KindUpdate, From(fmt.Errorf("other")).Kind)
}

func TestConstructors(t *testing.T) {
	err := HTTPStatus("http://127.0.0.1:8012/plugins/hello", 404)
	assert.Equal(t, KindHTTP, err.Kind)
	assert.Equal(t, 404, err.Details["status"])

	err = Wasm("trap", "echo", fmt.Errorf("unreachable"))
	assert.Equal(t, KindWasm, err.Kind)
	assert.Equal(t, "trap", err.Details["stage"])

	err = PluginNotFound("echo", "missing")
	assert.Equal(t, KindPluginMissing, err.Kind)
	assert.Contains(t, err.Message, `"missing"`)

	err = Cancelled(nil)
	assert.Equal(t, KindCancelled, err.Kind)

	err = GameNotInstalled("Not installed")
	assert.Equal(t, "game-not-installed: Not installed", err.Error())
}
