package launcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/Ludea/Sparus/pkg/pluginhost/plugintest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoke(t *testing.T) {
	l := newLauncher(t, Options{})
	plugintest.Install(t, l.PluginsDir(), "echo", plugintest.EchoPlugin("0.3.0"))
	ctx := context.Background()

	out, err := l.Invoke(ctx, "call_plugin_function", Params{
		Plugin:   "echo",
		Function: "echo",
		Args:     json.RawMessage(`["hi"]`),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `"hi"`, string(out.(json.RawMessage)))

	out, err = l.Invoke(ctx, "list_plugins", Params{})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"echo": "0.3.0"}, out)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "game"), []byte("#!"), 0o755))
	out, err = l.Invoke(ctx, "get_game_exe_name", Params{Path: dir})
	require.NoError(t, err)
	assert.Equal(t, "game", out)

	_, err = l.Invoke(ctx, "check_if_installed", Params{Path: filepath.Join(dir, "nope")})
	assert.Equal(t, sparuserrors.KindGameNotInstalled, sparuserrors.GetKind(err))

	_, err = l.Invoke(ctx, "rm_rf", Params{})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestCommandsSorted(t *testing.T) {
	names := Commands()
	assert.Contains(t, names, "update_workspace")
	assert.Contains(t, names, "list_js_plugins")
	assert.IsNonDecreasing(t, names)
}
