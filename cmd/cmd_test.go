package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Ludea/Sparus/cli"
	"github.com/Ludea/Sparus/pkg/paths"
	"github.com/Ludea/Sparus/pkg/pluginhost/plugintest"
	"github.com/Ludea/Sparus/pkg/updater/repotest"
	"github.com/Ludea/Sparus/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sandbox(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("SPARUS_HOME", home)
	t.Setenv("SPARUS_CONFIG", "")
	return home
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := cli.NewStandardCommand("sparus", "test")
	root.AddCommand(NewUpdateCmd(), NewCheckCmd(), NewInstalledCmd(), NewPluginCmd(),
		NewConfigCmd(), NewPathsCmd(), NewServeCmd(), NewInvokeCmd(), NewEventsCmd())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigShowFormats(t *testing.T) {
	sandbox(t)

	out, err := execute(t, "config", "show")
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "kataster", doc["launcher_name"])
	assert.Contains(t, doc, "logging")

	out, err = execute(t, "config", "show", "--format", "yaml")
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "http://127.0.0.1:8112", doc["launcher_url"])

	out, err = execute(t, "config", "show", "--format", "toml")
	require.NoError(t, err)
	assert.Contains(t, out, "launcher_name = ")
	assert.Contains(t, out, "kataster")

	_, err = execute(t, "config", "show", "--format", "ini")
	assert.Error(t, err)
}

func TestConfigPathAndSchema(t *testing.T) {
	home := sandbox(t)

	out, err := execute(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data", "Sparus.json")+"\n", out)

	out, err = execute(t, "config", "schema")
	require.NoError(t, err)
	assert.Contains(t, out, "launcher_url")
}

func TestPaths(t *testing.T) {
	home := sandbox(t)

	out, err := execute(t, "paths")
	require.NoError(t, err)
	var got PathsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, filepath.Join(home, "data", "plugins"), got.PluginsDir)
	assert.Equal(t, paths.SocketPath(), got.SocketPath)
}

func TestPluginCall(t *testing.T) {
	sandbox(t)
	plugintest.Install(t, paths.PluginsDir(), "echo", plugintest.EchoPlugin("0.3.0"))

	out, err := execute(t, "plugin", "call", "echo", "echo", `[{"n": 7, "s": "hi", "xs": [1,2,3]}]`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n": 7, "s": "hi", "xs": [1,2,3]}`, out)

	out, err = execute(t, "plugin", "list", "--json")
	require.NoError(t, err)
	var listed PluginList
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	assert.Equal(t, map[string]string{"echo": "0.3.0"}, listed.Components)
	assert.Empty(t, listed.Scripts)
}

func TestUpdateCheckAndInstalled(t *testing.T) {
	sandbox(t)
	workspace := t.TempDir()

	b := repotest.New(t, t.TempDir())
	b.Version("1.0.0", repotest.Tree{
		"game":    {Content: "binary", Exe: true},
		"data/a":  {Content: "alpha"},
		"data/b/": {},
	})
	b.Complete("1.0.0")
	b.Current("1.0.0")

	_, err := execute(t, "installed", workspace)
	require.Error(t, err)

	_, err = execute(t, "update", "--json", "--workspace", workspace, b.Dir())
	require.NoError(t, err)

	st, err := state.Load(workspace)
	require.NoError(t, err)
	version, ok := st.Version()
	assert.True(t, ok)
	assert.Equal(t, "1.0.0", version)

	out, err := execute(t, "installed", "--json", workspace)
	require.NoError(t, err)
	var installed map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &installed))
	assert.Equal(t, "game", installed["executable"])

	_, err = os.Stat(filepath.Join(workspace, "data", "b"))
	assert.NoError(t, err)
}

func TestServeStatusWhenStopped(t *testing.T) {
	sandbox(t)

	out, err := execute(t, "serve", "status", "--json")
	require.NoError(t, err)
	var status map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, false, status["running"])
}

func TestInvokeFallsBackToLocal(t *testing.T) {
	sandbox(t)
	plugintest.Install(t, paths.PluginsDir(), "world", plugintest.VersionPlugin("2.1.0"))

	out, err := execute(t, "invoke", "call_plugin_function", `{"plugin": "world", "function": "get-version"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `"2.1.0"`, out)

	out, err = execute(t, "invoke", "list_js_plugins")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)

	_, err = execute(t, "invoke", "list_js_plugins", "{")
	assert.Error(t, err)
}

func TestEventsRequiresDaemon(t *testing.T) {
	sandbox(t)
	_, err := execute(t, "events")
	assert.ErrorContains(t, err, "not running")
}
