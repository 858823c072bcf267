package profiling

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	p := NewProfiler()
	pkg := p.Start("package complete_1.0.0")
	p.Start("download").Stop()
	stage := p.Start("stage")
	stage.Stop()
	pkg.Stop()
	p.Start("finish").Stop()

	var out bytes.Buffer
	p.Summarize(&out)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[1], "- package complete_1.0.0"))
	assert.True(t, strings.HasPrefix(lines[2], "  - download"))
	assert.True(t, strings.HasPrefix(lines[3], "  - stage"))
	assert.True(t, strings.HasPrefix(lines[4], "- finish"))
}

func TestOutOfOrderStop(t *testing.T) {
	p := NewProfiler()
	outer := p.Start("outer")
	p.Start("leaked")
	outer.Stop()
	p.Start("next").Stop()

	var out bytes.Buffer
	p.Summarize(&out)
	assert.Contains(t, out.String(), "\n- next")
}

func TestDisabledStartIsNoop(t *testing.T) {
	assert.IsType(t, noopStopper{}, Start("anything"))
}

func TestCobraProfilerWritesProfiles(t *testing.T) {
	dir := t.TempDir()
	p := NewCobraProfiler()
	cmd := &cobra.Command{Use: "x", PersistentPreRunE: p.PreRun, PersistentPostRun: p.PostRun, Run: func(*cobra.Command, []string) {}}
	p.AddFlags(cmd)

	var errOut bytes.Buffer
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--cpu-profile", filepath.Join(dir, "cpu.out"), "--mem-profile", filepath.Join(dir, "mem.out")})
	require.NoError(t, cmd.Execute())

	assert.FileExists(t, filepath.Join(dir, "cpu.out"))
	assert.FileExists(t, filepath.Join(dir, "mem.out"))
}
