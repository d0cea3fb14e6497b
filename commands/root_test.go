package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/go-trace-project/internal/presentation/formatter"
)

func TestExpandPath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected func(string) string
	}{
		{
			name:  "home directory expansion",
			input: "~/test/path",
			expected: func(home string) string {
				return filepath.Join(home, "test/path")
			},
		},
		{
			name:  "absolute path unchanged",
			input: "/absolute/path",
			expected: func(home string) string {
				return "/absolute/path"
			},
		},
		{
			name:  "relative path converted to absolute",
			input: "relative/path",
			expected: func(home string) string {
				abs, _ := filepath.Abs("relative/path")
				return abs
			},
		},
	}

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected(home), expandPath(tt.input))
		})
	}
}

func TestEnsureDir(t *testing.T) {
	testDir := filepath.Join(t.TempDir(), "test", "nested", "dir")

	require.NoError(t, ensureDir(testDir))
	assert.DirExists(t, testDir)
	assert.NoError(t, ensureDir(testDir))
}

// cli runs commands against one project folder.
type cli struct {
	t       *testing.T
	project string
	logFile string
}

func newCLI(t *testing.T) *cli {
	return &cli{
		t:       t,
		project: filepath.Join(t.TempDir(), "project"),
		logFile: filepath.Join(t.TempDir(), "app.log"),
	}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var buf bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append(args,
		"--project", c.project,
		"--log-file", c.logFile,
		"--color=false",
		"--timezone", "UTC",
	))
	err := cmd.Execute()
	return buf.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, out)
	return out
}

func (c *cli) tree() formatter.Node {
	c.t.Helper()
	var root formatter.Node
	require.NoError(c.t, sonic.UnmarshalString(c.mustRun("--output", "json"), &root))
	return root
}

func (c *cli) writeSource(name, content string) string {
	c.t.Helper()
	src := filepath.Join(c.t.TempDir(), name)
	require.NoError(c.t, os.WriteFile(src, []byte(content), 0644))
	return src
}

func childByName(n formatter.Node, name string) *formatter.Node {
	for i := range n.Children {
		if n.Children[i].Name == name {
			return &n.Children[i]
		}
	}
	return nil
}

func TestInit(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("init")
	assert.Contains(t, out, "Initialized project")
	assert.DirExists(t, filepath.Join(c.project, "Traces"))
	assert.DirExists(t, filepath.Join(c.project, "Experiments"))
	assert.DirExists(t, filepath.Join(c.project, ".tracing"))
}

func TestTreeOutputFormats(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.mustRun("trace", "import", c.writeSource("app.log", "events"), "--type", "text.log")

	text := c.mustRun()
	assert.Contains(t, text, "Traces [1]")
	assert.Contains(t, text, "app.log  (text.log)")

	root := c.tree()
	traces := childByName(root, "Traces")
	require.NotNil(t, traces)
	app := childByName(*traces, "app.log")
	require.NotNil(t, app)
	assert.Equal(t, "text.log", app.TraceType)

	assert.Contains(t, c.mustRun("--output", "csv"), "Traces/app.log,trace,app.log,text.log")
	assert.Contains(t, c.mustRun("--output", "summary"), "Project Summary")

	_, err := c.run("--output", "xml")
	assert.Error(t, err)
}

func TestTraceImportIntoFolder(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")

	src := c.writeSource("k.log", "events")
	c.mustRun("trace", "import", src, "--folder", "kernel", "--link")

	info, err := os.Lstat(filepath.Join(c.project, "Traces", "kernel", "k.log"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)

	_, err = c.run("trace", "import", src, "--folder", "kernel")
	assert.Error(t, err)
}

func TestTraceSetType(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.mustRun("trace", "import", c.writeSource("app.log", "events"))

	_, err := c.run("trace", "set-type", "Traces/app.log", "no.such.type")
	assert.Error(t, err)

	c.mustRun("trace", "set-type", "Traces/app.log", "text.log")
	app := childByName(*childByName(c.tree(), "Traces"), "app.log")
	require.NotNil(t, app)
	assert.Equal(t, "text.log", app.TraceType)
}

func TestExperimentLifecycle(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.mustRun("trace", "import", c.writeSource("a.log", "a"), "--type", "text.log")
	c.mustRun("trace", "import", c.writeSource("b.log", "b"), "--type", "text.log")

	out := c.mustRun("experiment", "create", "both", "Traces/a.log", "Traces/b.log")
	assert.Contains(t, out, "Created experiment both [2]")
	assert.FileExists(t, filepath.Join(c.project, "Experiments", "both", "a.log"))

	c.mustRun("experiment", "remove", "both", "b.log")
	assert.NoFileExists(t, filepath.Join(c.project, "Experiments", "both", "b.log"))

	c.mustRun("exp", "rename", "both", "only-a")
	assert.DirExists(t, filepath.Join(c.project, "Experiments", "only-a"))

	// Deleting the last member removes the experiment too
	c.mustRun("trace", "delete", "Traces/a.log")
	assert.NoFileExists(t, filepath.Join(c.project, "Traces", "a.log"))
	assert.NoDirExists(t, filepath.Join(c.project, "Experiments", "only-a"))

	_, err := c.run("experiment", "delete", "only-a")
	assert.Error(t, err)
}

func TestExperimentAdd_UnknownTrace(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.mustRun("trace", "import", c.writeSource("a.log", "a"), "--type", "text.log")
	c.mustRun("experiment", "create", "exp")

	_, err := c.run("experiment", "add", "exp", "Traces/a.log", "Traces/nope.log")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no trace at Traces/nope.log")
	assert.NoFileExists(t, filepath.Join(c.project, "Experiments", "exp", "a.log"))

	c.mustRun("experiment", "add", "exp", "Traces/a.log")
	assert.FileExists(t, filepath.Join(c.project, "Experiments", "exp", "a.log"))
}

func TestTraceRenameAndCopy(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.mustRun("trace", "import", c.writeSource("a.log", "a"), "--type", "text.log")
	c.mustRun("experiment", "create", "exp", "Traces/a.log")

	c.mustRun("trace", "rename", "Traces/a.log", "renamed.log")
	assert.FileExists(t, filepath.Join(c.project, "Traces", "renamed.log"))
	assert.FileExists(t, filepath.Join(c.project, "Experiments", "exp", "renamed.log"))

	out := c.mustRun("trace", "copy", "Traces/renamed.log", "copy.log")
	assert.Contains(t, out, "Copied Traces/copy.log")
	copied := childByName(*childByName(c.tree(), "Traces"), "copy.log")
	require.NotNil(t, copied)
	assert.Equal(t, "text.log", copied.TraceType)

	_, err := c.run("trace", "rename", "Traces/missing.log", "x.log")
	assert.Error(t, err)
}

func TestAnalysisCommands(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.mustRun("trace", "import", c.writeSource("app.log", "events"), "--type", "text.log")

	out := c.mustRun("analysis", "properties", "Traces/app.log/.views/statistics")
	assert.Contains(t, out, "Event counts per type")
	assert.Contains(t, out, "Helper properties:")

	out = c.mustRun("analysis", "schedule", "Traces/app.log/.views/statistics")
	assert.Contains(t, out, "ok: OK")

	_, err := c.run("analysis", "schedule", "Traces/app.log")
	assert.Error(t, err)

	out = c.mustRun("trace", "open", "Traces/app.log")
	assert.Contains(t, out, "Statistics")
}
