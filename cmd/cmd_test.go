//go:build unix

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flowerrors "github.com/maxkimambo/dataflow/internal/errors"
)

type cliEnv struct {
	dir        string
	workDir    string
	configPath string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := &cliEnv{
		dir:        dir,
		workDir:    filepath.Join(dir, "work"),
		configPath: filepath.Join(dir, "config.toml"),
	}
	require.NoError(t, os.MkdirAll(env.workDir, 0755))

	conf := fmt.Sprintf(`
[scheduler]
max_parallel = 2
artifacts = "verify"

[store]
path = %q

[runner]
log_dir = %q
workdir = %q
`, filepath.Join(dir, "runs.db"), filepath.Join(dir, "logs"), env.workDir)
	require.NoError(t, os.WriteFile(env.configPath, []byte(conf), 0644))
	return env
}

func (e *cliEnv) writeTaskFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, "pipeline.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func (e *cliEnv) execute(args ...string) (string, error) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs(append([]string{"--config", e.configPath, "--quiet=false"}, args...))
	err := rootCmd.Execute()
	return buf.String(), err
}

const copyPipeline = `
name = "copy"

[[task]]
name = "produce"
run = "echo data > out.txt"

[[task]]
name = "consume"
run = "cat out.txt > copy.txt"
[task.dependson]
produce = ["out.txt"]
`

func TestCLI_RunRecordsAndLists(t *testing.T) {
	env := newCLIEnv(t)
	file := env.writeTaskFile(t, copyPipeline)

	out, err := env.execute("run", file)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Run succeeded")
	assert.Contains(t, out, "2/2 done")

	data, err := os.ReadFile(filepath.Join(env.workDir, "copy.txt"))
	require.NoError(t, err)
	assert.Equal(t, "data\n", string(data))

	out, err = env.execute("runs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "copy")
	assert.Contains(t, out, "SUCCEEDED")

	out, err = env.execute("plan", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Stage 1: produce")
	assert.Contains(t, out, "Stage 2: consume")

	out, err = env.execute("graph", file, "--format", "dot")
	require.NoError(t, err)
	assert.Contains(t, out, `"produce" -> "consume" [label="out.txt"];`)
}

func TestCLI_RunFailure(t *testing.T) {
	env := newCLIEnv(t)
	file := env.writeTaskFile(t, `
[[task]]
name = "broken"
run = "exit 3"

[[task]]
name = "after"
run = "true"
depends_on = ["broken"]
`)

	out, err := env.execute("run", file)
	require.Error(t, err)
	assert.Equal(t, "EXECUTION-002", flowerrors.GetErrorCode(err))
	assert.Contains(t, out, "Run failed")
	assert.Contains(t, out, "skipped")
	assert.Contains(t, out, "Skipped: 1")

	var flowErr *flowerrors.FlowError
	require.True(t, errors.As(err, &flowErr))
	assert.Equal(t, "broken", flowErr.Context["failed"])
	assert.Equal(t, "after", flowErr.Context["skipped"])
}

func TestCLI_ResolveError(t *testing.T) {
	env := newCLIEnv(t)
	file := env.writeTaskFile(t, `
[[task]]
name = "a"
run = "true"
depends_on = ["b"]

[[task]]
name = "b"
run = "true"
depends_on = ["a"]
`)

	_, err := env.execute("plan", file)
	require.Error(t, err)
	assert.Equal(t, "RESOLVE-001", flowerrors.GetErrorCode(err))

	_, err = env.execute("plan", filepath.Join(env.dir, "missing.toml"))
	require.Error(t, err)
	assert.Equal(t, "TASKFILE-001", flowerrors.GetErrorCode(err))
}
