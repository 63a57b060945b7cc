//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/dataflow/integration_tests/internal/testutil"
)

var runIDPattern = regexp.MustCompile(`run-[0-9a-f]{12}`)

func TestRunDiamondPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ws := testutil.SetupTestWorkspace(t, "diamond.toml")

	res := ws.Run(ctx, "run", ws.Path("diamond.toml"))
	t.Logf("Command output: %s", res.Output())
	require.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Stdout, "Run succeeded")
	assert.Contains(t, res.Stdout, "4/4 done")

	report, err := os.ReadFile(filepath.Join(ws.WorkDir, "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "raw\nraw\n", string(report))

	runID := runIDPattern.FindString(res.Stdout)
	require.NotEmpty(t, runID, "run id not printed")

	for _, name := range []string{"preprocess", "train_a", "train_b", "evaluate"} {
		_, err := os.Stat(filepath.Join(ws.LogDir, runID, name+".log"))
		assert.NoError(t, err, "missing log for %s", name)
	}

	res = ws.Run(ctx, "runs", "show", runID)
	require.Equal(t, 0, res.ExitCode, res.Output())
	assert.Contains(t, res.Stdout, "SUCCEEDED")
	assert.Contains(t, res.Stdout, "evaluate")

	res = ws.Run(ctx, "graph", ws.Path("diamond.toml"), "--format", "text", "--run", runID)
	require.Equal(t, 0, res.ExitCode, res.Output())
	assert.Contains(t, res.Stdout, "Done: 4")
}

func TestPlanAndGraph(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	ws := testutil.SetupTestWorkspace(t, "diamond.toml")

	res := ws.Run(ctx, "plan", ws.Path("diamond.toml"))
	require.Equal(t, 0, res.ExitCode, res.Output())
	assert.Contains(t, res.Stdout, "1. preprocess")
	assert.Contains(t, res.Stdout, "Stage 2: train_a, train_b")
	assert.Contains(t, res.Stdout, "Stage 3: evaluate")

	res = ws.Run(ctx, "plan", ws.Path("diamond.toml"), "--resource", "cloud=aws")
	require.Equal(t, 0, res.ExitCode, res.Output())
	assert.Contains(t, res.Stdout, "3. train_b [aws]")
	assert.NotContains(t, res.Stdout, "2. train_a")

	out := ws.Path("graph.json")
	res = ws.Run(ctx, "graph", ws.Path("diamond.toml"), "--format", "json", "--output", out)
	require.Equal(t, 0, res.ExitCode, res.Output())
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"train_a"`)

	// Nothing ran, so no artifacts exist
	_, err = os.Stat(filepath.Join(ws.WorkDir, "report.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestFailingPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ws := testutil.SetupTestWorkspace(t, "failing.toml")

	res := ws.Run(ctx, "run", ws.Path("failing.toml"), "--retries", "1")
	t.Logf("Command output: %s", res.Output())
	require.NotEqual(t, 0, res.ExitCode)
	assert.Contains(t, res.Stderr, "EXECUTION-002")
	assert.Contains(t, res.Stdout, "Run failed")

	_, err := os.Stat(filepath.Join(ws.WorkDir, "should-not-exist"))
	assert.True(t, os.IsNotExist(err), "dependent of a failed task must not run")

	res = ws.Run(ctx, "runs", "list", "--status", "failed")
	require.Equal(t, 0, res.ExitCode, res.Output())
	assert.Contains(t, res.Stdout, "failing")

	runID := runIDPattern.FindString(res.Stdout)
	require.NotEmpty(t, runID)

	res = ws.Run(ctx, "runs", "show", runID, "--output-json")
	require.Equal(t, 0, res.ExitCode, res.Output())
	assert.Contains(t, res.Stdout, `"state": "skipped"`)
	assert.Contains(t, res.Stdout, `"attempts": 2`)
}

func TestFailFastPolicy(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ws := testutil.SetupTestWorkspace(t, "failing.toml")

	res := ws.Run(ctx, "run", ws.Path("failing.toml"), "--failure-policy", "fail-fast", "--max-parallel", "1", "--no-store")
	t.Logf("Command output: %s", res.Output())
	require.NotEqual(t, 0, res.ExitCode)
	assert.Contains(t, res.Stdout, "cancelled")
}
