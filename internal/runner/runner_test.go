//go:build unix

package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/dataflow/internal/task"
)

func TestShellRunner_SetupThenRun(t *testing.T) {
	dir := t.TempDir()
	logDir := filepath.Join(dir, "logs")
	r := NewShellRunner("", dir, logDir)

	tk := task.MustNew("train", "cat setup.txt > out.txt && echo trained",
		task.WithSetup("echo ready > setup.txt"),
		task.WithCloud("gcp"))

	require.NoError(t, r.Run(context.Background(), tk))

	out, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "ready\n", string(out))

	logs, err := os.ReadFile(r.LogPath("train"))
	require.NoError(t, err)
	assert.Equal(t, "trained\n", string(logs))
}

func TestShellRunner_Environment(t *testing.T) {
	dir := t.TempDir()
	r := NewShellRunner("sh", dir, "")
	r.Env = map[string]string{"RUN_ID": "r-42"}

	var stdout bytes.Buffer
	r.Stdout = &stdout

	tk := task.MustNew("fetch", `echo "$DATAFLOW_TASK $DATAFLOW_CLOUD $RUN_ID"`, task.WithCloud("aws"))
	require.NoError(t, r.Run(context.Background(), tk))

	assert.Equal(t, "[fetch] fetch aws r-42\n", stdout.String())
	assert.Equal(t, "", r.LogPath("fetch"))
}

func TestShellRunner_ExitError(t *testing.T) {
	r := NewShellRunner("sh", t.TempDir(), "")

	t.Run("run fails", func(t *testing.T) {
		err := r.Run(context.Background(), task.MustNew("bad", "echo first; echo 'no such file' >&2; exit 3"))
		require.Error(t, err)

		var exitErr *ExitError
		require.True(t, errors.As(err, &exitErr))
		assert.Equal(t, "bad", exitErr.Task)
		assert.Equal(t, "run", exitErr.Phase)
		assert.Equal(t, 3, exitErr.ExitCode)
		assert.Equal(t, "no such file", exitErr.Output)
		assert.Equal(t, "run script of task bad exited with status 3: no such file", err.Error())
	})

	t.Run("setup failure skips run", func(t *testing.T) {
		dir := t.TempDir()
		r := NewShellRunner("sh", dir, "")
		err := r.Run(context.Background(), task.MustNew("bad", "touch ran", task.WithSetup("exit 1")))

		var exitErr *ExitError
		require.True(t, errors.As(err, &exitErr))
		assert.Equal(t, "setup", exitErr.Phase)
		assert.NoFileExists(t, filepath.Join(dir, "ran"))
	})
}

func TestShellRunner_Cancellation(t *testing.T) {
	r := NewShellRunner("sh", t.TempDir(), "")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Run(ctx, task.MustNew("sleepy", "sleep 5 & sleep 5; wait"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestShellRunner_MissingShell(t *testing.T) {
	r := NewShellRunner("/nonexistent/shell", t.TempDir(), "")
	err := r.Run(context.Background(), task.MustNew("a", "true"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start run script of task a")
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{limit: 4}
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defg"))
	assert.Equal(t, "defg", b.String())
}
