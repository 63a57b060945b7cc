package testutil

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Workspace is an isolated directory holding a config file, a run store,
// task logs and the directory task scripts run in.
type Workspace struct {
	Dir        string
	WorkDir    string
	LogDir     string
	ConfigPath string
	StorePath  string
	Port       int
}

// Result is the outcome of one CLI invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Output returns stdout followed by stderr.
func (r Result) Output() string {
	return r.Stdout + r.Stderr
}

// SetupTestWorkspace creates a new workspace under tmp_integration_tests/ and
// copies the named scenarios from testdata/ into it. The directory is removed
// when the test ends unless PRESERVE_WORKSPACE=true.
func SetupTestWorkspace(t *testing.T, scenarios ...string) *Workspace {
	t.Helper()

	root, err := filepath.Abs(filepath.Join("..", "tmp_integration_tests"))
	require.NoError(t, err, "failed to get workspace root path")

	randomBytes := make([]byte, 4)
	_, err = rand.Read(randomBytes)
	require.NoError(t, err, "failed to generate random bytes")

	testName := strings.ReplaceAll(t.Name(), "/", "_")
	dir := filepath.Join(root, fmt.Sprintf("%s-%s", testName, hex.EncodeToString(randomBytes)))

	ws := &Workspace{
		Dir:        dir,
		WorkDir:    filepath.Join(dir, "work"),
		LogDir:     filepath.Join(dir, "logs"),
		ConfigPath: filepath.Join(dir, "config.toml"),
		StorePath:  filepath.Join(dir, "dataflow.db"),
		Port:       freePort(t),
	}
	require.NoError(t, os.MkdirAll(ws.WorkDir, 0755), "failed to create workspace directory")

	conf := fmt.Sprintf(`[scheduler]
max_parallel = 4
artifacts = "verify"

[store]
path = %q

[server]
host = "127.0.0.1"
port = %d

[runner]
log_dir = %q
workdir = %q
`, ws.StorePath, ws.Port, ws.LogDir, ws.WorkDir)
	require.NoError(t, os.WriteFile(ws.ConfigPath, []byte(conf), 0644))

	for _, name := range scenarios {
		data, err := os.ReadFile(filepath.Join("testdata", name))
		require.NoError(t, err, "failed to read scenario %s", name)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
	}

	t.Cleanup(func() {
		if os.Getenv("PRESERVE_WORKSPACE") == "true" {
			t.Logf("Workspace preserved in: %s", dir)
			return
		}
		if err := os.RemoveAll(dir); err != nil {
			t.Logf("Warning: failed to clean up workspace directory %s: %v", dir, err)
		}
	})

	return ws
}

// Path returns the absolute path of a file in the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Run invokes the CLI with the workspace config and waits for it to exit.
func (w *Workspace) Run(ctx context.Context, args ...string) Result {
	cmd := w.Command(ctx, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	res := Result{}
	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		stderr.WriteString(err.Error())
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	return res
}

// Command builds the CLI command without starting it.
func (w *Workspace) Command(ctx context.Context, args ...string) *exec.Cmd {
	full := append([]string{"--config", w.ConfigPath}, args...)
	cmd := exec.CommandContext(ctx, GetBinaryPath(), full...)
	cmd.Dir = w.Dir
	cmd.Env = append(os.Environ(), "LOG_MODE=", "LOG_FORMAT=")
	return cmd
}

// BaseURL is the address `dataflow serve` listens on in this workspace.
func (w *Workspace) BaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", w.Port)
}

// WaitForServer polls the health endpoint until it answers or timeout elapses.
func (w *Workspace) WaitForServer(t *testing.T, timeout time.Duration) {
	t.Helper()
	addr := fmt.Sprintf("127.0.0.1:%d", w.Port)
	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, timeout, 50*time.Millisecond, "server did not start on %s", addr)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to find a free port")
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}
