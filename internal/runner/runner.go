// Package runner executes task scripts on the local machine.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maxkimambo/dataflow/internal/logger"
	"github.com/maxkimambo/dataflow/internal/task"
)

const tailSize = 2048

// ExitError reports a script that exited with a non-zero status
type ExitError struct {
	Task     string
	Phase    string
	ExitCode int
	Output   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s script of task %s exited with status %d", e.Phase, e.Task, e.ExitCode)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

// ShellRunner runs a task's setup and run scripts through a shell
type ShellRunner struct {
	// Shell is the interpreter invoked as "<Shell> -c <script>". Defaults to sh.
	Shell string

	// WorkDir is the directory scripts run in. Empty means the current directory.
	WorkDir string

	// LogDir receives one <task>.log file per task. Empty disables log files.
	LogDir string

	// Env is added to the inherited environment
	Env map[string]string

	// Stdout additionally receives script output when set
	Stdout io.Writer

	mutex sync.Mutex
}

// NewShellRunner creates a runner using the given shell
func NewShellRunner(shell, workDir, logDir string) *ShellRunner {
	return &ShellRunner{
		Shell:   shell,
		WorkDir: workDir,
		LogDir:  logDir,
	}
}

// Run executes the setup script, if any, followed by the run script
func (r *ShellRunner) Run(ctx context.Context, t *task.Task) error {
	if t == nil {
		return fmt.Errorf("%w: task is nil", task.ErrInvalidTask)
	}

	out, closeLog, err := r.openLog(t.Name)
	if err != nil {
		return err
	}
	defer closeLog()

	if t.Setup != "" {
		if err := r.exec(ctx, t, "setup", t.Setup, out); err != nil {
			return err
		}
	}
	return r.exec(ctx, t, "run", t.Run, out)
}

// LogPath returns the log file of a task, or "" when log files are disabled
func (r *ShellRunner) LogPath(name string) string {
	if r.LogDir == "" {
		return ""
	}
	return filepath.Join(r.LogDir, name+".log")
}

func (r *ShellRunner) exec(ctx context.Context, t *task.Task, phase, script string, out io.Writer) error {
	shell := r.Shell
	if shell == "" {
		shell = "sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", script)
	cmd.Dir = r.WorkDir
	cmd.Env = r.environ(t)
	configureProcess(cmd)

	tail := &tailBuffer{limit: tailSize}
	w := io.MultiWriter(out, tail)
	cmd.Stdout = w
	cmd.Stderr = w

	logger.Op.WithFields(map[string]interface{}{
		"task":  t.Name,
		"phase": phase,
		"shell": shell,
	}).Debug("Starting script")

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s script of task %s interrupted: %w", phase, t.Name, ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{
				Task:     t.Name,
				Phase:    phase,
				ExitCode: exitErr.ExitCode(),
				Output:   lastLine(tail.String()),
			}
		}
		return fmt.Errorf("failed to start %s script of task %s: %w", phase, t.Name, err)
	}

	logger.Op.WithFields(map[string]interface{}{
		"task":     t.Name,
		"phase":    phase,
		"duration": duration.Round(time.Millisecond).String(),
	}).Debug("Script finished")
	return nil
}

// environ returns the inherited environment plus task variables, sorted for stable output
func (r *ShellRunner) environ(t *task.Task) []string {
	extra := map[string]string{
		"DATAFLOW_TASK": t.Name,
	}
	if t.Resources.Cloud != "" {
		extra["DATAFLOW_CLOUD"] = t.Resources.Cloud
	}
	for k, v := range r.Env {
		extra[k] = v
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := os.Environ()
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

func (r *ShellRunner) openLog(name string) (io.Writer, func(), error) {
	var writers []io.Writer
	closeFn := func() {}

	if r.LogDir != "" {
		r.mutex.Lock()
		err := os.MkdirAll(r.LogDir, 0o755)
		r.mutex.Unlock()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory %s: %w", r.LogDir, err)
		}

		f, err := os.OpenFile(r.LogPath(name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file for task %s: %w", name, err)
		}
		writers = append(writers, f)
		closeFn = func() { _ = f.Close() }
	}
	if r.Stdout != nil {
		writers = append(writers, &prefixWriter{prefix: "[" + name + "] ", w: r.Stdout, mutex: &r.mutex})
	}
	if len(writers) == 0 {
		return io.Discard, closeFn, nil
	}
	return io.MultiWriter(writers...), closeFn, nil
}

// tailBuffer keeps the last limit bytes written to it
type tailBuffer struct {
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.limit {
		b.buf = b.buf[len(b.buf)-b.limit:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}

// prefixWriter prefixes each line with the task name
type prefixWriter struct {
	prefix  string
	w       io.Writer
	mutex   *sync.Mutex
	midLine bool
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	var sb strings.Builder
	for _, c := range string(b) {
		if !p.midLine {
			sb.WriteString(p.prefix)
			p.midLine = true
		}
		sb.WriteRune(c)
		if c == '\n' {
			p.midLine = false
		}
	}
	if _, err := io.WriteString(p.w, sb.String()); err != nil {
		return 0, err
	}
	return len(b), nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
