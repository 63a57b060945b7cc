//go:build unix

package runner

import (
	"os/exec"
	"syscall"
)

// configureProcess starts scripts in their own process group so cancellation
// reaches every child the script spawned
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
