//go:build !windows

package agentloop

import (
	"os/exec"
	"syscall"
)

func shellCommand(command string) (string, []string) {
	if path, err := exec.LookPath("bash"); err == nil {
		return path, []string{"-c", command}
	}
	return "/bin/sh", []string{"-c", command}
}

// prepareCommand puts the shell in its own process group so a kill reaches
// every descendant.
func prepareCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
