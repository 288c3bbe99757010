//go:build windows

package agentloop

import "os/exec"

func shellCommand(command string) (string, []string) {
	return "cmd.exe", []string{"/c", command}
}

func prepareCommand(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
