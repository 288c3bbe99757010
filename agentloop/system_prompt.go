package agentloop

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
)

// knownTools are reported in the system info when found on PATH.
var knownTools = []string{"git", "npm", "node", "pip", "docker", "make", "go"}

// SystemInfo describes the host the agent runs on.
type SystemInfo struct {
	OS         string
	GoVersion  string
	Shell      string
	WorkingDir string
	GitBranch  string
	Tools      []string
}

// GatherSystemInfo inspects the host behind env.
func GatherSystemInfo(env ExecutionEnvironment) SystemInfo {
	info := SystemInfo{
		OS:         env.Platform(),
		GoVersion:  runtime.Version(),
		Shell:      shellName(),
		WorkingDir: env.WorkingDirectory(),
	}
	for _, tool := range knownTools {
		if _, err := exec.LookPath(tool); err == nil {
			info.Tools = append(info.Tools, tool)
		}
	}
	if slices.Contains(info.Tools, "git") {
		info.GitBranch = gitBranch(info.WorkingDir)
	}
	return info
}

// String renders the info as one line, e.g.
// "OS: linux | Go: go1.24.7 | Shell: bash | CWD: /src | Tools: git, make".
func (i SystemInfo) String() string {
	parts := []string{
		"OS: " + i.OS,
		"Go: " + i.GoVersion,
		"Shell: " + i.Shell,
		"CWD: " + i.WorkingDir,
	}
	if i.GitBranch != "" {
		parts = append(parts, "Git branch: "+i.GitBranch)
	}
	tools := "none"
	if len(i.Tools) > 0 {
		tools = strings.Join(i.Tools, ", ")
	}
	parts = append(parts, "Tools: "+tools)
	return strings.Join(parts, " | ")
}

// BuildSystemPrompt returns the system prompt sent with every request.
func BuildSystemPrompt(info SystemInfo) string {
	return "Concise coding assistant.\n" +
		info.String() + "\n" +
		"Provide OS-appropriate commands and file paths based on the system information above."
}

func shellName() string {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = os.Getenv("COMSPEC")
	}
	if shell == "" {
		return "unknown"
	}
	return filepath.Base(shell)
}

func gitBranch(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
