package agentloop

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// GrepMatch is one matching line.
type GrepMatch struct {
	Path string
	Line int
	Text string
}

// ExecutionEnvironment abstracts where tool operations run.
type ExecutionEnvironment interface {
	// File operations.
	ReadFile(path string) (string, error)
	WriteFile(path string, content string) error

	// Search operations.
	Glob(pattern string, path string) ([]string, error)
	Grep(ctx context.Context, pattern string, path string, maxResults int) ([]GrepMatch, error)

	// Command execution. onLine receives each output line as it arrives.
	ExecCommand(ctx context.Context, command string, onLine func(string)) (string, error)

	// Metadata.
	WorkingDirectory() string
	Platform() string
}

// sensitiveEnvPatterns are case-insensitive suffixes for environment variables
// that are not passed to subprocesses.
var sensitiveEnvPatterns = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are always included regardless of filtering.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"GOPATH": true, "GOROOT": true, "CARGO_HOME": true,
	"NVM_DIR": true, "RUSTUP_HOME": true, "PYENV_ROOT": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitiveEnvPatterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}

// filterEnvironment returns environ without sensitive variables.
func filterEnvironment(environ []string) []string {
	var filtered []string
	for _, env := range environ {
		name, _, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if safeEnvVars[name] || !isSensitiveEnvVar(name) {
			filtered = append(filtered, env)
		}
	}
	return filtered
}

// LocalExecutionEnvironment runs tools on the local machine.
type LocalExecutionEnvironment struct {
	workingDir string
	sandbox    *Sandbox
}

// NewLocalExecutionEnvironment creates a local execution environment rooted
// at workingDir. Commands run through sandbox.
func NewLocalExecutionEnvironment(workingDir string, sandbox *Sandbox) *LocalExecutionEnvironment {
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}
	if sandbox == nil {
		sandbox = NewSandbox(workingDir, DefaultCommandTimeout)
	}
	return &LocalExecutionEnvironment{workingDir: workingDir, sandbox: sandbox}
}

func (e *LocalExecutionEnvironment) WorkingDirectory() string {
	return e.workingDir
}

func (e *LocalExecutionEnvironment) Platform() string {
	return runtime.GOOS
}

func (e *LocalExecutionEnvironment) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.workingDir, path)
}

// displayPath renders path relative to the working directory when it lies
// inside it.
func (e *LocalExecutionEnvironment) displayPath(path string) string {
	rel, err := filepath.Rel(e.workingDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func (e *LocalExecutionEnvironment) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(e.resolvePath(path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (e *LocalExecutionEnvironment) WriteFile(path string, content string) error {
	resolved := e.resolvePath(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return os.WriteFile(resolved, []byte(content), 0o644)
}

func (e *LocalExecutionEnvironment) ExecCommand(ctx context.Context, command string, onLine func(string)) (string, error) {
	return e.sandbox.Run(ctx, command, onLine)
}

// Glob expands pattern (with ** support) under path and returns matches
// newest first. Directories sort after files.
func (e *LocalExecutionEnvironment) Glob(pattern string, path string) ([]string, error) {
	root := e.workingDir
	if path != "" {
		root = e.resolvePath(path)
	}
	pattern = filepath.ToSlash(pattern)
	if strings.HasPrefix(pattern, "/") {
		// fs.FS patterns are unrooted; move the static prefix into root.
		var base string
		base, pattern = doublestar.SplitPattern(pattern)
		root = filepath.FromSlash(base)
	}
	pattern = strings.TrimPrefix(pattern, "./")
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob pattern %q", pattern)
	}

	matches, err := doublestar.Glob(os.DirFS(root), pattern)
	if err != nil {
		return nil, err
	}

	type entry struct {
		path  string
		mtime int64
	}
	entries := make([]entry, 0, len(matches))
	for _, m := range matches {
		full := filepath.Join(root, filepath.FromSlash(m))
		var mtime int64
		if info, err := os.Stat(full); err == nil && info.Mode().IsRegular() {
			mtime = info.ModTime().UnixNano()
		}
		entries = append(entries, entry{path: e.displayPath(full), mtime: mtime})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].mtime > entries[j].mtime
	})

	result := make([]string, len(entries))
	for i, en := range entries {
		result[i] = en.path
	}
	return result, nil
}

// Grep searches every regular file under path for pattern and stops after
// maxResults matches. Unreadable and binary files are skipped.
func (e *LocalExecutionEnvironment) Grep(ctx context.Context, pattern string, path string, maxResults int) ([]GrepMatch, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	root := e.workingDir
	if path != "" {
		root = e.resolvePath(path)
	}

	var matches []GrepMatch

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if p != root && (d.Name() == ".git" || d.Name() == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		found, err := grepFile(p, re, maxResults-len(matches))
		if err != nil {
			return nil
		}
		for i := range found {
			found[i].Path = e.displayPath(p)
		}
		matches = append(matches, found...)
		if maxResults > 0 && len(matches) >= maxResults {
			return errGrepLimit
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, errGrepLimit) {
		return matches, walkErr
	}
	return matches, nil
}

var errGrepLimit = errors.New("grep result limit reached")

func grepFile(path string, re *regexp.Regexp, limit int) ([]GrepMatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var found []GrepMatch
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if lineNum == 1 && strings.ContainsRune(line, 0) {
			return nil, nil
		}
		if re.MatchString(line) {
			found = append(found, GrepMatch{Line: lineNum, Text: strings.TrimRight(line, " \t\r")})
			if limit > 0 && len(found) >= limit {
				break
			}
		}
	}
	return found, scanner.Err()
}
