package agentloop

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCoreTools(t *testing.T) (*ToolRegistry, string) {
	t.Helper()
	dir := t.TempDir()
	reg := NewToolRegistry()
	RegisterCoreTools(reg, NewLocalExecutionEnvironment(dir, nil))
	return reg, dir
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCoreToolNames(t *testing.T) {
	reg, _ := newCoreTools(t)
	assert.Equal(t, []string{"read", "write", "edit", "glob", "grep", "bash"}, reg.Names())
	assert.Equal(t, []string{"path", "content"}, reg.Get("write").Descriptor.Required())
	assert.Equal(t, []string{"path"}, reg.Get("read").Descriptor.Required())
}

func TestReadTool(t *testing.T) {
	reg, dir := newCoreTools(t)
	writeTestFile(t, dir, "f.txt", "one\ntwo\nthree\n")
	ctx := context.Background()

	assert.Equal(t, "   1| one\n   2| two\n   3| three\n",
		reg.Invoke(ctx, "read", map[string]any{"path": "f.txt"}))
	assert.Equal(t, "   2| two\n",
		reg.Invoke(ctx, "read", map[string]any{"path": "f.txt", "offset": 1.0, "limit": 1.0}))
	assert.Equal(t, "",
		reg.Invoke(ctx, "read", map[string]any{"path": "f.txt", "offset": 10.0}))

	out := reg.Invoke(ctx, "read", map[string]any{"path": "missing.txt"})
	assert.True(t, strings.HasPrefix(out, ErrorPrefix), out)
}

func TestNumberLinesWithoutTrailingNewline(t *testing.T) {
	assert.Equal(t, "   1| a\n   2| b", numberLines("a\nb", 0, -1))
	assert.Equal(t, "", numberLines("", 0, -1))
}

func TestWriteTool(t *testing.T) {
	reg, dir := newCoreTools(t)

	out := reg.Invoke(context.Background(), "write", map[string]any{"path": "nested/dir/f.txt", "content": "hello"})
	assert.Equal(t, "ok", out)

	data, err := os.ReadFile(filepath.Join(dir, "nested", "dir", "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestEditTool(t *testing.T) {
	ctx := context.Background()

	t.Run("unique match", func(t *testing.T) {
		reg, dir := newCoreTools(t)
		path := writeTestFile(t, dir, "f.txt", "alpha beta gamma")

		out := reg.Invoke(ctx, "edit", map[string]any{"path": "f.txt", "old": "beta", "new": "BETA"})
		assert.Equal(t, "ok", out)
		data, _ := os.ReadFile(path)
		assert.Equal(t, "alpha BETA gamma", string(data))
	})

	t.Run("not found", func(t *testing.T) {
		reg, dir := newCoreTools(t)
		path := writeTestFile(t, dir, "f.txt", "alpha")

		out := reg.Invoke(ctx, "edit", map[string]any{"path": "f.txt", "old": "zeta", "new": "x"})
		assert.Equal(t, "error: old_string not found", out)
		data, _ := os.ReadFile(path)
		assert.Equal(t, "alpha", string(data))
	})

	t.Run("ambiguous without all", func(t *testing.T) {
		reg, dir := newCoreTools(t)
		path := writeTestFile(t, dir, "f.txt", "x x x")

		out := reg.Invoke(ctx, "edit", map[string]any{"path": "f.txt", "old": "x", "new": "y"})
		assert.Equal(t, "error: old_string appears 3 times, must be unique (use all=true)", out)
		data, _ := os.ReadFile(path)
		assert.Equal(t, "x x x", string(data))
	})

	t.Run("all", func(t *testing.T) {
		reg, dir := newCoreTools(t)
		path := writeTestFile(t, dir, "f.txt", "x x x")

		out := reg.Invoke(ctx, "edit", map[string]any{"path": "f.txt", "old": "x", "new": "y", "all": true})
		assert.Equal(t, "ok", out)
		data, _ := os.ReadFile(path)
		assert.Equal(t, "y y y", string(data))
	})
}

func TestGlobTool(t *testing.T) {
	reg, dir := newCoreTools(t)
	ctx := context.Background()

	older := writeTestFile(t, dir, "a.go", "package a\n")
	newer := writeTestFile(t, dir, filepath.Join("sub", "b.go"), "package b\n")
	writeTestFile(t, dir, "notes.md", "# notes\n")

	now := time.Now()
	require.NoError(t, os.Chtimes(older, now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(newer, now, now))

	out := reg.Invoke(ctx, "glob", map[string]any{"pat": "**/*.go"})
	assert.Equal(t, filepath.Join("sub", "b.go")+"\na.go", out)

	out = reg.Invoke(ctx, "glob", map[string]any{"pat": "*.go", "path": "sub"})
	assert.Equal(t, filepath.Join("sub", "b.go"), out)

	assert.Equal(t, "none", reg.Invoke(ctx, "glob", map[string]any{"pat": "*.rs"}))

	out = reg.Invoke(ctx, "glob", map[string]any{"pat": "[unclosed"})
	assert.True(t, strings.HasPrefix(out, ErrorPrefix), out)
}

func TestGrepTool(t *testing.T) {
	reg, dir := newCoreTools(t)
	ctx := context.Background()

	writeTestFile(t, dir, "a.go", "package a\n\nfunc Hello() {}\n")
	writeTestFile(t, dir, filepath.Join(".git", "HEAD"), "func Hidden\n")
	writeTestFile(t, dir, "bin.dat", "func\x00binary\n")

	out := reg.Invoke(ctx, "grep", map[string]any{"pat": `func \w+`})
	assert.Equal(t, "a.go:3:func Hello() {}", out)

	assert.Equal(t, "none", reg.Invoke(ctx, "grep", map[string]any{"pat": "nothing-matches-this"}))

	out = reg.Invoke(ctx, "grep", map[string]any{"pat": "("})
	assert.True(t, strings.HasPrefix(out, "error: invalid pattern"), out)
}

func TestGrepToolCapsResults(t *testing.T) {
	reg, dir := newCoreTools(t)
	writeTestFile(t, dir, "many.txt", strings.Repeat("hit\n", MaxGrepResults+25))

	out := reg.Invoke(context.Background(), "grep", map[string]any{"pat": "hit"})
	assert.Len(t, strings.Split(out, "\n"), MaxGrepResults)
}

func TestBashToolStreamsProgress(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a subprocess")
	}
	reg, _ := newCoreTools(t)

	var lines []string
	ctx := WithProgress(context.Background(), func(line string) {
		lines = append(lines, line)
	})

	out := reg.Invoke(ctx, "bash", map[string]any{"cmd": "echo one && echo two"})
	assert.Equal(t, "one\ntwo", out)
	assert.Equal(t, []string{"one", "two"}, lines)

	assert.Equal(t, "error: cmd must not be empty", reg.Invoke(ctx, "bash", map[string]any{"cmd": "  "}))
}
