package agentloop

import (
	"context"
	"fmt"
	"strings"

	"github.com/martinemde/nanocode/unifiedllm"
)

// MaxGrepResults caps the number of matches the grep tool returns.
const MaxGrepResults = 50

// noMatches is returned by glob and grep when nothing matched.
const noMatches = "none"

// RegisterCoreTools registers read, write, edit, glob, grep and bash on reg.
// The tools delegate to env.
func RegisterCoreTools(reg *ToolRegistry, env ExecutionEnvironment) {
	registerRead(reg, env)
	registerWrite(reg, env)
	registerEdit(reg, env)
	registerGlob(reg, env)
	registerGrep(reg, env)
	registerBash(reg, env)
}

func registerRead(reg *ToolRegistry, env ExecutionEnvironment) {
	reg.Register(unifiedllm.ToolDescriptor{
		Name:        "read",
		Description: "Read file with line numbers (file path, not directory)",
		Parameters: []unifiedllm.Parameter{
			{Name: "path", Kind: unifiedllm.KindString},
			{Name: "offset", Kind: unifiedllm.KindNumber, Optional: true, Description: "0-based line to start from"},
			{Name: "limit", Kind: unifiedllm.KindNumber, Optional: true, Description: "maximum number of lines"},
		},
	}, func(ctx context.Context, args Arguments) (string, error) {
		path, err := args.String("path")
		if err != nil {
			return "", err
		}
		offset, err := args.OptionalInt("offset", 0)
		if err != nil {
			return "", err
		}
		limit, err := args.OptionalInt("limit", -1)
		if err != nil {
			return "", err
		}
		content, err := env.ReadFile(path)
		if err != nil {
			return "", err
		}
		return numberLines(content, offset, limit), nil
	})
}

// numberLines renders lines[offset:offset+limit] as "%4d| line". A negative
// limit means to the end of the file.
func numberLines(content string, offset, limit int) string {
	lines := strings.SplitAfter(content, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(lines) {
		return ""
	}
	end := len(lines)
	if limit >= 0 && offset+limit < end {
		end = offset + limit
	}

	var sb strings.Builder
	for i := offset; i < end; i++ {
		fmt.Fprintf(&sb, "%4d| %s", i+1, lines[i])
	}
	return sb.String()
}

func registerWrite(reg *ToolRegistry, env ExecutionEnvironment) {
	reg.Register(unifiedllm.ToolDescriptor{
		Name:        "write",
		Description: "Write content to file",
		Parameters: []unifiedllm.Parameter{
			{Name: "path", Kind: unifiedllm.KindString},
			{Name: "content", Kind: unifiedllm.KindString},
		},
	}, func(ctx context.Context, args Arguments) (string, error) {
		path, err := args.String("path")
		if err != nil {
			return "", err
		}
		content, err := args.String("content")
		if err != nil {
			return "", err
		}
		if err := env.WriteFile(path, content); err != nil {
			return "", err
		}
		return "ok", nil
	})
}

func registerEdit(reg *ToolRegistry, env ExecutionEnvironment) {
	reg.Register(unifiedllm.ToolDescriptor{
		Name:        "edit",
		Description: "Replace old with new in file (old must be unique unless all=true)",
		Parameters: []unifiedllm.Parameter{
			{Name: "path", Kind: unifiedllm.KindString},
			{Name: "old", Kind: unifiedllm.KindString},
			{Name: "new", Kind: unifiedllm.KindString},
			{Name: "all", Kind: unifiedllm.KindBoolean, Optional: true},
		},
	}, func(ctx context.Context, args Arguments) (string, error) {
		path, err := args.String("path")
		if err != nil {
			return "", err
		}
		oldString, err := args.String("old")
		if err != nil {
			return "", err
		}
		newString, err := args.String("new")
		if err != nil {
			return "", err
		}
		replaceAll, err := args.OptionalBool("all", false)
		if err != nil {
			return "", err
		}

		text, err := env.ReadFile(path)
		if err != nil {
			return "", err
		}
		updated, err := replaceText(text, oldString, newString, replaceAll)
		if err != nil {
			return "", err
		}
		if err := env.WriteFile(path, updated); err != nil {
			return "", err
		}
		return "ok", nil
	})
}

// replaceText replaces old with new in text. Without replaceAll, old must
// occur exactly once.
func replaceText(text, old, new string, replaceAll bool) (string, error) {
	if old == "" {
		return "", fmt.Errorf("old_string must not be empty")
	}
	count := strings.Count(text, old)
	if count == 0 {
		return "", fmt.Errorf("old_string not found")
	}
	if replaceAll {
		return strings.ReplaceAll(text, old, new), nil
	}
	if count > 1 {
		return "", fmt.Errorf("old_string appears %d times, must be unique (use all=true)", count)
	}
	return strings.Replace(text, old, new, 1), nil
}

func registerGlob(reg *ToolRegistry, env ExecutionEnvironment) {
	reg.Register(unifiedllm.ToolDescriptor{
		Name:        "glob",
		Description: "Find files by pattern, sorted by mtime",
		Parameters: []unifiedllm.Parameter{
			{Name: "pat", Kind: unifiedllm.KindString},
			{Name: "path", Kind: unifiedllm.KindString, Optional: true},
		},
	}, func(ctx context.Context, args Arguments) (string, error) {
		pattern, err := args.String("pat")
		if err != nil {
			return "", err
		}
		path, err := args.OptionalString("path", "")
		if err != nil {
			return "", err
		}
		files, err := env.Glob(pattern, path)
		if err != nil {
			return "", err
		}
		if len(files) == 0 {
			return noMatches, nil
		}
		return strings.Join(files, "\n"), nil
	})
}

func registerGrep(reg *ToolRegistry, env ExecutionEnvironment) {
	reg.Register(unifiedllm.ToolDescriptor{
		Name:        "grep",
		Description: "Search files for regex pattern",
		Parameters: []unifiedllm.Parameter{
			{Name: "pat", Kind: unifiedllm.KindString},
			{Name: "path", Kind: unifiedllm.KindString, Optional: true},
		},
	}, func(ctx context.Context, args Arguments) (string, error) {
		pattern, err := args.String("pat")
		if err != nil {
			return "", err
		}
		path, err := args.OptionalString("path", "")
		if err != nil {
			return "", err
		}
		matches, err := env.Grep(ctx, pattern, path, MaxGrepResults)
		if err != nil {
			return "", err
		}
		if len(matches) == 0 {
			return noMatches, nil
		}
		hits := make([]string, len(matches))
		for i, m := range matches {
			hits[i] = fmt.Sprintf("%s:%d:%s", m.Path, m.Line, m.Text)
		}
		return strings.Join(hits, "\n"), nil
	})
}

func registerBash(reg *ToolRegistry, env ExecutionEnvironment) {
	reg.Register(unifiedllm.ToolDescriptor{
		Name:        "bash",
		Description: "Run shell command",
		Parameters: []unifiedllm.Parameter{
			{Name: "cmd", Kind: unifiedllm.KindString},
		},
	}, func(ctx context.Context, args Arguments) (string, error) {
		command, err := args.String("cmd")
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(command) == "" {
			return "", fmt.Errorf("cmd must not be empty")
		}
		return env.ExecCommand(ctx, command, progressFromContext(ctx))
	})
}
