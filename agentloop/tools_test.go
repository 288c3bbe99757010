package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/nanocode/unifiedllm"
)

func echoTool(name string) (unifiedllm.ToolDescriptor, ToolExecutor) {
	return unifiedllm.ToolDescriptor{
			Name:        name,
			Description: "echo " + name,
			Parameters:  []unifiedllm.Parameter{{Name: "text", Kind: unifiedllm.KindString}},
		}, func(ctx context.Context, args Arguments) (string, error) {
			return args.String("text")
		}
}

func TestToolRegistryOrder(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(echoTool("b"))
	reg.Register(echoTool("a"))
	reg.Register(echoTool("c"))

	assert.Equal(t, []string{"b", "a", "c"}, reg.Names())
	assert.Equal(t, 3, reg.Count())

	// Replacing keeps the original position.
	desc, _ := echoTool("a")
	desc.Description = "replaced"
	reg.Register(desc, func(ctx context.Context, args Arguments) (string, error) { return "new", nil })

	defs := reg.DescribeAll()
	require.Len(t, defs, 3)
	assert.Equal(t, "a", defs[1].Name)
	assert.Equal(t, "replaced", defs[1].Description)
	assert.Equal(t, "new", reg.Invoke(context.Background(), "a", nil))
}

func TestToolRegistryCopiesParameters(t *testing.T) {
	reg := NewToolRegistry()
	desc, exec := echoTool("x")
	reg.Register(desc, exec)

	desc.Parameters[0].Name = "mutated"
	assert.Equal(t, "text", reg.Get("x").Descriptor.Parameters[0].Name)
}

func TestInvokeNeverFails(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(echoTool("echo"))
	reg.Register(unifiedllm.ToolDescriptor{Name: "fails"}, func(ctx context.Context, args Arguments) (string, error) {
		return "", errors.New("file not found")
	})
	reg.Register(unifiedllm.ToolDescriptor{Name: "panics"}, func(ctx context.Context, args Arguments) (string, error) {
		panic("boom")
	})

	tests := []struct {
		name   string
		tool   string
		args   map[string]any
		want   string
		failed bool
	}{
		{"ok", "echo", map[string]any{"text": "hi"}, "hi", false},
		{"ok with error-like text", "echo", map[string]any{"text": "error: pathspec 'foo' did not match"}, "error: pathspec 'foo' did not match", false},
		{"unknown tool", "nope", nil, `error: unknown tool "nope"`, true},
		{"missing argument", "echo", nil, `error: missing required argument "text"`, true},
		{"wrong type", "echo", map[string]any{"text": 3.0}, `error: argument "text" must be a string, got float64`, true},
		{"executor error", "fails", nil, "error: file not found", true},
		{"panic", "panics", nil, "error: panics panicked: boom", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, failed := reg.Dispatch(context.Background(), tt.tool, tt.args)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.failed, failed)
			assert.Equal(t, tt.want, reg.Invoke(context.Background(), tt.tool, tt.args))
		})
	}
}

func TestInvokeMalformedArgumentsAlwaysPrefixed(t *testing.T) {
	reg := NewToolRegistry()
	RegisterCoreTools(reg, NewLocalExecutionEnvironment(t.TempDir(), nil))

	malformed := []map[string]any{
		nil,
		{},
		{"path": 1.0},
		{"path": true, "content": nil},
		{"pat": []any{"x"}},
		{"cmd": map[string]any{}},
		{"path": "x", "offset": 1.5},
		{"path": "x", "old": "a", "new": "b", "all": "maybe"},
	}
	for _, name := range reg.Names() {
		for _, args := range malformed {
			out := reg.Invoke(context.Background(), name, args)
			assert.True(t, strings.HasPrefix(out, ErrorPrefix), "%s(%v) = %q", name, args, out)
		}
	}
}

func TestArgumentsOptionalInt(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    int
		wantErr bool
	}{
		{"absent", nil, 7, false},
		{"float", 3.0, 3, false},
		{"fractional", 3.5, 0, true},
		{"int", 4, 4, false},
		{"json number", json.Number("12"), 12, false},
		{"numeric string", "9", 9, false},
		{"bad string", "nine", 0, true},
		{"bool", true, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := Arguments{}
			if tt.value != nil {
				args["n"] = tt.value
			}
			got, err := args.OptionalInt("n", 7)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArgumentsOptionalBool(t *testing.T) {
	args := Arguments{"a": true, "b": "false", "c": 1.0}

	v, err := args.OptionalBool("a", false)
	require.NoError(t, err)
	assert.True(t, v)

	v, err = args.OptionalBool("b", true)
	require.NoError(t, err)
	assert.False(t, v)

	_, err = args.OptionalBool("c", false)
	assert.Error(t, err)

	v, err = args.OptionalBool("missing", true)
	require.NoError(t, err)
	assert.True(t, v)
}
