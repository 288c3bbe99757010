package agentloop

import (
	"testing"

	"github.com/martinemde/nanocode/unifiedllm"
)

func assistantCalls(calls ...unifiedllm.ToolUseBlock) unifiedllm.Turn {
	blocks := make([]unifiedllm.ContentBlock, len(calls))
	for i, c := range calls {
		blocks[i] = c
	}
	return unifiedllm.Turn{Role: unifiedllm.RoleAssistant, Content: blocks}
}

func call(name, arg string) unifiedllm.ToolUseBlock {
	return unifiedllm.ToolUseBlock{ID: name + arg, Name: name, Arguments: map[string]any{"path": arg}}
}

func TestDetectLoop(t *testing.T) {
	tests := []struct {
		name   string
		turns  []unifiedllm.Turn
		window int
		want   bool
	}{
		{
			name:   "too few calls",
			turns:  []unifiedllm.Turn{assistantCalls(call("read", "a"))},
			window: 4,
			want:   false,
		},
		{
			name: "same call repeated",
			turns: []unifiedllm.Turn{
				assistantCalls(call("read", "a")),
				assistantCalls(call("read", "a")),
				assistantCalls(call("read", "a"), call("read", "a")),
			},
			window: 4,
			want:   true,
		},
		{
			name: "alternating pair",
			turns: []unifiedllm.Turn{
				assistantCalls(call("read", "a"), call("bash", "b")),
				assistantCalls(call("read", "a"), call("bash", "b")),
			},
			window: 4,
			want:   true,
		},
		{
			name: "varied calls",
			turns: []unifiedllm.Turn{
				assistantCalls(call("read", "a"), call("read", "b")),
				assistantCalls(call("read", "c"), call("read", "d")),
			},
			window: 4,
			want:   false,
		},
		{
			name: "user turns ignored",
			turns: []unifiedllm.Turn{
				assistantCalls(call("glob", "*")),
				{Role: unifiedllm.RoleUser, Content: []unifiedllm.ContentBlock{unifiedllm.ToolResultBlock{ToolUseID: "glob*"}}},
				assistantCalls(call("glob", "*")),
			},
			window: 2,
			want:   true,
		},
		{
			name:   "window of one never loops",
			turns:  []unifiedllm.Turn{assistantCalls(call("read", "a"))},
			window: 1,
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectLoop(tt.turns, tt.window); got != tt.want {
				t.Errorf("DetectLoop() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToolCallSignatureIgnoresKeyOrder(t *testing.T) {
	a := toolCallSignature("edit", map[string]any{"path": "x", "old": "a", "new": "b"})
	b := toolCallSignature("edit", map[string]any{"new": "b", "old": "a", "path": "x"})
	if a != b {
		t.Errorf("expected equal signatures, got %s and %s", a, b)
	}
	if a == toolCallSignature("write", map[string]any{"path": "x", "old": "a", "new": "b"}) {
		t.Error("expected the tool name to be part of the signature")
	}
}
