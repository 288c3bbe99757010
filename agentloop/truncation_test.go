package agentloop

import (
	"strings"
	"testing"
)

func TestTruncateOutputHeadTail(t *testing.T) {
	output := strings.Repeat("a", 50) + strings.Repeat("b", 50)
	got := TruncateOutput(output, 20, TruncateHeadTail)

	if !strings.HasPrefix(got, strings.Repeat("a", 10)) {
		t.Errorf("expected head preserved, got %q", got)
	}
	if !strings.HasSuffix(got, strings.Repeat("b", 10)) {
		t.Errorf("expected tail preserved, got %q", got)
	}
	if !strings.Contains(got, "80 characters were removed from the middle") {
		t.Errorf("expected removal notice, got %q", got)
	}
}

func TestTruncateOutputTail(t *testing.T) {
	output := strings.Repeat("a", 50) + strings.Repeat("b", 10)
	got := TruncateOutput(output, 10, TruncateTail)

	if !strings.HasSuffix(got, strings.Repeat("b", 10)) {
		t.Errorf("expected last 10 characters kept, got %q", got)
	}
	if !strings.HasPrefix(got, "[WARNING: Tool output was truncated. First 50 characters were removed.]") {
		t.Errorf("expected leading notice, got %q", got)
	}
}

func TestTruncateOutputUnderLimit(t *testing.T) {
	if got := TruncateOutput("short", 100, TruncateHeadTail); got != "short" {
		t.Errorf("expected unchanged output, got %q", got)
	}
	if got := TruncateOutput("short", 0, TruncateHeadTail); got != "short" {
		t.Errorf("expected a zero limit to disable truncation, got %q", got)
	}
}

func TestTruncateLines(t *testing.T) {
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = string(rune('0' + i))
	}
	got := TruncateLines(strings.Join(lines, "\n"), 4)

	want := "0\n1\n[... 6 lines omitted ...]\n8\n9"
	if got != want {
		t.Errorf("TruncateLines = %q, want %q", got, want)
	}
}

func TestTruncateToolOutput(t *testing.T) {
	many := strings.Repeat("line\n", 300)

	got := TruncateToolOutput(many, "bash", nil, nil)
	if !strings.Contains(got, "lines omitted") {
		t.Error("expected bash default line limit to apply")
	}

	got = TruncateToolOutput(many, "read", nil, nil)
	if got != many {
		t.Error("expected read output under its limits to be unchanged")
	}

	got = TruncateToolOutput(many, "read", nil, map[string]int{"read": 10})
	if !strings.Contains(got, "lines omitted") {
		t.Error("expected configured line limit to apply")
	}

	got = TruncateToolOutput(many, "bash", nil, map[string]int{"bash": 0})
	if got != many {
		t.Error("expected a zero line limit to disable line truncation")
	}

	got = TruncateToolOutput(strings.Repeat("x", 500), "write", map[string]int{"write": 100}, nil)
	if !strings.HasSuffix(got, strings.Repeat("x", 100)) || !strings.HasPrefix(got, "[WARNING") {
		t.Errorf("expected tail truncation with a configured limit, got %q", got)
	}
}
