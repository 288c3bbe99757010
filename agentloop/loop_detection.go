package agentloop

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/martinemde/nanocode/unifiedllm"
)

// toolCallSignature is the tool name plus a short hash of its arguments.
// json.Marshal sorts map keys, so equal argument maps hash equally.
func toolCallSignature(name string, arguments map[string]any) string {
	data, err := json.Marshal(arguments)
	if err != nil {
		data = []byte(fmt.Sprint(arguments))
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", name, h[:8])
}

// recentToolCallSignatures returns up to count signatures of the most recent
// tool calls, oldest first.
func recentToolCallSignatures(turns []unifiedllm.Turn, count int) []string {
	var sigs []string
	for i := len(turns) - 1; i >= 0 && len(sigs) < count; i-- {
		if turns[i].Role != unifiedllm.RoleAssistant {
			continue
		}
		uses := turns[i].ToolUses()
		for j := len(uses) - 1; j >= 0 && len(sigs) < count; j-- {
			sigs = append(sigs, toolCallSignature(uses[j].Name, uses[j].Arguments))
		}
	}
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	return sigs
}

// DetectLoop reports whether the last windowSize tool calls repeat a pattern
// of length 1, 2 or 3.
func DetectLoop(turns []unifiedllm.Turn, windowSize int) bool {
	if windowSize <= 1 {
		return false
	}
	sigs := recentToolCallSignatures(turns, windowSize)
	if len(sigs) < windowSize {
		return false
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 {
			continue
		}
		if repeats(sigs, patternLen) {
			return true
		}
	}
	return false
}

func repeats(sigs []string, patternLen int) bool {
	for i := patternLen; i < len(sigs); i++ {
		if sigs[i] != sigs[i%patternLen] {
			return false
		}
	}
	return true
}
