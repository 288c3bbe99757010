package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTools = []ToolDescriptor{
	{
		Name:        "read",
		Description: "Read file with line numbers",
		Parameters: []Parameter{
			{Name: "path", Kind: KindString},
			{Name: "offset", Kind: KindNumber, Optional: true},
			{Name: "all", Kind: KindBoolean, Optional: true},
		},
	},
}

func toolRoundTripTurns() []Turn {
	return []Turn{
		{Role: RoleUser, Content: []ContentBlock{TextBlock{Text: "list files"}}},
		{Role: RoleAssistant, Content: []ContentBlock{
			TextBlock{Text: "Sure."},
			ToolUseBlock{ID: "toolu_1", Name: "glob", Arguments: map[string]any{"pat": "*"}},
		}},
		{Role: RoleUser, Content: []ContentBlock{
			ToolResultBlock{ToolUseID: "toolu_1", Content: "a.go\nb.go"},
		}},
	}
}

func newTestMessagesAdapter(backend Backend, endpoint string) *MessagesAdapter {
	return NewMessagesAdapter(ProviderConfig{
		Backend:    backend,
		Endpoint:   endpoint,
		Model:      "claude-opus-4-5",
		Credential: Secret("secret-key"),
		MaxTokens:  DefaultMaxTokens,
	}, nil)
}

func TestMessagesEncodeRequest(t *testing.T) {
	a := newTestMessagesAdapter(BackendAnthropic, "")

	payload, err := a.EncodeRequest(toolRoundTripTurns(), "be brief", testTools)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(payload, &body))

	assert.Equal(t, "claude-opus-4-5", body["model"])
	assert.Equal(t, float64(8192), body["max_tokens"])
	assert.Equal(t, "be brief", body["system"])

	messages := body["messages"].([]any)
	require.Len(t, messages, 3)

	assistant := messages[1].(map[string]any)
	assert.Equal(t, "assistant", assistant["role"])
	content := assistant["content"].([]any)
	require.Len(t, content, 2)
	assert.Equal(t, map[string]any{"type": "text", "text": "Sure."}, content[0])
	assert.Equal(t, map[string]any{
		"type":  "tool_use",
		"id":    "toolu_1",
		"name":  "glob",
		"input": map[string]any{"pat": "*"},
	}, content[1])

	results := messages[2].(map[string]any)
	assert.Equal(t, "user", results["role"])
	assert.Equal(t, []any{map[string]any{
		"type":        "tool_result",
		"tool_use_id": "toolu_1",
		"content":     "a.go\nb.go",
	}}, results["content"])

	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, map[string]any{
		"name":        "read",
		"description": "Read file with line numbers",
		"input_schema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":   map[string]any{"type": "string"},
				"offset": map[string]any{"type": "integer"},
				"all":    map[string]any{"type": "boolean"},
			},
			"required": []any{"path"},
		},
	}, tools[0])
}

func TestMessagesEncodeEdgeCases(t *testing.T) {
	a := newTestMessagesAdapter(BackendAnthropic, "")

	payload, err := a.EncodeRequest([]Turn{
		{Role: RoleUser, Content: []ContentBlock{TextBlock{Text: "go"}}},
		{Role: RoleAssistant, Content: []ContentBlock{
			TextBlock{Text: ""},
			ToolUseBlock{ID: "t", Name: "bash"},
		}},
		{Role: RoleUser, Content: []ContentBlock{
			ToolResultBlock{ToolUseID: "t", Content: "", IsError: true},
		}},
	}, "", nil)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(payload, &body))

	_, hasSystem := body["system"]
	assert.False(t, hasSystem)
	_, hasTools := body["tools"]
	assert.False(t, hasTools)

	messages := body["messages"].([]any)
	assistant := messages[1].(map[string]any)["content"].([]any)
	require.Len(t, assistant, 1, "empty text blocks are dropped")
	assert.Equal(t, map[string]any{}, assistant[0].(map[string]any)["input"])

	result := messages[2].(map[string]any)["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "", result["content"], "empty tool output is still sent")
	assert.Equal(t, true, result["is_error"])
}

func TestMessagesDecodeResponse(t *testing.T) {
	a := newTestMessagesAdapter(BackendAnthropic, "")

	blocks, err := a.DecodeResponse([]byte(`{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"content": [
			{"type": "text", "text": "Listing."},
			{"type": "tool_use", "id": "toolu_9", "name": "glob", "input": {"pat": "*"}},
			{"type": "tool_use", "name": "bash", "input": {}},
			{"type": "thinking", "thinking": "hmm"}
		],
		"stop_reason": "tool_use"
	}`))
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	assert.Equal(t, TextBlock{Text: "Listing."}, blocks[0])
	assert.Equal(t, ToolUseBlock{ID: "toolu_9", Name: "glob", Arguments: map[string]any{"pat": "*"}}, blocks[1])

	synthesized := blocks[2].(ToolUseBlock)
	assert.NotEmpty(t, synthesized.ID)
	assert.Equal(t, "bash", synthesized.Name)
	assert.Empty(t, synthesized.Arguments)
}

func TestMessagesDecodeErrors(t *testing.T) {
	a := newTestMessagesAdapter(BackendOpenRouter, "")

	_, err := a.DecodeResponse([]byte(`not json`))
	var formatErr *ResponseFormatError
	assert.True(t, errors.As(err, &formatErr))

	_, err = a.DecodeResponse([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, "overloaded_error", pe.ErrorCode)
	assert.Equal(t, "openrouter", pe.Provider)
}

func TestMessagesTextRoundTrip(t *testing.T) {
	a := newTestMessagesAdapter(BackendAnthropic, "")
	turns := []Turn{
		{Role: RoleUser, Content: []ContentBlock{TextBlock{Text: "hello"}}},
		{Role: RoleAssistant, Content: []ContentBlock{TextBlock{Text: "hi there"}, TextBlock{Text: "again"}}},
	}

	payload, err := a.EncodeRequest(turns, "", nil)
	require.NoError(t, err)

	// Echo the last encoded message back as the response envelope.
	var req messagesRequest
	require.NoError(t, json.Unmarshal(payload, &req))
	last := req.Messages[len(req.Messages)-1]
	assert.Equal(t, string(RoleAssistant), last.Role)
	echo, err := json.Marshal(messagesResponse{Type: "message", Content: last.Content})
	require.NoError(t, err)

	blocks, err := a.DecodeResponse(echo)
	require.NoError(t, err)
	assert.Equal(t, turns[1].Content, blocks)
}

func TestMessagesCompleteHeaders(t *testing.T) {
	tests := []struct {
		backend    Backend
		wantHeader string
		wantValue  string
		absent     string
	}{
		{BackendAnthropic, "x-api-key", "secret-key", "Authorization"},
		{BackendOpenRouter, "Authorization", "Bearer secret-key", "x-api-key"},
	}

	for _, tt := range tests {
		t.Run(string(tt.backend), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/v1/messages", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.Equal(t, AnthropicVersion, r.Header.Get("anthropic-version"))
				assert.Equal(t, tt.wantValue, r.Header.Get(tt.wantHeader))
				assert.Empty(t, r.Header.Get(tt.absent))

				body, _ := io.ReadAll(r.Body)
				assert.Contains(t, string(body), `"messages"`)

				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"type":"message","content":[{"type":"text","text":"done"}]}`)
			}))
			defer srv.Close()

			a := newTestMessagesAdapter(tt.backend, srv.URL+"/v1/messages")
			resp, err := a.Complete(context.Background(), Request{
				Turns: []Turn{{Role: RoleUser, Content: []ContentBlock{TextBlock{Text: "hi"}}}},
			})
			require.NoError(t, err)
			assert.Equal(t, "done", resp.Text())
			assert.Equal(t, string(tt.backend), resp.Provider)
		})
	}
}

func TestMessagesCompleteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	a := newTestMessagesAdapter(BackendAnthropic, srv.URL)
	_, err := a.Complete(context.Background(), Request{
		Turns: []Turn{{Role: RoleUser, Content: []ContentBlock{TextBlock{Text: "hi"}}}},
	})

	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "invalid x-api-key", authErr.Message)
	assert.Equal(t, "authentication_error", authErr.ErrorCode)
}

func TestMessagesCompleteNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	a := newTestMessagesAdapter(BackendAnthropic, endpoint)
	_, err := a.Complete(context.Background(), Request{
		Turns: []Turn{{Role: RoleUser, Content: []ContentBlock{TextBlock{Text: "hi"}}}},
	})

	var netErr *NetworkError
	assert.True(t, errors.As(err, &netErr))
}
