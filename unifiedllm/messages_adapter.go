package unifiedllm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// AnthropicVersion is sent on every Messages API request.
const AnthropicVersion = "2023-06-01"

// MessagesAdapter speaks the Messages wire protocol used by both the Anthropic
// API and the OpenRouter proxy. The two differ only in endpoint and auth
// header.
type MessagesAdapter struct {
	cfg    ProviderConfig
	client *http.Client
}

// NewMessagesAdapter creates a Messages adapter for an Anthropic or OpenRouter
// config.
func NewMessagesAdapter(cfg ProviderConfig, client *http.Client) *MessagesAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &MessagesAdapter{cfg: cfg, client: client}
}

func (a *MessagesAdapter) Name() string { return string(a.cfg.Backend) }

type messagesRequest struct {
	Model     string            `json:"model"`
	MaxTokens int               `json:"max_tokens"`
	System    string            `json:"system,omitempty"`
	Messages  []messagesMessage `json:"messages"`
	Tools     []messagesTool    `json:"tools,omitempty"`
}

type messagesMessage struct {
	Role    string            `json:"role"`
	Content []messagesContent `json:"content"`
}

type messagesContent struct {
	Type      string          `json:"type"`
	Text      *string         `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   *string         `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type messagesTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema messagesSchema `json:"input_schema"`
}

type messagesSchema struct {
	Type       string                      `json:"type"`
	Properties map[string]messagesProperty `json:"properties"`
	Required   []string                    `json:"required"`
}

type messagesProperty struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

type messagesResponse struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Model   string            `json:"model"`
	Content []messagesContent `json:"content"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// messagesType maps a parameter kind to the lowercase schema tag. Numbers are
// declared as integers since every numeric tool argument is a line count or
// offset.
func messagesType(kind ParamKind) string {
	switch kind {
	case KindNumber:
		return "integer"
	case KindBoolean:
		return "boolean"
	default:
		return "string"
	}
}

func (a *MessagesAdapter) EncodeRequest(turns []Turn, system string, tools []ToolDescriptor) ([]byte, error) {
	req := messagesRequest{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		System:    system,
		Messages:  make([]messagesMessage, 0, len(turns)),
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}

	for _, turn := range turns {
		msg := messagesMessage{Role: string(turn.Role)}
		for _, block := range turn.Content {
			switch b := block.(type) {
			case TextBlock:
				if b.Text == "" {
					continue
				}
				text := b.Text
				msg.Content = append(msg.Content, messagesContent{Type: "text", Text: &text})
			case ToolUseBlock:
				input, err := encodeArguments(b.Arguments)
				if err != nil {
					return nil, fmt.Errorf("encode arguments for %s: %w", b.Name, err)
				}
				msg.Content = append(msg.Content, messagesContent{
					Type:  "tool_use",
					ID:    b.ID,
					Name:  b.Name,
					Input: input,
				})
			case ToolResultBlock:
				content := b.Content
				msg.Content = append(msg.Content, messagesContent{
					Type:      "tool_result",
					ToolUseID: b.ToolUseID,
					Content:   &content,
					IsError:   b.IsError,
				})
			}
		}
		if len(msg.Content) == 0 {
			continue
		}
		req.Messages = append(req.Messages, msg)
	}

	for _, td := range tools {
		schema := messagesSchema{
			Type:       "object",
			Properties: make(map[string]messagesProperty, len(td.Parameters)),
			Required:   td.Required(),
		}
		for _, p := range td.Parameters {
			schema.Properties[p.Name] = messagesProperty{Type: messagesType(p.Kind), Description: p.Description}
		}
		req.Tools = append(req.Tools, messagesTool{
			Name:        td.Name,
			Description: td.Description,
			InputSchema: schema,
		})
	}

	return json.Marshal(req)
}

func (a *MessagesAdapter) DecodeResponse(payload []byte) ([]ContentBlock, error) {
	var resp messagesResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, malformed(a.Name(), err)
	}
	if resp.Error != nil {
		return nil, &ProviderError{
			SDKError:  SDKError{Message: resp.Error.Message},
			Provider:  a.Name(),
			ErrorCode: resp.Error.Type,
		}
	}

	blocks := make([]ContentBlock, 0, len(resp.Content))
	for _, item := range resp.Content {
		switch item.Type {
		case "text":
			if item.Text != nil {
				blocks = append(blocks, TextBlock{Text: *item.Text})
			}
		case "tool_use":
			args, err := decodeArguments(item.Input)
			if err != nil {
				return nil, malformed(a.Name(), fmt.Errorf("tool_use %s input: %w", item.Name, err))
			}
			id := item.ID
			if id == "" {
				id = "toolu_" + uuid.NewString()
			}
			blocks = append(blocks, ToolUseBlock{ID: id, Name: item.Name, Arguments: args})
		}
	}
	return blocks, nil
}

func (a *MessagesAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	body, err := a.EncodeRequest(req.Turns, req.System, req.Tools)
	if err != nil {
		return nil, &SDKError{Message: "encode request", Cause: err}
	}

	headers := http.Header{}
	headers.Set("anthropic-version", AnthropicVersion)
	if a.cfg.Backend == BackendOpenRouter {
		headers.Set("Authorization", "Bearer "+a.cfg.Credential.Reveal())
	} else {
		headers.Set("x-api-key", a.cfg.Credential.Reveal())
	}

	payload, err := postJSON(ctx, a.client, a.Name(), a.cfg.Endpoint, headers, body)
	if err != nil {
		return nil, err
	}
	blocks, err := a.DecodeResponse(payload)
	if err != nil {
		return nil, err
	}
	return &Response{Provider: a.Name(), Model: a.cfg.Model, Content: blocks}, nil
}

func encodeArguments(args map[string]any) (json.RawMessage, error) {
	if len(args) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return json.Marshal(args)
}

func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	args := map[string]any{}
	if len(raw) == 0 || string(raw) == "null" {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return args, nil
}
