package unifiedllm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"google.golang.org/genai"
)

const (
	// NoResponseNotice is returned as a single text block when Gemini answers
	// with no candidates.
	NoResponseNotice = "No response from Gemini."
	// EmptyResponseNotice is returned when the first candidate has no content.
	EmptyResponseNotice = "Empty response from Gemini."

	fallbackFunctionResponseName = "tool_result"
)

// GeminiAdapter speaks the generateContent wire protocol. The request and
// response envelopes reuse the genai SDK's JSON types; transport is a plain
// POST with the key in the query string.
type GeminiAdapter struct {
	cfg    ProviderConfig
	client *http.Client
}

// NewGeminiAdapter creates a Gemini adapter.
func NewGeminiAdapter(cfg ProviderConfig, client *http.Client) *GeminiAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &GeminiAdapter{cfg: cfg, client: client}
}

func (a *GeminiAdapter) Name() string { return string(BackendGemini) }

type geminiRequest struct {
	Contents          []*genai.Content `json:"contents"`
	Tools             []*genai.Tool    `json:"tools,omitempty"`
	SystemInstruction *genai.Content   `json:"systemInstruction,omitempty"`
}

func geminiType(kind ParamKind) genai.Type {
	switch kind {
	case KindNumber:
		return genai.TypeNumber
	case KindBoolean:
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

func geminiRole(role Role) string {
	if role == RoleUser {
		return genai.RoleUser
	}
	return genai.RoleModel
}

func (a *GeminiAdapter) EncodeRequest(turns []Turn, system string, tools []ToolDescriptor) ([]byte, error) {
	req := geminiRequest{Contents: make([]*genai.Content, 0, len(turns))}

	// Tool results carry only the call id; the function name is recovered
	// from the ToolUse that produced it.
	callNames := make(map[string]string)

	for _, turn := range turns {
		content := &genai.Content{Role: geminiRole(turn.Role)}
		for _, block := range turn.Content {
			switch b := block.(type) {
			case TextBlock:
				if b.Text == "" {
					continue
				}
				content.Parts = append(content.Parts, genai.NewPartFromText(b.Text))
			case ToolUseBlock:
				callNames[b.ID] = b.Name
				args := b.Arguments
				if args == nil {
					args = map[string]any{}
				}
				part := genai.NewPartFromFunctionCall(b.Name, args)
				part.ThoughtSignature = b.Signature
				content.Parts = append(content.Parts, part)
			case ToolResultBlock:
				name, ok := callNames[b.ToolUseID]
				if !ok {
					name = fallbackFunctionResponseName
				}
				content.Parts = append(content.Parts, genai.NewPartFromFunctionResponse(name, map[string]any{
					"result": b.Content,
				}))
			}
		}
		if len(content.Parts) == 0 {
			continue
		}
		req.Contents = append(req.Contents, content)
	}

	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, td := range tools {
			schema := &genai.Schema{
				Type:       genai.TypeObject,
				Properties: make(map[string]*genai.Schema, len(td.Parameters)),
				Required:   td.Required(),
			}
			for _, p := range td.Parameters {
				schema.Properties[p.Name] = &genai.Schema{Type: geminiType(p.Kind), Description: p.Description}
			}
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  schema,
			})
		}
		req.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	if system != "" {
		req.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(system)}}
	}

	return json.Marshal(req)
}

// DecodeResponse never fails on a well-formed but empty answer: no candidates
// or an empty first candidate decode to a single notice text block.
// Function calls without a backend id get "<name>_call_<index>", where index
// is the part's position in the response. The id is stable for a given
// response but not globally unique. Thought signatures ride along on the
// ToolUseBlock and are echoed back by EncodeRequest.
func (a *GeminiAdapter) DecodeResponse(payload []byte) ([]ContentBlock, error) {
	var resp genai.GenerateContentResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, malformed(a.Name(), err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return []ContentBlock{TextBlock{Text: NoResponseNotice}}, nil
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return []ContentBlock{TextBlock{Text: EmptyResponseNotice}}, nil
	}

	blocks := make([]ContentBlock, 0, len(candidate.Content.Parts))
	for i, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		switch {
		case part.FunctionCall != nil:
			fc := part.FunctionCall
			id := fc.ID
			if id == "" {
				id = fmt.Sprintf("%s_call_%d", fc.Name, i)
			}
			args := fc.Args
			if args == nil {
				args = map[string]any{}
			}
			blocks = append(blocks, ToolUseBlock{ID: id, Name: fc.Name, Arguments: args, Signature: part.ThoughtSignature})
		case part.Text != "" && !part.Thought:
			blocks = append(blocks, TextBlock{Text: part.Text})
		}
	}
	return blocks, nil
}

func (a *GeminiAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	body, err := a.EncodeRequest(req.Turns, req.System, req.Tools)
	if err != nil {
		return nil, &SDKError{Message: "encode request", Cause: err}
	}

	endpoint, err := url.Parse(a.cfg.Endpoint)
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "invalid gemini endpoint", Cause: err}}
	}
	q := endpoint.Query()
	q.Set("key", a.cfg.Credential.Reveal())
	endpoint.RawQuery = q.Encode()

	payload, err := postJSON(ctx, a.client, a.Name(), endpoint.String(), nil, body)
	if err != nil {
		return nil, err
	}
	blocks, err := a.DecodeResponse(payload)
	if err != nil {
		return nil, err
	}
	return &Response{Provider: a.Name(), Model: a.cfg.Model, Content: blocks}, nil
}
