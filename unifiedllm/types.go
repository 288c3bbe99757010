package unifiedllm

import (
	"errors"
	"strings"
)

// Role identifies who produced a turn in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentBlock is one element of a Turn. The set of implementations is closed:
// TextBlock, ToolUseBlock and ToolResultBlock.
type ContentBlock interface {
	isContentBlock()
}

// TextBlock carries plain text.
type TextBlock struct {
	Text string
}

// ToolUseBlock is a model request to invoke a tool.
type ToolUseBlock struct {
	ID        string
	Name      string
	Arguments map[string]any
	// Signature is an opaque backend token that must be sent back with the
	// call on later requests (Gemini thought signatures). Nil for most calls.
	Signature []byte
}

// ToolResultBlock carries the textual outcome of a ToolUseBlock, correlated by ID.
type ToolResultBlock struct {
	ToolUseID string
	Content   string
	IsError   bool
}

func (TextBlock) isContentBlock()       {}
func (ToolUseBlock) isContentBlock()    {}
func (ToolResultBlock) isContentBlock() {}

// Turn is one role-tagged, ordered group of content blocks.
type Turn struct {
	Role    Role
	Content []ContentBlock
}

// Text returns the concatenation of the turn's text blocks.
func (t Turn) Text() string {
	var sb strings.Builder
	for _, block := range t.Content {
		if tb, ok := block.(TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String()
}

// ToolUses returns the tool-use blocks of the turn in order.
func (t Turn) ToolUses() []ToolUseBlock {
	var uses []ToolUseBlock
	for _, block := range t.Content {
		if tu, ok := block.(ToolUseBlock); ok {
			uses = append(uses, tu)
		}
	}
	return uses
}

// ToolResults returns the tool-result blocks of the turn in order.
func (t Turn) ToolResults() []ToolResultBlock {
	var results []ToolResultBlock
	for _, block := range t.Content {
		if tr, ok := block.(ToolResultBlock); ok {
			results = append(results, tr)
		}
	}
	return results
}

// ErrEmptyTurn is returned when appending a turn with no content blocks.
var ErrEmptyTurn = errors.New("turn has no content blocks")

// Conversation is an ordered, append-only sequence of turns. It is not safe
// for concurrent use; the agent loop owns it exclusively.
type Conversation struct {
	turns []Turn
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// AppendUserText appends a user turn holding a single text block.
func (c *Conversation) AppendUserText(text string) error {
	return c.append(RoleUser, []ContentBlock{TextBlock{Text: text}})
}

// AppendAssistant appends an assistant turn with the decoded blocks, in order.
func (c *Conversation) AppendAssistant(blocks []ContentBlock) error {
	return c.append(RoleAssistant, blocks)
}

// AppendToolResults appends a synthesized user turn holding tool results.
func (c *Conversation) AppendToolResults(results []ToolResultBlock) error {
	blocks := make([]ContentBlock, len(results))
	for i, r := range results {
		blocks[i] = r
	}
	return c.append(RoleUser, blocks)
}

func (c *Conversation) append(role Role, blocks []ContentBlock) error {
	if len(blocks) == 0 {
		return ErrEmptyTurn
	}
	content := make([]ContentBlock, len(blocks))
	copy(content, blocks)
	c.turns = append(c.turns, Turn{Role: role, Content: content})
	return nil
}

// Turns returns a copy of the turn list.
func (c *Conversation) Turns() []Turn {
	turns := make([]Turn, len(c.turns))
	copy(turns, c.turns)
	return turns
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	return len(c.turns)
}

// Clear discards every turn.
func (c *Conversation) Clear() {
	c.turns = nil
}

// ParamKind is the value type of a tool parameter.
type ParamKind string

const (
	KindString  ParamKind = "string"
	KindNumber  ParamKind = "number"
	KindBoolean ParamKind = "boolean"
)

// Parameter describes one named tool argument.
type Parameter struct {
	Name        string
	Kind        ParamKind
	Optional    bool
	Description string
}

// ToolDescriptor describes a tool for schema generation. Parameters are
// ordered so encoded schemas are deterministic.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  []Parameter
}

// Required returns the names of non-optional parameters in declaration order.
func (d ToolDescriptor) Required() []string {
	required := make([]string, 0, len(d.Parameters))
	for _, p := range d.Parameters {
		if !p.Optional {
			required = append(required, p.Name)
		}
	}
	return required
}

// Request is the input to a completion.
type Request struct {
	System string
	Turns  []Turn
	Tools  []ToolDescriptor
}

// Response is the decoded output of a completion.
type Response struct {
	Provider string
	Model    string
	Content  []ContentBlock
}

// Text returns the concatenated text of all text blocks.
func (r Response) Text() string {
	return Turn{Role: RoleAssistant, Content: r.Content}.Text()
}

// ToolUses returns the tool-use blocks of the response in order.
func (r Response) ToolUses() []ToolUseBlock {
	return Turn{Role: RoleAssistant, Content: r.Content}.ToolUses()
}
