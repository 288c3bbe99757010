package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martinemde/nanocode/unifiedllm"
)

// SessionState represents the current lifecycle state of a session.
type SessionState string

const (
	StateAwaitingInput   SessionState = "awaiting_input"
	StateRequestSent     SessionState = "request_sent"
	StateBlocksReceived  SessionState = "blocks_received"
	StateToolsDispatched SessionState = "tools_dispatched"
	StateTurnComplete    SessionState = "turn_complete"
)

var (
	// ErrToolRoundLimit ends a turn that exceeded MaxToolRoundsPerInput. The
	// conversation is left consistent and the next input continues from it.
	ErrToolRoundLimit = errors.New("tool round limit reached")

	// ErrSessionBusy is returned when Submit is called during another turn.
	ErrSessionBusy = errors.New("session is processing another input")

	// ErrEmptyInput is returned for blank user input.
	ErrEmptyInput = errors.New("input is empty")
)

// contextWarningRatio is the share of the context window above which a
// warning is emitted.
const contextWarningRatio = 0.8

// Completer sends one request to a model. *unifiedllm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error)
}

// Session is the central orchestrator for the agentic loop. It owns the
// conversation and runs one user input at a time.
type Session struct {
	id           string
	client       Completer
	registry     *ToolRegistry
	systemPrompt string
	config       SessionConfig
	conversation *unifiedllm.Conversation
	emitter      *EventEmitter
	handler      EventHandler
	logger       *zap.Logger
	state        SessionState
	mu           sync.Mutex
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithConfig replaces DefaultSessionConfig.
func WithConfig(cfg SessionConfig) SessionOption {
	return func(s *Session) {
		s.config = cfg
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithEventHandler installs the handler that receives session events.
func WithEventHandler(handler EventHandler) SessionOption {
	return func(s *Session) {
		s.handler = handler
	}
}

// NewSession creates a session that talks to client, dispatches tool calls
// through registry and sends systemPrompt with every request.
func NewSession(client Completer, registry *ToolRegistry, systemPrompt string, opts ...SessionOption) *Session {
	s := &Session{
		id:           uuid.New().String(),
		client:       client,
		registry:     registry,
		systemPrompt: systemPrompt,
		config:       DefaultSessionConfig(),
		conversation: unifiedllm.NewConversation(),
		logger:       zap.NewNop(),
		state:        StateAwaitingInput,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.emitter = NewEventEmitter(s.id, s.handler)
	s.logger = s.logger.With(zap.String("session_id", s.id))
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Config returns the session configuration.
func (s *Session) Config() SessionConfig { return s.config }

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Conversation returns a copy of the conversation turns.
func (s *Session) Conversation() []unifiedllm.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversation.Turns()
}

// Clear discards the conversation. It fails with ErrSessionBusy during a turn.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingInput {
		return ErrSessionBusy
	}
	s.conversation.Clear()
	return nil
}

// Submit runs one user input to completion: it requests a completion, runs
// every requested tool in order, appends the results and repeats until the
// model answers without tool calls.
//
// A transport or decode failure ends the turn with the error; turns appended
// before the failure stay in the conversation. Cancelling ctx abandons the
// in-progress round without appending it and returns ctx.Err().
func (s *Session) Submit(ctx context.Context, input string) error {
	if strings.TrimSpace(input) == "" {
		return ErrEmptyInput
	}

	s.mu.Lock()
	if s.state != StateAwaitingInput {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	err := s.conversation.AppendUserText(input)
	if err == nil {
		s.state = StateRequestSent
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	defer s.setState(StateAwaitingInput)

	s.emitter.Emit(EventUserInput, map[string]any{"content": input})

	rounds := 0
	for {
		s.setState(StateRequestSent)
		resp, err := s.client.Complete(ctx, unifiedllm.Request{
			System: s.systemPrompt,
			Turns:  s.Conversation(),
			Tools:  s.registry.DescribeAll(),
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			s.logger.Warn("completion failed", zap.Int("round", rounds), zap.Error(err))
			s.emitter.Emit(EventError, map[string]any{"error": err.Error()})
			return fmt.Errorf("complete round %d: %w", rounds, err)
		}
		s.setState(StateBlocksReceived)

		if len(resp.Content) == 0 {
			s.emitter.Emit(EventWarning, map[string]any{"message": "model returned no content"})
			s.completeTurn(rounds)
			return nil
		}

		results, err := s.dispatch(ctx, resp.Content)
		if err != nil {
			return err
		}

		s.mu.Lock()
		err = s.conversation.AppendAssistant(resp.Content)
		s.mu.Unlock()
		if err != nil {
			return err
		}
		s.checkContextUsage()

		if len(results) == 0 {
			s.completeTurn(rounds)
			return nil
		}

		s.setState(StateToolsDispatched)
		s.mu.Lock()
		err = s.conversation.AppendToolResults(results)
		s.mu.Unlock()
		if err != nil {
			return err
		}
		rounds++

		if s.config.EnableLoopDetection && DetectLoop(s.Conversation(), s.config.LoopDetectionWindow) {
			msg := fmt.Sprintf("Loop detected: the last %d tool calls follow a repeating pattern.", s.config.LoopDetectionWindow)
			s.logger.Warn("loop detected", zap.Int("window", s.config.LoopDetectionWindow))
			s.emitter.Emit(EventLoopDetection, map[string]any{"message": msg})
		}

		if limit := s.config.MaxToolRoundsPerInput; limit > 0 && rounds >= limit {
			s.emitter.Emit(EventTurnLimit, map[string]any{"rounds": rounds})
			return fmt.Errorf("%w after %d rounds", ErrToolRoundLimit, rounds)
		}
	}
}

func (s *Session) completeTurn(rounds int) {
	s.setState(StateTurnComplete)
	s.emitter.Emit(EventTurnComplete, map[string]any{"rounds": rounds})
}

// dispatch surfaces text blocks and runs tool-use blocks one at a time, in
// order. It returns one result per tool use.
func (s *Session) dispatch(ctx context.Context, blocks []unifiedllm.ContentBlock) ([]unifiedllm.ToolResultBlock, error) {
	var results []unifiedllm.ToolResultBlock
	for _, block := range blocks {
		switch b := block.(type) {
		case unifiedllm.TextBlock:
			if b.Text != "" {
				s.emitter.Emit(EventAssistantText, map[string]any{"text": b.Text})
			}
		case unifiedllm.ToolUseBlock:
			result := s.runTool(ctx, b)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results = append(results, result)
		case unifiedllm.ToolResultBlock:
			// Only the loop synthesizes results.
			s.logger.Warn("ignoring tool result from model", zap.String("tool_use_id", b.ToolUseID))
		}
	}
	return results, nil
}

func (s *Session) runTool(ctx context.Context, call unifiedllm.ToolUseBlock) unifiedllm.ToolResultBlock {
	s.emitter.Emit(EventToolCallStart, map[string]any{
		"tool_name": call.Name,
		"call_id":   call.ID,
		"arguments": call.Arguments,
	})

	progress := func(line string) {
		s.emitter.Emit(EventToolCallOutputDelta, map[string]any{
			"call_id": call.ID,
			"line":    line,
		})
	}

	start := time.Now()
	output, isError := s.registry.Dispatch(WithProgress(ctx, progress), call.Name, call.Arguments)

	s.logger.Debug("tool call",
		zap.String("tool", call.Name),
		zap.String("call_id", call.ID),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("is_error", isError),
		zap.Int("output_bytes", len(output)),
	)

	s.emitter.Emit(EventToolCallEnd, map[string]any{
		"tool_name": call.Name,
		"call_id":   call.ID,
		"output":    output,
		"is_error":  isError,
	})

	return unifiedllm.ToolResultBlock{
		ToolUseID: call.ID,
		Content:   TruncateToolOutput(output, call.Name, s.config.ToolOutputLimits, s.config.ToolLineLimits),
		IsError:   isError,
	}
}

// checkContextUsage emits a warning when the estimated token count (four
// characters per token) exceeds contextWarningRatio of the context window.
func (s *Session) checkContextUsage() {
	window := s.config.ContextWindow
	if window <= 0 {
		return
	}

	totalChars := 0
	for _, turn := range s.Conversation() {
		for _, block := range turn.Content {
			switch b := block.(type) {
			case unifiedllm.TextBlock:
				totalChars += len(b.Text)
			case unifiedllm.ToolUseBlock:
				totalChars += len(b.Name)
				if data, err := json.Marshal(b.Arguments); err == nil {
					totalChars += len(data)
				}
			case unifiedllm.ToolResultBlock:
				totalChars += len(b.Content)
			}
		}
	}

	approxTokens := totalChars / 4
	if float64(approxTokens) > float64(window)*contextWarningRatio {
		pct := approxTokens * 100 / window
		s.emitter.Emit(EventWarning, map[string]any{
			"message": fmt.Sprintf("Context usage at ~%d%% of context window", pct),
		})
	}
}
