package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/martinemde/nanocode/unifiedllm"
)

// ErrorPrefix starts every failed tool result handed back to the model.
const ErrorPrefix = "error: "

// Arguments is the structured argument map of a tool call.
type Arguments map[string]any

// String returns a required string argument.
func (a Arguments) String(key string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", key, v)
	}
	return s, nil
}

// OptionalString returns a string argument or def when absent.
func (a Arguments) OptionalString(key, def string) (string, error) {
	if v, ok := a[key]; !ok || v == nil {
		return def, nil
	}
	return a.String(key)
}

// OptionalInt returns an integer argument or def when absent. JSON numbers
// arrive as float64 and must be integral.
func (a Arguments) OptionalInt(key string, def int) (int, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("argument %q must be an integer, got %v", key, n)
		}
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("argument %q must be an integer: %w", key, err)
		}
		return int(i), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("argument %q must be an integer, got %q", key, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("argument %q must be an integer, got %T", key, v)
	}
}

// OptionalBool returns a boolean argument or def when absent.
func (a Arguments) OptionalBool(key string, def bool) (bool, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, fmt.Errorf("argument %q must be a boolean, got %q", key, b)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("argument %q must be a boolean, got %T", key, v)
	}
}

// ToolExecutor runs one tool call. A non-nil error is a conversational
// failure: the registry renders it for the model and the loop continues.
type ToolExecutor func(ctx context.Context, args Arguments) (string, error)

// RegisteredTool pairs a tool descriptor with its executor.
type RegisteredTool struct {
	Descriptor unifiedllm.ToolDescriptor
	Executor   ToolExecutor
}

// ToolRegistry manages tool registration and dispatch. Descriptors are
// returned in registration order.
type ToolRegistry struct {
	tools map[string]*RegisteredTool
	order []string
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*RegisteredTool),
	}
}

// Register adds or replaces a tool. A replaced tool keeps its position.
func (r *ToolRegistry) Register(descriptor unifiedllm.ToolDescriptor, executor ToolExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[descriptor.Name]; !exists {
		r.order = append(r.order, descriptor.Name)
	}
	params := make([]unifiedllm.Parameter, len(descriptor.Parameters))
	copy(params, descriptor.Parameters)
	descriptor.Parameters = params
	r.tools[descriptor.Name] = &RegisteredTool{Descriptor: descriptor, Executor: executor}
}

// Get returns a registered tool by name, or nil if not found.
func (r *ToolRegistry) Get(name string) *RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// DescribeAll returns every tool descriptor for schema generation.
func (r *ToolRegistry) DescribeAll() []unifiedllm.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]unifiedllm.ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Descriptor)
	}
	return defs
}

// Names returns the names of all registered tools in registration order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Invoke runs the named tool and always returns text. Unknown tools,
// executor errors and executor panics all come back as ErrorPrefix followed
// by a description.
func (r *ToolRegistry) Invoke(ctx context.Context, name string, args map[string]any) string {
	result, _ := r.Dispatch(ctx, name, args)
	return result
}

// Dispatch is Invoke that also reports whether the tool failed. failed is
// set only when the lookup or the executor failed, never from the text of a
// successful result.
func (r *ToolRegistry) Dispatch(ctx context.Context, name string, args map[string]any) (result string, failed bool) {
	tool := r.Get(name)
	if tool == nil {
		return ErrorPrefix + fmt.Sprintf("unknown tool %q", name), true
	}

	defer func() {
		if p := recover(); p != nil {
			result, failed = ErrorPrefix+fmt.Sprintf("%s panicked: %v", name, p), true
		}
	}()

	if args == nil {
		args = map[string]any{}
	}
	out, err := tool.Executor(ctx, Arguments(args))
	if err != nil {
		return ErrorPrefix + err.Error(), true
	}
	return out, false
}
