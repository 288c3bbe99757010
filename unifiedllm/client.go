package unifiedllm

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Middleware wraps a provider call. It receives the request and a next function
// that calls the downstream handler, and returns the response.
type Middleware func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error)

// Client routes completions through middleware to a single provider adapter.
// The adapter is fixed at construction; there is no process-wide default.
type Client struct {
	adapter    ProviderAdapter
	middleware []Middleware
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithMiddleware adds middleware to the client.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// NewClient creates a Client around adapter.
func NewClient(adapter ProviderAdapter, opts ...ClientOption) *Client {
	c := &Client{adapter: adapter}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig builds the adapter for cfg and wraps it in a Client.
func NewClientFromConfig(cfg ProviderConfig, opts ...ClientOption) (*Client, error) {
	adapter, err := NewAdapter(cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(adapter, opts...), nil
}

// Adapter returns the underlying provider adapter.
func (c *Client) Adapter() ProviderAdapter { return c.adapter }

// Complete sends a blocking request through middleware to the adapter.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	handler := func(ctx context.Context, r Request) (*Response, error) {
		return c.adapter.Complete(ctx, r)
	}

	// Apply middleware in reverse order so first registered runs first.
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i]
		next := handler
		handler = func(ctx context.Context, r Request) (*Response, error) {
			return mw(ctx, r, next)
		}
	}

	return handler(ctx, req)
}

// LoggingMiddleware logs every completion at debug level and failures at
// warn level.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		fields := []zap.Field{
			zap.Int("turns", len(req.Turns)),
			zap.Int("tools", len(req.Tools)),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			logger.Warn("completion failed", append(fields, zap.Error(err))...)
			return nil, err
		}
		logger.Debug("completion",
			append(fields,
				zap.String("provider", resp.Provider),
				zap.String("model", resp.Model),
				zap.Int("blocks", len(resp.Content)),
				zap.Int("tool_uses", len(resp.ToolUses())),
			)...)
		return resp, nil
	}
}
