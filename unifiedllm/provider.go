package unifiedllm

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// ProviderAdapter is the interface every backend family implements. Encode
// and Decode are pure; Complete performs one blocking round trip.
type ProviderAdapter interface {
	// Name returns the backend identifier (e.g. "gemini", "anthropic").
	Name() string

	// EncodeRequest renders the conversation, system prompt and tool
	// descriptors as the backend's JSON payload.
	EncodeRequest(turns []Turn, system string, tools []ToolDescriptor) ([]byte, error)

	// DecodeResponse converts a backend payload into canonical content blocks.
	DecodeResponse(payload []byte) ([]ContentBlock, error)

	// Complete sends a request and returns the decoded response.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// AdapterOption configures an adapter built by NewAdapter.
type AdapterOption func(*adapterOptions)

type adapterOptions struct {
	httpClient *http.Client
}

// WithHTTPClient overrides the HTTP client used for transport.
func WithHTTPClient(c *http.Client) AdapterOption {
	return func(o *adapterOptions) {
		o.httpClient = c
	}
}

// NewAdapter returns the adapter for cfg.Backend.
func NewAdapter(cfg ProviderConfig, opts ...AdapterOption) (ProviderAdapter, error) {
	o := adapterOptions{
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
	for _, opt := range opts {
		opt(&o)
	}

	switch cfg.Backend {
	case BackendGemini:
		return NewGeminiAdapter(cfg, o.httpClient), nil
	case BackendOpenRouter, BackendAnthropic:
		return NewMessagesAdapter(cfg, o.httpClient), nil
	default:
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("unknown backend %q", cfg.Backend),
		}}
	}
}
