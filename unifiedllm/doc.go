// Package unifiedllm provides the provider-agnostic message model and the
// adapters that translate it to and from each backend's tool-calling wire
// protocol.
//
// # Architecture
//
//   - Canonical model: Conversation, Turn and the closed ContentBlock set
//     (TextBlock, ToolUseBlock, ToolResultBlock), plus ToolDescriptor.
//   - Configuration: ProviderConfig, resolved once from the environment by
//     ResolveProviderConfig and never mutated.
//   - Adapters: MessagesAdapter (Anthropic and OpenRouter) and GeminiAdapter.
//     Each has pure EncodeRequest/DecodeResponse mappings and a Complete
//     method that performs the HTTP round trip.
//   - Client: wraps one adapter with middleware (see LoggingMiddleware).
//
// # Quick Start
//
//	cfg, err := unifiedllm.ResolveProviderConfig(envMap)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, _ := unifiedllm.NewClientFromConfig(cfg)
//
//	conv := unifiedllm.NewConversation()
//	_ = conv.AppendUserText("Hello")
//	resp, err := client.Complete(ctx, unifiedllm.Request{
//	    System: "Concise coding assistant.",
//	    Turns:  conv.Turns(),
//	})
//	fmt.Println(resp.Text())
//
// # Errors
//
// Non-2xx answers map to typed errors via ErrorFromStatusCode; transport
// failures are NetworkError and undecodable payloads ResponseFormatError.
// A Gemini answer with no candidates is not an error: it decodes to a single
// text block carrying NoResponseNotice.
package unifiedllm
