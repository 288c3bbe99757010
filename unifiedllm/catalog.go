package unifiedllm

// ModelInfo describes a known model in the catalog.
type ModelInfo struct {
	ID            string   `json:"id"`
	Backend       Backend  `json:"backend"`
	DisplayName   string   `json:"display_name"`
	ContextWindow int      `json:"context_window"`
	MaxOutput     int      `json:"max_output,omitempty"`
	Aliases       []string `json:"aliases,omitempty"`
}

// Models is the built-in model catalog. The first entry per backend is that
// backend's default model.
var Models = []ModelInfo{
	// Gemini
	{
		ID: "gemini-2.0-flash-exp", Backend: BackendGemini, DisplayName: "Gemini 2.0 Flash (Experimental)",
		ContextWindow: 1048576, MaxOutput: 8192,
		Aliases: []string{"gemini-flash"},
	},
	{
		ID: "gemini-2.5-pro", Backend: BackendGemini, DisplayName: "Gemini 2.5 Pro",
		ContextWindow: 1048576, MaxOutput: 65536,
		Aliases: []string{"gemini-pro"},
	},

	// OpenRouter
	{
		ID: "anthropic/claude-opus-4.5", Backend: BackendOpenRouter, DisplayName: "Claude Opus 4.5 (OpenRouter)",
		ContextWindow: 200000, MaxOutput: 32000,
	},
	{
		ID: "anthropic/claude-sonnet-4.5", Backend: BackendOpenRouter, DisplayName: "Claude Sonnet 4.5 (OpenRouter)",
		ContextWindow: 200000, MaxOutput: 64000,
	},

	// Anthropic
	{
		ID: "claude-opus-4-5", Backend: BackendAnthropic, DisplayName: "Claude Opus 4.5",
		ContextWindow: 200000, MaxOutput: 32000,
		Aliases: []string{"opus"},
	},
	{
		ID: "claude-sonnet-4-5", Backend: BackendAnthropic, DisplayName: "Claude Sonnet 4.5",
		ContextWindow: 200000, MaxOutput: 64000,
		Aliases: []string{"sonnet"},
	},
}

// GetModelInfo returns the catalog entry for a model, or nil if unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// ListModels returns all known models, optionally filtered by backend.
func ListModels(backend Backend) []ModelInfo {
	if backend == "" {
		result := make([]ModelInfo, len(Models))
		copy(result, Models)
		return result
	}
	var result []ModelInfo
	for _, m := range Models {
		if m.Backend == backend {
			result = append(result, m)
		}
	}
	return result
}

// DefaultModel returns the default model identifier for a backend, or "" if
// the backend has no catalog entry.
func DefaultModel(backend Backend) string {
	for _, m := range Models {
		if m.Backend == backend {
			return m.ID
		}
	}
	return ""
}
