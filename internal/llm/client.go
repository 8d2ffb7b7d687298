// Package llm abstracts the chat-completion backends behind one Client
// interface so the pipeline never branches on the provider.
package llm

import "context"

// Conversation roles as sent to the providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in the prompt sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params are the generation knobs taken from the room settings snapshot.
type Params struct {
	Model            string
	MaxTokens        int
	Temperature      float64
	TopP             float64
	PresencePenalty  float64
	FrequencyPenalty float64
}

// Usage is the provider-reported token accounting for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client is a single-shot chat-completion backend.
type Client interface {
	// Generate runs one completion. An empty messages slice returns
	// ("", Usage{}, nil) without calling the backend.
	Generate(ctx context.Context, messages []Message, params Params) (string, Usage, error)
}

// StreamingClient additionally exposes incremental text deltas. The channel
// closes when the completion finishes or ctx is cancelled.
type StreamingClient interface {
	Client
	GenerateStream(ctx context.Context, messages []Message, params Params) (<-chan string, error)
}
