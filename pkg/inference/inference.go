// Package inference provides clients for the generative text service used to
// extract structured data from transcripts.
//
// Providers share one request shape: a message list plus generation settings,
// optionally constrained to a JSON response schema. Gemini talks to the
// public Generative Language API with an API key; Vertex talks to the Vertex AI
// endpoint with service-account credentials. Chain falls back across several
// providers and Mock serves tests.
//
//	provider, _ := inference.NewGemini(
//	    inference.WithAPIKey(os.Getenv("GEMINI_API_KEY")),
//	    inference.WithModel("gemini-1.5-flash"),
//	)
//	defer provider.Close()
//
//	resp, err := provider.Chat(ctx, &inference.ChatRequest{
//	    Messages:         []inference.Message{inference.NewUserMessage(prompt)},
//	    Temperature:      inference.Ptr(0.1),
//	    ResponseMIMEType: "application/json",
//	    ResponseSchema:   schema,
//	})
package inference

import "context"

// Provider is the generative text service interface.
type Provider interface {
	// Chat generates a response from a sequence of messages.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Capabilities returns what features this provider supports.
	Capabilities() Capabilities

	// Health checks provider connectivity and credentials.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Capabilities describes what features a provider supports.
type Capabilities struct {
	Chat             bool // Supports chat completions
	StructuredOutput bool // Honors ResponseSchema
}

// Schema is a JSON response schema in the OpenAPI subset accepted by Gemini.
type Schema map[string]any

// ChatRequest for chat completions.
type ChatRequest struct {
	// Messages is the conversation history.
	Messages []Message

	// Model overrides the default model.
	Model string

	// MaxTokens limits the response length. Zero uses the provider default.
	MaxTokens int

	// Temperature controls randomness. Nil uses the provider default.
	Temperature *float64

	// CandidateCount requests this many alternatives. Zero means one.
	CandidateCount int

	// ResponseMIMEType constrains the output format, e.g. "application/json".
	ResponseMIMEType string

	// ResponseSchema constrains JSON output. Requires ResponseMIMEType "application/json".
	ResponseSchema Schema
}

// ChatResponse from chat completion.
type ChatResponse struct {
	// Message is the assistant's response.
	Message Message

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Usage tracks token consumption.
	Usage Usage

	// Model used for generation.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// Usage tracks token consumption for billing and limits.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
