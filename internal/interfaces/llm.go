package interfaces

import "context"

// ChatOptions controls a single chat completion request.
type ChatOptions struct {
	Temperature float32
	MaxTokens   int
	// JSONMode asks the provider for strict JSON output. Providers that
	// cannot enforce it still receive a JSON instruction in the prompt,
	// so callers must tolerate extra text around the JSON.
	JSONMode bool
}

// ChatProvider is one rung of the LLM fallback chain.
type ChatProvider interface {
	// Name identifies the provider in logs and persisted model fields.
	Name() string
	// Model returns the model identifier requests will use.
	Model() string
	// Available reports whether the provider is configured (API key
	// present, binary found). Unavailable providers are skipped by the
	// chain rather than treated as errors.
	Available() bool
	Chat(ctx context.Context, system, user string, opts ChatOptions) (string, error)
	Close() error
}
