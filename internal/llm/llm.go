// Package llm defines the streaming text-completion provider interface
// and its implementations (OpenAI-compatible HTTP APIs and Gemini).
package llm

import (
	"context"
	"fmt"
)

// Message is one chat turn sent to the provider. Role is "user" or
// "assistant"; the system prompt travels separately in Request.System.
type Message struct {
	Role    string
	Content string
}

// Request is a streaming completion request.
type Request struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Event is one element of a reply stream. At most one of Delta and Err
// is set; an Err event is always the last one before the channel closes.
type Event struct {
	Delta string
	Err   error
}

// Provider streams model replies.
type Provider interface {
	Name() string

	// Stream returns a channel of events. The channel MUST be closed by
	// the provider when the reply is complete or an error occurred.
	Stream(ctx context.Context, req *Request) (<-chan Event, error)
}

// Config selects and configures a provider implementation.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

// Factory builds a Provider from config.
type Factory func(ctx context.Context, cfg Config) (Provider, error)

var factories = map[string]Factory{}

// RegisterFactory registers a named provider factory. Called from the
// implementation packages' Register functions during wiring.
func RegisterFactory(name string, f Factory) {
	factories[name] = f
}

// New builds the provider named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Provider, error) {
	f, ok := factories[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	return f(ctx, cfg)
}
