package llm

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/services/llm/offline"
)

// Result is one successful chat completion, tagged with the provider
// and model that produced it.
type Result struct {
	Text     string
	Provider string
	Model    string
}

// Chain tries chat providers in priority order. Unavailable providers
// are skipped; a failing provider falls through to the next. The chain
// errors only when every rung fails.
type Chain struct {
	providers []interfaces.ChatProvider
	logger    arbor.ILogger
}

func NewChain(providers ...interfaces.ChatProvider) *Chain {
	return &Chain{
		providers: providers,
		logger:    common.GetLogger(),
	}
}

// NewChainFromConfig builds the chain in the configured provider order.
// Unknown provider names fail loudly so a typo in config cannot
// silently drop a rung.
func NewChainFromConfig(cfg *common.Config) (*Chain, error) {
	var providers []interfaces.ChatProvider
	for _, name := range cfg.Rewrite.Providers {
		switch name {
		case "gemini":
			providers = append(providers, NewGeminiProvider(cfg.Gemini))
		case "claude":
			providers = append(providers, NewClaudeProvider(cfg.Claude))
		case "offline":
			providers = append(providers, offline.NewProvider(cfg.Offline))
		default:
			return nil, fmt.Errorf("unknown chat provider %q", name)
		}
	}
	return NewChain(providers...), nil
}

// Append adds a provider to the end of the chain.
func (c *Chain) Append(provider interfaces.ChatProvider) {
	c.providers = append(c.providers, provider)
}

// Providers exposes the configured rungs for observability.
func (c *Chain) Providers() []interfaces.ChatProvider {
	return c.providers
}

// Chat walks the chain until a provider succeeds.
func (c *Chain) Chat(ctx context.Context, system, user string, opts interfaces.ChatOptions) (*Result, error) {
	var lastErr error
	for _, provider := range c.providers {
		if !provider.Available() {
			c.logger.Debug().Str("provider", provider.Name()).Msg("Provider unavailable, skipping")
			continue
		}

		text, err := provider.Chat(ctx, system, user, opts)
		if err != nil {
			lastErr = err
			c.logger.Warn().
				Err(err).
				Str("provider", provider.Name()).
				Str("model", provider.Model()).
				Msg("Provider failed, falling through")
			continue
		}

		return &Result{
			Text:     text,
			Provider: provider.Name(),
			Model:    provider.Model(),
		}, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("all chat providers failed: %w", lastErr)
	}
	return nil, fmt.Errorf("no chat providers available")
}

// Close releases every provider.
func (c *Chain) Close() error {
	var firstErr error
	for _, provider := range c.providers {
		if err := provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
