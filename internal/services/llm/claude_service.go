package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/interfaces"
)

// ClaudeProvider is the Anthropic rung of the chat provider chain.
type ClaudeProvider struct {
	cfg    common.ClaudeConfig
	logger arbor.ILogger
	retry  *RetryConfig

	mu          sync.Mutex
	client      anthropic.Client
	initialized bool
}

func NewClaudeProvider(cfg common.ClaudeConfig) *ClaudeProvider {
	return &ClaudeProvider{
		cfg:    cfg,
		logger: common.GetLogger(),
		retry:  NewDefaultRetryConfig(),
	}
}

func (p *ClaudeProvider) Name() string { return "claude" }

func (p *ClaudeProvider) Model() string { return p.cfg.Model }

func (p *ClaudeProvider) Available() bool { return p.cfg.APIKey != "" }

func (p *ClaudeProvider) getClient() (anthropic.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return p.client, nil
	}
	if p.cfg.APIKey == "" {
		return anthropic.Client{}, fmt.Errorf("anthropic API key not configured")
	}

	p.client = anthropic.NewClient(option.WithAPIKey(p.cfg.APIKey))
	p.initialized = true
	return p.client, nil
}

func (p *ClaudeProvider) Chat(ctx context.Context, system, user string, opts interfaces.ChatOptions) (string, error) {
	client, err := p.getClient()
	if err != nil {
		return "", err
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.cfg.MaxTokens
	}

	userText := user
	if opts.JSONMode {
		// Claude has no enforced JSON mode; make the expectation explicit.
		userText += "\n\nRespond with a single JSON object and nothing else."
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.cfg.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userText)),
		},
	}

	temp := opts.Temperature
	if temp <= 0 {
		temp = p.cfg.Temperature
	}
	if temp > 0 {
		params.Temperature = anthropic.Float(float64(temp))
	}

	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	timeout := common.DurationOr(p.cfg.Timeout, 60*time.Second)

	var resp *anthropic.Message
	var apiErr error
	for attempt := 0; attempt <= p.retry.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, apiErr = client.Messages.New(callCtx, params)
		cancel()
		if apiErr == nil {
			break
		}
		if attempt == p.retry.MaxRetries {
			break
		}

		backoff := time.Duration(attempt+1) * 2 * time.Second
		if IsRateLimitError(apiErr) {
			backoff = p.retry.CalculateBackoff(attempt, 0)
		}

		p.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Claude API call")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}
	if apiErr != nil {
		return "", fmt.Errorf("Claude API call failed after %d retries: %w", p.retry.MaxRetries, apiErr)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty response from Claude API")
	}

	return text.String(), nil
}

func (p *ClaudeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = anthropic.Client{}
	p.initialized = false
	return nil
}
