package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/interfaces"
)

// GeminiProvider is the Google Gemini rung of the chat provider chain.
type GeminiProvider struct {
	cfg    common.GeminiConfig
	logger arbor.ILogger
	retry  *RetryConfig

	mu     sync.Mutex
	client *genai.Client
}

func NewGeminiProvider(cfg common.GeminiConfig) *GeminiProvider {
	return &GeminiProvider{
		cfg:    cfg,
		logger: common.GetLogger(),
		retry:  NewDefaultRetryConfig(),
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Model() string { return p.cfg.Model }

func (p *GeminiProvider) Available() bool { return p.cfg.APIKey != "" }

// Client returns the shared genai client, creating it on first use.
// Exposed so the image generator can reuse the same client.
func (p *GeminiProvider) Client(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	if p.cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	p.client = client
	return client, nil
}

func (p *GeminiProvider) Chat(ctx context.Context, system, user string, opts interfaces.ChatOptions) (string, error) {
	client, err := p.Client(ctx)
	if err != nil {
		return "", err
	}

	temp := opts.Temperature
	if temp <= 0 {
		temp = p.cfg.Temperature
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temp),
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.JSONMode {
		config.ResponseMIMEType = "application/json"
	}

	contents := []*genai.Content{genai.NewContentFromText(user, genai.RoleUser)}

	timeout := common.DurationOr(p.cfg.Timeout, 60*time.Second)

	var resp *genai.GenerateContentResponse
	var apiErr error
	for attempt := 0; attempt <= p.retry.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, apiErr = client.Models.GenerateContent(callCtx, p.cfg.Model, contents, config)
		cancel()
		if apiErr == nil {
			break
		}
		if attempt == p.retry.MaxRetries {
			break
		}

		var backoff time.Duration
		if IsRateLimitError(apiErr) {
			backoff = p.retry.CalculateBackoff(attempt, ExtractRetryDelay(apiErr))
		} else {
			backoff = time.Duration(attempt+1) * 2 * time.Second
		}

		p.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Gemini API call")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}
	if apiErr != nil {
		return "", fmt.Errorf("Gemini API call failed after %d retries: %w", p.retry.MaxRetries, apiErr)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response from Gemini API")
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty text in Gemini response")
	}

	return text, nil
}

func (p *GeminiProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = nil
	return nil
}
