// Package offline provides a local llama-server chat provider.
// SECURITY: guarantees 100% local operation with NO external network
// calls; the server binds to 127.0.0.1 only.
package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/interfaces"
)

const (
	chatServerURL     = "http://127.0.0.1:8087"
	serverStartupWait = 60 * time.Second
	chatTimeout       = 120 * time.Second
)

// Provider runs llama-server against a local GGUF model and exposes it
// through the chat provider contract. It is the terminal rung of the
// rewrite fallback chain.
type Provider struct {
	cfg    common.OfflineConfig
	logger arbor.ILogger

	mu        sync.Mutex
	binPath   string
	modelPath string
	serverCmd *exec.Cmd
	ready     bool
	mockMode  bool
}

type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewProvider creates the offline provider. Binary and model discovery
// happen lazily so a machine without llama-server simply reports
// unavailable instead of failing startup.
func NewProvider(cfg common.OfflineConfig) *Provider {
	return &Provider{
		cfg:    cfg,
		logger: common.GetLogger(),
	}
}

// NewMockProvider creates an offline provider in mock mode for testing.
// It bypasses the llama-server binary and model file requirements.
func NewMockProvider() *Provider {
	p := &Provider{
		cfg:      common.OfflineConfig{Enabled: true, ChatModel: "mock"},
		logger:   common.GetLogger(),
		mockMode: true,
	}
	p.logger.Warn().Msg("Created offline LLM provider in MOCK mode - using fake responses")
	return p
}

func (p *Provider) Name() string { return "offline" }

func (p *Provider) Model() string {
	if p.mockMode {
		return "mock"
	}
	return p.cfg.ChatModel
}

func (p *Provider) Available() bool {
	if p.mockMode {
		return true
	}
	if !p.cfg.Enabled {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolvePaths() == nil
}

// resolvePaths locates the llama-server binary and the chat model.
// Must be called with the mutex held.
func (p *Provider) resolvePaths() error {
	if p.binPath != "" && p.modelPath != "" {
		return nil
	}

	binPath, err := findLlamaBinary(p.cfg.LlamaDir)
	if err != nil {
		return err
	}

	modelPath := filepath.Join(p.cfg.ModelDir, p.cfg.ChatModel)
	info, err := os.Stat(modelPath)
	if err != nil || info.IsDir() {
		return fmt.Errorf("chat model not found at %s", modelPath)
	}

	p.binPath = binPath
	p.modelPath = modelPath
	return nil
}

// findLlamaBinary locates llama-server in the configured directory or
// standard locations.
func findLlamaBinary(llamaDir string) (string, error) {
	locations := []string{}
	if llamaDir != "" {
		locations = append(locations,
			filepath.Join(llamaDir, "llama-server"),
			filepath.Join(llamaDir, "llama-server.exe"),
		)
	}
	locations = append(locations,
		"./bin/llama-server",
		"./llama-server",
		"llama-server", // PATH search
	)

	for _, location := range locations {
		path, err := exec.LookPath(location)
		if err != nil {
			continue
		}
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
	}

	return "", fmt.Errorf("llama-server not found in: %v", locations)
}

func (p *Provider) Chat(ctx context.Context, system, user string, opts interfaces.ChatOptions) (string, error) {
	if p.mockMode {
		return mockChatResponse(user, opts), nil
	}

	if err := p.ensureServer(); err != nil {
		return "", err
	}

	messages := []chatMessage{}
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	userText := user
	if opts.JSONMode {
		userText += "\n\nRespond with a single JSON object and nothing else."
	}
	messages = append(messages, chatMessage{Role: "user", Content: userText})

	reqBody := chatRequest{
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      false,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, chatServerURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := localOnlyClient(chatTimeout).Do(req)
	if err != nil {
		return "", fmt.Errorf("chat server request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat server status %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty response from chat server")
	}

	return parsed.Choices[0].Message.Content, nil
}

// ensureServer starts llama-server on first use and waits until its
// health endpoint responds.
func (p *Provider) ensureServer() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ready && p.serverCmd != nil && p.serverCmd.Process != nil {
		return nil
	}
	if err := p.resolvePaths(); err != nil {
		return err
	}

	args := []string{
		"-m", p.modelPath,
		"--host", "127.0.0.1",
		"--port", "8087",
		"-b", "2048",
		"--log-disable",
	}
	cmd := exec.Command(p.binPath, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start chat server: %w", err)
	}
	p.serverCmd = cmd

	p.logger.Info().
		Int("pid", cmd.Process.Pid).
		Str("model", p.modelPath).
		Msg("Chat server started, waiting for ready")

	ctx, cancel := context.WithTimeout(context.Background(), serverStartupWait)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.stopServerLocked()
			return fmt.Errorf("chat server did not become ready within %s", serverStartupWait)
		case <-ticker.C:
			if checkServerHealth() {
				p.ready = true
				p.logger.Info().Msg("Chat server is ready")
				return nil
			}
		}
	}
}

func checkServerHealth() bool {
	resp, err := localOnlyClient(1 * time.Second).Get(chatServerURL + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// localOnlyClient refuses to dial anything but localhost.
func localOnlyClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				if !strings.HasPrefix(addr, "127.0.0.1:") && !strings.HasPrefix(addr, "localhost:") {
					return nil, fmt.Errorf("security violation: attempt to connect to non-localhost address: %s", addr)
				}
				return (&net.Dialer{}).DialContext(ctx, network, addr)
			},
		},
	}
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopServerLocked()
	return nil
}

// stopServerLocked stops the background server. Must be called with the
// mutex held.
func (p *Provider) stopServerLocked() {
	if p.serverCmd == nil || p.serverCmd.Process == nil {
		p.ready = false
		return
	}

	pid := p.serverCmd.Process.Pid
	if runtime.GOOS != "windows" {
		_ = p.serverCmd.Process.Signal(os.Interrupt)
	}

	done := make(chan error, 1)
	go func() { done <- p.serverCmd.Wait() }()

	select {
	case <-time.After(2 * time.Second):
		if err := p.serverCmd.Process.Kill(); err != nil {
			p.logger.Error().Err(err).Int("pid", pid).Msg("Failed to kill chat server")
		} else {
			p.logger.Info().Int("pid", pid).Msg("Chat server terminated")
		}
	case <-done:
		p.logger.Info().Int("pid", pid).Msg("Chat server stopped")
	}

	p.serverCmd = nil
	p.ready = false
}

// mockChatResponse returns a deterministic fake completion for tests.
func mockChatResponse(user string, opts interfaces.ChatOptions) string {
	if opts.JSONMode {
		return `{"title":"Mock rewritten title","summary":"Mock rewritten summary."}`
	}
	if len(user) > 40 {
		user = user[:40]
	}
	return "Mock response to: " + user
}
