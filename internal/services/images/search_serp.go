package images

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/models"
)

const (
	defaultSerpBaseURL = "https://google.serper.dev"
	serpRatePerSecond  = 2
)

// SerpProvider searches the paid web image search API. An empty API
// key disables the provider.
type SerpProvider struct {
	apiKey      string
	baseURL     string
	spamDomains []string
	client      *http.Client
	limiter     *rate.Limiter
	logger      arbor.ILogger
}

func NewSerpProvider(cfg common.ImagesConfig) *SerpProvider {
	baseURL := cfg.SerpBaseURL
	if baseURL == "" {
		baseURL = defaultSerpBaseURL
	}
	return &SerpProvider{
		apiKey:      cfg.SerpAPIKey,
		baseURL:     baseURL,
		spamDomains: cfg.SpamDomains,
		client:      &http.Client{Timeout: 20 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(serpRatePerSecond), serpRatePerSecond),
		logger:      common.GetLogger(),
	}
}

func (p *SerpProvider) Name() string { return "serper" }

func (p *SerpProvider) Available() bool { return p.apiKey != "" }

type serpImageResult struct {
	ImageURL    string `json:"imageUrl"`
	ImageWidth  int    `json:"imageWidth"`
	ImageHeight int    `json:"imageHeight"`
	Link        string `json:"link"`
}

type serpResponse struct {
	Images []serpImageResult `json:"images"`
}

func (p *SerpProvider) Search(ctx context.Context, query string, limit int) ([]models.ImageCandidate, error) {
	if !p.Available() {
		return nil, fmt.Errorf("serp provider disabled: no API key configured")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("serp rate limit wait: %w", err)
	}

	payload, err := json.Marshal(map[string]any{"q": query, "num": limit})
	if err != nil {
		return nil, fmt.Errorf("marshal serp request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/images", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build serp request: %w", err)
	}
	req.Header.Set("X-API-KEY", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serp request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read serp response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serp search: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed serpResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode serp response: %w", err)
	}

	candidates := make([]models.ImageCandidate, 0, len(parsed.Images))
	for _, img := range parsed.Images {
		if img.ImageURL == "" || p.isSpamDomain(img.ImageURL) {
			continue
		}
		candidates = append(candidates, models.ImageCandidate{
			URL:           img.ImageURL,
			Width:         img.ImageWidth,
			Height:        img.ImageHeight,
			Format:        formatFromURL(img.ImageURL),
			SourcePageURL: img.Link,
		})
	}

	p.logger.Debug().
		Str("query", query).
		Int("results", len(parsed.Images)).
		Int("kept", len(candidates)).
		Msg("SERP image search completed")

	return candidates, nil
}

func (p *SerpProvider) isSpamDomain(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for _, domain := range p.spamDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func formatFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	path := strings.ToLower(u.Path)
	for _, ext := range []string{"jpg", "jpeg", "png", "webp", "gif"} {
		if strings.HasSuffix(path, "."+ext) {
			return ext
		}
	}
	return ""
}
