package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/models"
)

const (
	defaultFirecrawlBaseURL = "https://api.firecrawl.dev/v1"
	firecrawlRatePerSecond  = 2
)

// FirecrawlEngine extracts items through the Firecrawl managed crawler
// API. Extraction submits an async job and polls until it completes.
// The engine is disabled when no API key is configured.
type FirecrawlEngine struct {
	cfg     common.FirecrawlConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  arbor.ILogger
}

func NewFirecrawlEngine(cfg common.FirecrawlConfig) *FirecrawlEngine {
	timeout := common.DurationOr(cfg.Timeout, 120*time.Second)
	return &FirecrawlEngine{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(firecrawlRatePerSecond), firecrawlRatePerSecond),
		logger:  common.GetLogger(),
	}
}

func (e *FirecrawlEngine) Type() models.EngineType {
	return models.EngineFirecrawl
}

func (e *FirecrawlEngine) Available() bool {
	return e.cfg.APIKey != ""
}

type firecrawlExtractRequest struct {
	URLs   []string       `json:"urls"`
	Prompt string         `json:"prompt,omitempty"`
	Schema map[string]any `json:"schema,omitempty"`
}

type firecrawlJobResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Error   string `json:"error,omitempty"`
}

type firecrawlStatusResponse struct {
	Success bool            `json:"success"`
	Status  string          `json:"status"` // processing, completed, failed
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (e *FirecrawlEngine) Extract(ctx context.Context, url string, cfg models.ExtractionConfig) ([]models.RawItem, error) {
	if !e.Available() {
		return nil, fmt.Errorf("firecrawl engine disabled: no API key configured")
	}

	jobID, err := e.submit(ctx, url, cfg)
	if err != nil {
		return nil, err
	}

	data, err := e.waitForJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return decodeFirecrawlItems(data)
}

// submit starts an extract job and returns its ID.
func (e *FirecrawlEngine) submit(ctx context.Context, url string, cfg models.ExtractionConfig) (string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("firecrawl rate limit wait: %w", err)
	}

	reqBody := firecrawlExtractRequest{
		URLs:   []string{url},
		Schema: itemsSchema(cfg.Schema),
	}

	var job firecrawlJobResponse
	if err := e.post(ctx, "/extract", reqBody, &job); err != nil {
		return "", err
	}
	if !job.Success || job.ID == "" {
		return "", fmt.Errorf("firecrawl extract rejected for %s: %s", url, job.Error)
	}

	e.logger.Debug().Str("url", url).Str("job_id", job.ID).Msg("Firecrawl extract job submitted")
	return job.ID, nil
}

// waitForJob polls the job until completion or context cancellation.
func (e *FirecrawlEngine) waitForJob(ctx context.Context, jobID string) (json.RawMessage, error) {
	interval := common.DurationOr(e.cfg.PollInterval, 3*time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("firecrawl job %s: %w", jobID, ctx.Err())
		case <-ticker.C:
		}

		var status firecrawlStatusResponse
		if err := e.get(ctx, "/extract/"+jobID, &status); err != nil {
			return nil, err
		}

		switch status.Status {
		case "completed":
			return status.Data, nil
		case "failed", "cancelled":
			return nil, fmt.Errorf("firecrawl job %s %s: %s", jobID, status.Status, status.Error)
		default:
			// still processing
		}
	}
}

func (e *FirecrawlEngine) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal firecrawl request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL()+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build firecrawl request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return e.do(req, out)
}

func (e *FirecrawlEngine) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL()+path, nil)
	if err != nil {
		return fmt.Errorf("build firecrawl request: %w", err)
	}
	return e.do(req, out)
}

func (e *FirecrawlEngine) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("firecrawl request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("read firecrawl response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("firecrawl %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode firecrawl response: %w", err)
	}
	return nil
}

func (e *FirecrawlEngine) baseURL() string {
	if e.cfg.BaseURL != "" {
		return e.cfg.BaseURL
	}
	return defaultFirecrawlBaseURL
}

// itemsSchema wraps the per-field schema from sources.yaml into the
// JSON schema shape Firecrawl expects: an object with an items array.
func itemsSchema(fields map[string]string) map[string]any {
	props := make(map[string]any, len(fields))
	for name, typ := range fields {
		if typ == "" {
			typ = "string"
		}
		props[name] = map[string]any{"type": typ}
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":       "object",
					"properties": props,
				},
			},
		},
	}
}

// decodeFirecrawlItems maps the job result payload onto raw items.
// Well-known field names populate the typed columns; everything else
// lands in Fields.
func decodeFirecrawlItems(data json.RawMessage) ([]models.RawItem, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var result struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode firecrawl items: %w", err)
	}

	items := make([]models.RawItem, 0, len(result.Items))
	for _, rec := range result.Items {
		item := models.RawItem{Fields: make(map[string]string, len(rec))}
		for name, val := range rec {
			str, ok := val.(string)
			if !ok {
				continue
			}
			switch name {
			case "title":
				item.Title = str
			case "summary", "description":
				item.Summary = str
			case "link", "url":
				item.Link = str
			case "published_at", "date":
				if t, err := time.Parse(time.RFC3339, str); err == nil {
					item.PublishedAt = t
				}
			default:
				item.Fields[name] = str
			}
		}
		if item.Title == "" && item.Link == "" {
			continue
		}
		items = append(items, item)
	}

	return items, nil
}
