package images

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/models"
)

const (
	defaultStockBaseURL = "https://api.unsplash.com"
	stockRatePerSecond  = 1
)

// StockProvider searches a free stock photo API. License terms require
// attribution metadata on every use and a download-tracking call when
// an image is actually selected.
type StockProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  arbor.ILogger
}

func NewStockProvider(cfg common.ImagesConfig) *StockProvider {
	baseURL := cfg.StockBaseURL
	if baseURL == "" {
		baseURL = defaultStockBaseURL
	}
	return &StockProvider{
		apiKey:  cfg.StockAPIKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 20 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(stockRatePerSecond), stockRatePerSecond),
		logger:  common.GetLogger(),
	}
}

func (p *StockProvider) Name() string { return "stock" }

func (p *StockProvider) Available() bool { return p.apiKey != "" }

type stockPhoto struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	URLs   struct {
		Regular string `json:"regular"`
		Full    string `json:"full"`
	} `json:"urls"`
	Links struct {
		HTML             string `json:"html"`
		DownloadLocation string `json:"download_location"`
	} `json:"links"`
	User struct {
		Name  string `json:"name"`
		Links struct {
			HTML string `json:"html"`
		} `json:"links"`
	} `json:"user"`
}

type stockSearchResponse struct {
	Results []stockPhoto `json:"results"`
}

func (p *StockProvider) Search(ctx context.Context, query string, limit int) ([]models.ImageCandidate, error) {
	if !p.Available() {
		return nil, fmt.Errorf("stock provider disabled: no API key configured")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("stock rate limit wait: %w", err)
	}

	endpoint := p.baseURL + "/search/photos?query=" + url.QueryEscape(query) +
		"&per_page=" + strconv.Itoa(limit) + "&orientation=landscape"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build stock request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+p.apiKey)
	req.Header.Set("Accept-Version", "v1")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stock request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read stock response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stock search: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed stockSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode stock response: %w", err)
	}

	candidates := make([]models.ImageCandidate, 0, len(parsed.Results))
	for _, photo := range parsed.Results {
		imgURL := photo.URLs.Regular
		if imgURL == "" {
			imgURL = photo.URLs.Full
		}
		if imgURL == "" {
			continue
		}
		candidates = append(candidates, models.ImageCandidate{
			URL:              imgURL,
			Width:            photo.Width,
			Height:           photo.Height,
			Format:           "jpg",
			SourcePageURL:    photo.Links.HTML,
			Photographer:     photo.User.Name,
			PhotographerURL:  photo.User.Links.HTML,
			License:          "Unsplash License",
			DownloadLocation: photo.Links.DownloadLocation,
		})
	}

	p.logger.Debug().
		Str("query", query).
		Int("results", len(candidates)).
		Msg("Stock image search completed")

	return candidates, nil
}

// TrackDownload fires the license-mandated download event for a
// selected photo. Failures are reported but never block selection.
func (p *StockProvider) TrackDownload(ctx context.Context, candidate models.ImageCandidate) error {
	if candidate.DownloadLocation == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidate.DownloadLocation, nil)
	if err != nil {
		return fmt.Errorf("build download tracking request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("download tracking request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download tracking: status %d", resp.StatusCode)
	}
	return nil
}
