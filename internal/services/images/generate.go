package images

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/interfaces"
)

// Generator produces illustrative images through the Gemini image
// models: the low-cost flash image model first, Imagen as the premium
// fallback when flash yields nothing.
type Generator struct {
	cfg     common.GeminiConfig
	enabled bool
	logger  arbor.ILogger

	mu     sync.Mutex
	client *genai.Client
}

func NewGenerator(cfg common.GeminiConfig, enabled bool) *Generator {
	return &Generator{
		cfg:     cfg,
		enabled: enabled,
		logger:  common.GetLogger(),
	}
}

func (g *Generator) Name() string { return "gemini-image" }

func (g *Generator) Available() bool {
	return g.enabled && g.cfg.APIKey != ""
}

func (g *Generator) getClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	g.client = client
	return client, nil
}

// Generate renders the prompt, trying the flash image model before
// Imagen.
func (g *Generator) Generate(ctx context.Context, prompt string) ([]byte, string, string, error) {
	if !g.Available() {
		return nil, "", "", fmt.Errorf("image generation disabled")
	}

	client, err := g.getClient(ctx)
	if err != nil {
		return nil, "", "", err
	}

	data, contentType, flashErr := g.generateFlash(ctx, client, prompt)
	if flashErr == nil {
		return data, contentType, g.cfg.ImageModel, nil
	}
	g.logger.Warn().Err(flashErr).Str("model", g.cfg.ImageModel).Msg("Flash image generation failed, trying Imagen")

	data, contentType, imagenErr := g.generateImagen(ctx, client, prompt)
	if imagenErr != nil {
		return nil, "", "", fmt.Errorf("flash failed (%v); imagen failed: %w", flashErr, imagenErr)
	}
	return data, contentType, g.cfg.PremiumImageModel, nil
}

// generateFlash uses the multimodal flash model, which returns the
// image as an inline data part.
func (g *Generator) generateFlash(ctx context.Context, client *genai.Client, prompt string) ([]byte, string, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := client.Models.GenerateContent(ctx, g.cfg.ImageModel, contents, config)
	if err != nil {
		return nil, "", err
	}

	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				contentType := part.InlineData.MIMEType
				if contentType == "" {
					contentType = "image/png"
				}
				return part.InlineData.Data, contentType, nil
			}
		}
	}
	return nil, "", fmt.Errorf("no image in response")
}

// generateImagen uses the dedicated image generation endpoint.
func (g *Generator) generateImagen(ctx context.Context, client *genai.Client, prompt string) ([]byte, string, error) {
	resp, err := client.Models.GenerateImages(ctx, g.cfg.PremiumImageModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		return nil, "", err
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, "", fmt.Errorf("no image in response")
	}

	img := resp.GeneratedImages[0].Image
	contentType := img.MIMEType
	if contentType == "" {
		contentType = "image/png"
	}
	return img.ImageBytes, contentType, nil
}

var _ interfaces.ImageGenerator = (*Generator)(nil)
