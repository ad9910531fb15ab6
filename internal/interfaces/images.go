package interfaces

import (
	"context"

	"github.com/ternarybob/newswire/internal/models"
)

// ImageSearchProvider returns ranked image candidates for a query.
type ImageSearchProvider interface {
	Name() string
	Available() bool
	Search(ctx context.Context, query string, limit int) ([]models.ImageCandidate, error)
}

// DownloadTracker is implemented by stock providers whose license terms
// require a tracking call when an image is actually used.
type DownloadTracker interface {
	TrackDownload(ctx context.Context, candidate models.ImageCandidate) error
}

// ImageGenerator produces an image from a prompt.
type ImageGenerator interface {
	Name() string
	Available() bool
	// Generate returns the image bytes, content type and the model that
	// produced them.
	Generate(ctx context.Context, prompt string) (data []byte, contentType string, model string, err error)
}

// PolicyGate decides whether AI generation is permitted for an item.
type PolicyGate interface {
	Evaluate(ctx context.Context, title, summary, category string) (models.PolicyDecision, error)
}

// ObjectStore is the content-addressed media store. Uploads with the
// same key converge on the same object, so concurrent writers need no
// coordination.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (publicURL string, err error)
	Exists(ctx context.Context, key string) (bool, error)
	// PublicURL returns the serving URL for an existing key.
	PublicURL(key string) string
}

// SearchCache stores image search results keyed by query hash with TTL.
type SearchCache interface {
	Get(ctx context.Context, queryHash string) (*models.CachedImageSearch, error)
	Put(ctx context.Context, entry *models.CachedImageSearch) error
}
