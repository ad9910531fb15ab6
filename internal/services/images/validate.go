package images

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/newswire/internal/common"
)

// Validator checks that a candidate image URL is actually usable before
// the pipeline commits to it.
type Validator struct {
	client    *http.Client
	userAgent string
	minBytes  int64
}

func NewValidator(crawlerCfg common.CrawlerConfig, minBytes int64) *Validator {
	timeout := common.DurationOr(crawlerCfg.RequestTimeout, 15*time.Second)
	if minBytes <= 0 {
		minBytes = 40 * 1024
	}
	return &Validator{
		client:    &http.Client{Timeout: timeout},
		userAgent: crawlerCfg.UserAgent,
		minBytes:  minBytes,
	}
}

// Validate HEADs the URL and rejects non-200 responses, non-image
// content, SVGs, and bodies under the size floor. A missing
// Content-Length passes the size check; the floor only rejects images
// the server admits are tiny.
func (v *Validator) Validate(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("build head request: %w", err)
	}
	if v.userAgent != "" {
		req.Header.Set("User-Agent", v.userAgent)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("head %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image %s: status %d", url, resp.StatusCode)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "image/") {
		return fmt.Errorf("image %s: content type %q is not an image", url, contentType)
	}
	if strings.Contains(contentType, "svg") {
		return fmt.Errorf("image %s: SVG not accepted", url)
	}

	if resp.ContentLength > 0 && resp.ContentLength < v.minBytes {
		return fmt.Errorf("image %s: %d bytes below %d byte floor", url, resp.ContentLength, v.minBytes)
	}

	return nil
}
