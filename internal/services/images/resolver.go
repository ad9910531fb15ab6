package images

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
	"github.com/ternarybob/newswire/internal/services/hasher"
)

// maxCandidateChecks bounds how many ranked candidates get validated
// per search rung before moving on.
const maxCandidateChecks = 5

// providerCacheVersion tags cache keys so a ranking change can bust
// stale entries.
const providerCacheVersion = "v1"

// CandidateValidator checks that an image URL is usable.
type CandidateValidator interface {
	Validate(ctx context.Context, url string) error
}

// Downloader fetches raw bytes from a URL.
type Downloader interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Resolution is the outcome of one resolver pass over an item.
type Resolution struct {
	Status        models.ImageStatus
	SelectedURL   string
	SourcePageURL string
	StorageURL    string
	Prompt        string
	Model         string
	Metadata      map[string]string
}

func (r *Resolution) setMeta(key, value string) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
}

// Resolver walks the image acquisition hierarchy in priority order:
// OG reuse, web search, stock search, policy-gated generation. First
// success wins; everything failing yields a failed resolution with the
// last error preserved.
type Resolver struct {
	validator  CandidateValidator
	downloader Downloader
	searchers  []interfaces.ImageSearchProvider
	cache      interfaces.SearchCache
	policy     interfaces.PolicyGate
	generator  interfaces.ImageGenerator
	store      interfaces.ObjectStore
	minWidth   int
	logger     arbor.ILogger
}

func NewResolver(
	validator CandidateValidator,
	downloader Downloader,
	searchers []interfaces.ImageSearchProvider,
	cache interfaces.SearchCache,
	policy interfaces.PolicyGate,
	generator interfaces.ImageGenerator,
	store interfaces.ObjectStore,
	minWidth int,
) *Resolver {
	if minWidth <= 0 {
		minWidth = 800
	}
	return &Resolver{
		validator:  validator,
		downloader: downloader,
		searchers:  searchers,
		cache:      cache,
		policy:     policy,
		generator:  generator,
		store:      store,
		minWidth:   minWidth,
		logger:     common.GetLogger(),
	}
}

// Resolve runs the hierarchy for one item. It never returns an error:
// total failure is a valid resolution with status failed.
func (r *Resolver) Resolve(ctx context.Context, item *models.ContentItem) *Resolution {
	var lastErr error

	// 1. OG / Twitter-card reuse.
	if res, err := r.tryOG(ctx, item); err == nil && res != nil {
		return res
	} else if err != nil {
		lastErr = err
	}

	// 2-3. Search rungs: paid SERP, then editorial stock.
	query := BuildQuery(item.BestTitle(), item.SourceCategory)
	if res, err := r.trySearch(ctx, item, query); err == nil && res != nil {
		return res
	} else if err != nil {
		lastErr = err
	}

	// 4. Policy-gated generation, with denial rerouting to search.
	if res, err := r.tryGeneration(ctx, item); err == nil && res != nil {
		return res
	} else if err != nil {
		lastErr = err
	}

	failed := &Resolution{Status: models.ImageFailed}
	if lastErr != nil {
		failed.setMeta("last_error", lastErr.Error())
	} else {
		failed.setMeta("last_error", "no acquisition strategy produced an image")
	}
	return failed
}

// tryOG validates and stores the enrichment-captured image, preferring
// the Open Graph URL over the Twitter card.
func (r *Resolver) tryOG(ctx context.Context, item *models.ContentItem) (*Resolution, error) {
	var lastErr error
	for _, candidateURL := range []string{item.OGImageURL, item.TwitterImageURL} {
		if candidateURL == "" {
			continue
		}
		if err := r.validator.Validate(ctx, candidateURL); err != nil {
			r.logger.Debug().Err(err).Str("content_id", item.ID).Msg("OG candidate rejected")
			lastErr = err
			continue
		}

		storageURL, err := r.download(ctx, item, candidateURL)
		if err != nil {
			lastErr = err
			continue
		}

		res := &Resolution{
			Status:        models.ImageOGUsed,
			SelectedURL:   candidateURL,
			SourcePageURL: item.SourceURL,
			StorageURL:    storageURL,
		}
		res.setMeta("provenance", "open_graph")
		return res, nil
	}
	return nil, lastErr
}

// trySearch runs the query through each search provider in order.
func (r *Resolver) trySearch(ctx context.Context, item *models.ContentItem, query string) (*Resolution, error) {
	if query == "" {
		return nil, nil
	}

	var lastErr error
	for _, provider := range r.searchers {
		if !provider.Available() {
			continue
		}

		candidates, err := r.cachedSearch(ctx, provider, query)
		if err != nil {
			r.logger.Warn().Err(err).Str("provider", provider.Name()).Msg("Image search failed")
			lastErr = err
			continue
		}

		res, err := r.pickCandidate(ctx, item, provider, candidates)
		if err != nil {
			lastErr = err
			continue
		}
		if res != nil {
			return res, nil
		}
	}
	return nil, lastErr
}

// cachedSearch consults the Redis cache before issuing a billed search.
func (r *Resolver) cachedSearch(ctx context.Context, provider interfaces.ImageSearchProvider, query string) ([]models.ImageCandidate, error) {
	providerTag := provider.Name() + "-" + providerCacheVersion
	queryHash := hasher.QueryKey(query, providerTag)

	if r.cache != nil {
		if entry, err := r.cache.Get(ctx, queryHash); err == nil {
			r.logger.Debug().Str("provider", provider.Name()).Str("query", query).Msg("Image search cache hit")
			return entry.Results, nil
		}
	}

	candidates, err := provider.Search(ctx, query, 10)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		entry := &models.CachedImageSearch{
			QueryHash: queryHash,
			QueryText: query,
			Provider:  providerTag,
			Results:   candidates,
			CreatedAt: time.Now(),
		}
		if err := r.cache.Put(ctx, entry); err != nil {
			r.logger.Warn().Err(err).Msg("Image search cache write failed")
		}
	}

	return candidates, nil
}

// pickCandidate ranks the results and returns the first one that
// validates and downloads.
func (r *Resolver) pickCandidate(ctx context.Context, item *models.ContentItem, provider interfaces.ImageSearchProvider, candidates []models.ImageCandidate) (*Resolution, error) {
	ranked := rankCandidates(candidates, r.minWidth)

	var lastErr error
	checks := 0
	for _, candidate := range ranked {
		if checks >= maxCandidateChecks {
			break
		}
		checks++

		if err := r.validator.Validate(ctx, candidate.URL); err != nil {
			lastErr = err
			continue
		}

		storageURL, err := r.download(ctx, item, candidate.URL)
		if err != nil {
			lastErr = err
			continue
		}

		res := &Resolution{
			Status:        models.ImageWebFound,
			SelectedURL:   candidate.URL,
			SourcePageURL: candidate.SourcePageURL,
			StorageURL:    storageURL,
		}
		res.setMeta("provenance", provider.Name())

		if candidate.Photographer != "" {
			res.setMeta("photographer", candidate.Photographer)
			res.setMeta("photographer_url", candidate.PhotographerURL)
			res.setMeta("license", candidate.License)
		}
		if tracker, ok := provider.(interfaces.DownloadTracker); ok {
			if err := tracker.TrackDownload(ctx, candidate); err != nil {
				r.logger.Warn().Err(err).Str("provider", provider.Name()).Msg("Download tracking failed")
			}
		}

		return res, nil
	}
	return nil, lastErr
}

// spamImageHosts carry watermarked previews or unrelated thumbnails
// that pass validation but make bad article images.
var spamImageHosts = map[string]bool{
	"lookaside.fbsbx.com":        true,
	"lookaside.instagram.com":    true,
	"encrypted-tbn0.gstatic.com": true,
	"encrypted-tbn1.gstatic.com": true,
	"encrypted-tbn2.gstatic.com": true,
	"encrypted-tbn3.gstatic.com": true,
	"thumbs.dreamstime.com":      true,
	"previews.123rf.com":         true,
	"media.gettyimages.com":      true,
	"c8.alamy.com":               true,
}

func spamHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return spamImageHosts[strings.ToLower(u.Hostname())]
}

// rankCandidates drops known spam hosts, then orders candidates: wide
// enough first, then preferred formats, then raw width.
func rankCandidates(candidates []models.ImageCandidate, minWidth int) []models.ImageCandidate {
	ranked := make([]models.ImageCandidate, 0, len(candidates))
	for _, c := range candidates {
		if spamHost(c.URL) {
			continue
		}
		ranked = append(ranked, c)
	}

	score := func(c models.ImageCandidate) int {
		s := 0
		if c.Width >= minWidth {
			s += 100
		}
		switch c.Format {
		case "jpg", "jpeg", "png":
			s += 10
		}
		return s
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := score(ranked[i]), score(ranked[j])
		if si != sj {
			return si > sj
		}
		return ranked[i].Width > ranked[j].Width
	})
	return ranked
}

// FindCandidate runs the cached search rungs for an ad-hoc query and
// returns the best validated candidate without storing anything. Serves
// the synchronous fallback-image lookup.
func (r *Resolver) FindCandidate(ctx context.Context, query string) (*models.ImageCandidate, error) {
	query = BuildQuery(query, "")
	if query == "" {
		return nil, fmt.Errorf("empty image query")
	}

	var lastErr error
	for _, provider := range r.searchers {
		if !provider.Available() {
			continue
		}
		candidates, err := r.cachedSearch(ctx, provider, query)
		if err != nil {
			lastErr = err
			continue
		}
		for i, candidate := range rankCandidates(candidates, r.minWidth) {
			if i >= maxCandidateChecks {
				break
			}
			if err := r.validator.Validate(ctx, candidate.URL); err != nil {
				lastErr = err
				continue
			}
			c := candidate
			return &c, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("no usable image for %q: %w", query, lastErr)
	}
	return nil, fmt.Errorf("no usable image for %q", query)
}

// tryGeneration consults the policy gate; a denial reroutes the
// fallback queries through search, an allowance generates.
func (r *Resolver) tryGeneration(ctx context.Context, item *models.ContentItem) (*Resolution, error) {
	if r.policy == nil || r.generator == nil || !r.generator.Available() {
		return nil, nil
	}

	decision, err := r.policy.Evaluate(ctx, item.BestTitle(), item.BestSummary(), item.SourceCategory)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation: %w", err)
	}

	if !decision.Allowed {
		r.logger.Info().
			Str("content_id", item.ID).
			Str("reason", decision.Reason).
			Msg("Generation denied, rerouting fallback queries through search")

		var lastErr error
		for _, query := range decision.FallbackQueries {
			res, err := r.trySearch(ctx, item, BuildQuery(query, ""))
			if err != nil {
				lastErr = err
				continue
			}
			if res != nil {
				res.setMeta("policy_denied", decision.Reason)
				return res, nil
			}
		}
		if lastErr != nil {
			return nil, fmt.Errorf("%w (%s) and fallback search failed: %v", ErrPolicyDenied, decision.Reason, lastErr)
		}
		return nil, fmt.Errorf("%w: %s", ErrPolicyDenied, decision.Reason)
	}

	prompt := buildGenerationPrompt(decision.SafePrompt, item.SourceCategory)
	data, contentType, model, err := r.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("image generation: %w", err)
	}

	key := storageKey(item, extFromContentType(contentType))
	publicURL, err := r.store.Upload(ctx, key, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload generated image: %w", err)
	}

	res := &Resolution{
		Status:     models.ImageGenerated,
		StorageURL: publicURL,
		Prompt:     prompt,
		Model:      model,
	}
	res.setMeta("provenance", "generated")
	return res, nil
}

// download fetches the selected image and stores it under the item's
// content-addressed key.
func (r *Resolver) download(ctx context.Context, item *models.ContentItem, url string) (string, error) {
	data, err := r.downloader.Fetch(ctx, url)
	if err != nil {
		return "", fmt.Errorf("download image %s: %w", url, err)
	}

	key := storageKey(item, extFromURL(url))
	publicURL, err := r.store.Upload(ctx, key, data, contentTypeForExt(extFromURL(url)))
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return publicURL, nil
}

func storageKey(item *models.ContentItem, ext string) string {
	return fmt.Sprintf("content/%s/%s.%s", item.SourceID, item.Hash, ext)
}

func extFromURL(url string) string {
	if f := formatFromURL(url); f != "" {
		if f == "jpeg" {
			return "jpg"
		}
		return f
	}
	return "jpg"
}

func extFromContentType(contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return "png"
	case strings.Contains(contentType, "webp"):
		return "webp"
	case strings.Contains(contentType, "gif"):
		return "gif"
	default:
		return "jpg"
	}
}

func contentTypeForExt(ext string) string {
	switch ext {
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

// buildGenerationPrompt styles the classifier's safe prompt for the
// category and scrubs identity-bearing content.
func buildGenerationPrompt(safePrompt, category string) string {
	style := "clean editorial news illustration, soft natural lighting, wide composition"
	switch strings.ToLower(category) {
	case "sports":
		style = "dynamic sports editorial illustration, stadium atmosphere, motion"
	case "business", "finance":
		style = "modern business editorial illustration, muted professional palette"
	case "technology", "tech":
		style = "contemporary technology editorial illustration, abstract circuitry motifs"
	}

	return fmt.Sprintf(
		"%s. Style: %s. Strictly no real people, no faces of identifiable individuals, no flags, no logos, no text or lettering, no depiction of a specific real event.",
		strings.TrimSpace(safePrompt), style,
	)
}
