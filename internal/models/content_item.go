package models

import (
	"fmt"
	"time"
)

// EnrichmentStatus tracks the metadata-enrichment stage for an item.
type EnrichmentStatus string

const (
	EnrichmentPending EnrichmentStatus = "pending"
	EnrichmentDone    EnrichmentStatus = "done"
	EnrichmentFailed  EnrichmentStatus = "failed"
)

// RewriteStatus tracks the LLM rewrite stage for an item.
type RewriteStatus string

const (
	RewritePending RewriteStatus = "pending"
	RewriteDone    RewriteStatus = "done"
	RewriteFailed  RewriteStatus = "failed"
)

// ImageStatus tracks the image-resolution stage for an item.
// The three success states record which rung of the resolution
// hierarchy produced the image.
type ImageStatus string

const (
	ImagePending   ImageStatus = "pending"
	ImageOGUsed    ImageStatus = "og_used"
	ImageWebFound  ImageStatus = "web_found"
	ImageGenerated ImageStatus = "generated"
	ImageFailed    ImageStatus = "failed"
)

// IsTerminal reports whether the image stage has finished, successfully or not.
func (s ImageStatus) IsTerminal() bool {
	return s == ImageOGUsed || s == ImageWebFound || s == ImageGenerated || s == ImageFailed
}

// IsResolved reports whether an image was actually produced.
func (s ImageStatus) IsResolved() bool {
	return s == ImageOGUsed || s == ImageWebFound || s == ImageGenerated
}

// Stage transition tables. Statuses only move forward: pending may advance
// to a terminal state, terminal states never move except through an
// explicit reset (admin rerun), which goes back to pending.
var (
	enrichmentTransitions = map[EnrichmentStatus][]EnrichmentStatus{
		EnrichmentPending: {EnrichmentDone, EnrichmentFailed},
	}
	rewriteTransitions = map[RewriteStatus][]RewriteStatus{
		RewritePending: {RewriteDone, RewriteFailed},
	}
	imageTransitions = map[ImageStatus][]ImageStatus{
		ImagePending: {ImageOGUsed, ImageWebFound, ImageGenerated, ImageFailed},
	}
)

// ContentItem is one news item traveling through the pipeline.
// Source facts are immutable once set; each worker type mutates exactly
// one field group.
type ContentItem struct {
	ID   string `badgerhold:"key" json:"id"`
	Hash string `badgerhold:"unique" json:"hash"`

	// Source facts
	SourceID        string    `badgerhold:"index" json:"source_id"`
	SourceCategory  string    `badgerhold:"index" json:"source_category"`
	TitleOriginal   string    `json:"title_original"`
	SummaryOriginal string    `json:"summary_original"`
	SourceURL       string    `json:"source_url"`
	PublishedAt     time.Time `json:"published_at"`
	RawPayload      string    `json:"raw_payload,omitempty"`

	// Enrichment
	CanonicalURL     string           `json:"canonical_url,omitempty"`
	SiteName         string           `json:"site_name,omitempty"`
	OGImageURL       string           `json:"og_image_url,omitempty"`
	TwitterImageURL  string           `json:"twitter_image_url,omitempty"`
	EnrichmentStatus EnrichmentStatus `json:"enrichment_status"`
	EnrichmentError  string           `json:"enrichment_error,omitempty"`

	// Rewrite
	TitleRewritten       string        `json:"title_rewritten,omitempty"`
	SummaryRewritten     string        `json:"summary_rewritten,omitempty"`
	RewriteStatus        RewriteStatus `json:"rewrite_status"`
	RewriteModel         string        `json:"rewrite_model,omitempty"`
	RewritePromptVersion string        `json:"rewrite_prompt_version,omitempty"`
	RewriteHash          string        `json:"rewrite_hash,omitempty"`

	// Image
	ImageStatus        ImageStatus       `json:"image_status"`
	ImageSelectedURL   string            `json:"image_selected_url,omitempty"`
	ImageSourcePageURL string            `json:"image_source_page_url,omitempty"`
	ImageStorageURL    string            `json:"image_storage_url,omitempty"`
	ImagePrompt        string            `json:"image_prompt,omitempty"`
	ImageModel         string            `json:"image_model,omitempty"`
	ImageMetadata      map[string]string `json:"image_metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewContentItem creates an item in the initial pending state for all stages.
func NewContentItem(id, hash string) *ContentItem {
	now := time.Now()
	return &ContentItem{
		ID:               id,
		Hash:             hash,
		EnrichmentStatus: EnrichmentPending,
		RewriteStatus:    RewritePending,
		ImageStatus:      ImagePending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// AdvanceEnrichment moves the enrichment stage forward, rejecting
// backward or repeated transitions.
func (c *ContentItem) AdvanceEnrichment(next EnrichmentStatus) error {
	if !contains(enrichmentTransitions[c.EnrichmentStatus], next) {
		return fmt.Errorf("illegal enrichment transition %s -> %s", c.EnrichmentStatus, next)
	}
	c.EnrichmentStatus = next
	return nil
}

// AdvanceRewrite moves the rewrite stage forward, rejecting backward or
// repeated transitions.
func (c *ContentItem) AdvanceRewrite(next RewriteStatus) error {
	if !contains(rewriteTransitions[c.RewriteStatus], next) {
		return fmt.Errorf("illegal rewrite transition %s -> %s", c.RewriteStatus, next)
	}
	c.RewriteStatus = next
	return nil
}

// AdvanceImage moves the image stage forward, rejecting backward or
// repeated transitions.
func (c *ContentItem) AdvanceImage(next ImageStatus) error {
	if !contains(imageTransitions[c.ImageStatus], next) {
		return fmt.Errorf("illegal image transition %s -> %s", c.ImageStatus, next)
	}
	c.ImageStatus = next
	return nil
}

// ResetRewrite returns the rewrite stage to pending for an explicit re-run.
func (c *ContentItem) ResetRewrite() {
	c.RewriteStatus = RewritePending
	c.RewriteHash = ""
	c.TitleRewritten = ""
	c.SummaryRewritten = ""
	c.RewriteModel = ""
}

// ResetImage returns the image stage to pending for an explicit re-fetch.
func (c *ContentItem) ResetImage() {
	c.ImageStatus = ImagePending
	c.ImageSelectedURL = ""
	c.ImageSourcePageURL = ""
	c.ImageStorageURL = ""
	c.ImagePrompt = ""
	c.ImageModel = ""
	c.ImageMetadata = nil
}

// BestTitle returns the rewritten title when available, else the original.
func (c *ContentItem) BestTitle() string {
	if c.RewriteStatus == RewriteDone && c.TitleRewritten != "" {
		return c.TitleRewritten
	}
	return c.TitleOriginal
}

// BestSummary returns the rewritten summary when available, else the original.
func (c *ContentItem) BestSummary() string {
	if c.RewriteStatus == RewriteDone && c.SummaryRewritten != "" {
		return c.SummaryRewritten
	}
	return c.SummaryOriginal
}

// SetImageMeta records a provenance/attribution/error entry on the item.
func (c *ContentItem) SetImageMeta(key, value string) {
	if c.ImageMetadata == nil {
		c.ImageMetadata = make(map[string]string)
	}
	c.ImageMetadata[key] = value
}

func contains[T comparable](list []T, v T) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}
