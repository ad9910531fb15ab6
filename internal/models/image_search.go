package models

import "time"

// ImageCandidate is one result from an image search provider.
type ImageCandidate struct {
	URL           string `json:"url"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Format        string `json:"format,omitempty"`
	SourcePageURL string `json:"source_page_url,omitempty"`

	// Stock-provider attribution
	Photographer     string `json:"photographer,omitempty"`
	PhotographerURL  string `json:"photographer_url,omitempty"`
	License          string `json:"license,omitempty"`
	DownloadLocation string `json:"download_location,omitempty"`
}

// CachedImageSearch is the cached result set for one normalized query.
// Stored in Redis under the query hash with a 30-day TTL so recurring
// topics do not repeat billed searches.
type CachedImageSearch struct {
	QueryHash string           `json:"query_hash"`
	QueryText string           `json:"query_text"`
	Provider  string           `json:"provider"`
	Results   []ImageCandidate `json:"results"`
	CreatedAt time.Time        `json:"created_at"`
}

// PolicyDecision is the image-generation safety verdict for an item.
type PolicyDecision struct {
	Allowed         bool     `json:"allowed"`
	Reason          string   `json:"reason,omitempty"`
	SafePrompt      string   `json:"safe_prompt,omitempty"`
	FallbackQueries []string `json:"fallback_queries,omitempty"`
}
