package rewrite

import "fmt"

// systemPrompt sets the editorial contract for every rewrite request.
const systemPrompt = `You are a news sub-editor. You rewrite headlines and summaries to be clear, neutral and engaging without changing the facts. Never invent details, never editorialize, never exceed the requested lengths.`

// buildUserPrompt renders the rewrite request for one item.
func buildUserPrompt(title, summary, category string) string {
	return fmt.Sprintf(`Rewrite this %s news item.

Original title: %s
Original summary: %s

Rules:
- Title: at most 90 characters, no clickbait, no trailing punctuation.
- Summary: one or two sentences, at most 260 characters.
- Keep every fact; add nothing.

Respond with JSON: {"title": "...", "summary": "..."}`, categoryOrNews(category), title, summary)
}

func categoryOrNews(category string) string {
	if category == "" {
		return "general"
	}
	return category
}
