package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// codeFenceRegex strips markdown code fences that models wrap around
// JSON despite instructions not to.
var codeFenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// jsonObjectRegex finds the first JSON object embedded in prose.
var jsonObjectRegex = regexp.MustCompile(`(?s)\{.*\}`)

// ParseJSON decodes a model response into out, tolerating the usual
// model misbehavior: code fences, leading prose, trailing commentary.
func ParseJSON(response string, out any) error {
	text := strings.TrimSpace(response)
	if text == "" {
		return fmt.Errorf("empty model response")
	}

	if m := codeFenceRegex.FindStringSubmatch(text); len(m) == 2 {
		text = m[1]
	}

	if err := json.Unmarshal([]byte(text), out); err == nil {
		return nil
	}

	// Last resort: pull the first object-shaped substring.
	if m := jsonObjectRegex.FindString(text); m != "" {
		if err := json.Unmarshal([]byte(m), out); err == nil {
			return nil
		}
	}

	return fmt.Errorf("model response is not valid JSON: %.120s", text)
}
