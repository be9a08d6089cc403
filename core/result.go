package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Result is the structured terminal payload handed to the caller when a run
// reaches the Terminal state.
type Result struct {
	Title             string `json:"title"`
	Body              string `json:"body"`
	AuxiliaryAssetURL string `json:"auxiliaryAssetUrl,omitempty"`
}

// Markdown renders the result as a markdown document. assetRef, when not
// empty, is linked as an image below the body.
func (r Result) Markdown(assetRef string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n", r.Title, r.Body)
	if assetRef != "" {
		fmt.Fprintf(&b, "\n![Image](%s)\n", assetRef)
	}
	return b.String()
}

// ParseResult decodes a terminal payload of the form
//
//	{"title": "...", "story": "...", "imageUrl": "..."}
//
// Keys are matched case-insensitively; "body" and "story" are synonyms, as
// are "imageUrl", "image_url" and "auxiliaryAssetUrl". The JSON object may be
// wrapped in a markdown code fence or surrounded by prose. Title and body are
// required.
func ParseResult(text string) (Result, error) {
	raw, ok := extractObject(text)
	if !ok {
		return Result{}, fmt.Errorf("%w: no JSON object found", ErrMalformedTerminalPayload)
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedTerminalPayload, err)
	}
	var r Result
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch strings.ToLower(k) {
		case "title":
			r.Title = s
		case "body", "story":
			r.Body = s
		case "imageurl", "image_url", "auxiliaryasseturl":
			r.AuxiliaryAssetURL = s
		}
	}
	if strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.Body) == "" {
		return Result{}, fmt.Errorf("%w: title and body are required", ErrMalformedTerminalPayload)
	}
	return r, nil
}

func extractObject(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimPrefix(text, "json")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
