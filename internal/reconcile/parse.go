package reconcile

import (
	"encoding/json"
	"strings"
)

// parseKind tags the decoded form of a model reply.
type parseKind int

const (
	parsedTitle parseKind = iota
	parsedReview
	parsedMalformed
)

// parsedResponse is the boundary decode of raw model output. Downstream
// logic switches on kind and never re-inspects untyped text.
type parsedResponse struct {
	kind       parseKind
	title      string
	confidence float64
	hasConf    bool
}

// parseResolution decodes one model reply. Accepted forms: a JSON object
// {"title": ..., "confidence": ...} or the REVIEW_MANUAL sentinel. Anything
// else is malformed and maps to manual review; malformed output is never a
// retry condition, the call already cost its tokens.
func parseResolution(text string) parsedResponse {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return parsedResponse{kind: parsedMalformed}
	}

	// Sentinel anywhere wins: a model that mentions REVIEW_MANUAL at all is
	// declining to resolve.
	if strings.Contains(strings.ToUpper(trimmed), ReviewSentinel) {
		return parsedResponse{kind: parsedReview}
	}

	var payload struct {
		Title      string   `json:"title"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(trimmed)), &payload); err != nil {
		return parsedResponse{kind: parsedMalformed}
	}

	title := cleanTitle(payload.Title)
	if title == "" {
		return parsedResponse{kind: parsedMalformed}
	}

	out := parsedResponse{kind: parsedTitle, title: title}
	if payload.Confidence != nil {
		out.confidence = clamp01(*payload.Confidence)
		out.hasConf = true
	}
	return out
}

// cleanJSON strips markdown fences and any prose around the outermost JSON
// object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// cleanTitle normalizes a model-proposed title: surrounding quotes and a
// trailing period come off, whitespace runs collapse.
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimSuffix(s, ".")
	return strings.Join(strings.Fields(s), " ")
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
