package ai

import (
	"encoding/json"
	"regexp"
	"strings"
)

// AnalysisResult represents the parsed analysis from the model.
type AnalysisResult struct {
	RelevanceScore float64  `json:"relevance_score"`
	Summary        string   `json:"summary"`
	IsAlert        bool     `json:"is_alert"`
	Flags          []string `json:"flags"`

	// ParseFailed marks the neutral fallback result used when the
	// response contained no usable JSON.
	ParseFailed bool `json:"-"`
}

// neutralScore is used when the model response cannot be parsed. A
// malformed response must never drop a captured item, so it gets a
// mid-range score and a human reads the raw text.
const neutralScore = 0.5

var scoreObjectRe = regexp.MustCompile(`\{[^{}]*"relevance_score"[^{}]*\}`)

// extractJSONFromMarkdown extracts JSON from markdown code blocks
func extractJSONFromMarkdown(response string) string {
	startMarker := "```"
	endMarker := "```"

	startIdx := strings.Index(response, startMarker)
	if startIdx == -1 {
		// No code block found, try to find JSON object directly
		startIdx = strings.Index(response, "{")
		if startIdx == -1 {
			return response
		}
		endIdx := strings.LastIndex(response, "}")
		if endIdx == -1 {
			return response
		}
		return strings.TrimSpace(response[startIdx : endIdx+1])
	}

	endIdx := strings.Index(response[startIdx+len(startMarker):], endMarker)
	if endIdx == -1 {
		return response
	}
	endIdx += startIdx + len(startMarker)

	content := response[startIdx+len(startMarker) : endIdx]

	// Remove the language identifier if present (e.g., "json")
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > 0 && (strings.TrimSpace(lines[0]) == "json" || strings.TrimSpace(lines[0]) == "") {
		content = strings.Join(lines[1:], "\n")
	}

	return strings.TrimSpace(content)
}

// ParseAnalysis extracts the analysis from a model response. It never
// returns an error: a fenced or bare JSON object is preferred, then any
// embedded object carrying a relevance_score, and finally a neutral
// fallback that preserves the raw text as the summary.
func ParseAnalysis(response string) *AnalysisResult {
	cleaned := strings.TrimSpace(response)

	jsonContent := extractJSONFromMarkdown(cleaned)

	var result AnalysisResult
	if err := json.Unmarshal([]byte(jsonContent), &result); err == nil && validScore(result.RelevanceScore) {
		return &result
	}

	if match := scoreObjectRe.FindString(cleaned); match != "" {
		var embedded AnalysisResult
		if err := json.Unmarshal([]byte(match), &embedded); err == nil && validScore(embedded.RelevanceScore) {
			return &embedded
		}
	}

	summary := cleaned
	if len(summary) > 500 {
		summary = summary[:500]
	}
	return &AnalysisResult{
		RelevanceScore: neutralScore,
		Summary:        summary,
		ParseFailed:    true,
	}
}

func validScore(score float64) bool {
	return score >= 0 && score <= 1
}
