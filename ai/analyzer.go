package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"

	"monitoring-pipeline/media"
	"monitoring-pipeline/models"
)

const systemPrompt = `You are an analyst supporting licensed private investigators. You evaluate
social media and web content against an investigation objective and respond
with a single JSON object:

{
  "relevance_score": <0.0-1.0, how strongly the content relates to the objective>,
  "summary": "<2-3 sentences describing what the content shows and why it matters>",
  "is_alert": <true if an investigator should review this content promptly>,
  "flags": ["<short labels for notable elements, e.g. physical_activity, travel, location_disclosure>"]
}

Score only what the content actually shows. Do not speculate beyond the
visible evidence. Output the JSON object and nothing else.`

const defaultUserTemplate = `Investigation objective: {objective}

Content to evaluate:
{text}`

// Analysis is the full outcome of scoring one result.
type Analysis struct {
	Success        bool
	Provider       string
	Model          string
	RelevanceScore float64
	Summary        string
	Flags          []string
	IsAlert        bool
	RawResponse    string
	Err            string
}

// Analyzer scores results with the provider each task selects.
type Analyzer struct {
	providers      map[string]Provider
	policy         RetryPolicy
	alertThreshold float64
	maxImages      int
}

// NewAnalyzer builds an analyzer over the given providers, keyed by
// provider name as stored on tasks.
func NewAnalyzer(providers []Provider, policy RetryPolicy, alertThreshold float64, maxImages int) *Analyzer {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Analyzer{
		providers:      m,
		policy:         policy,
		alertThreshold: alertThreshold,
		maxImages:      maxImages,
	}
}

// Analyze scores one captured result against the task objective. A
// provider failure is reported in the Analysis, not as an error, so the
// caller can persist the failure on the result and move on.
func (a *Analyzer) Analyze(ctx context.Context, task *models.MonitoringTask, result *models.MonitoringResult) Analysis {
	provider, ok := a.providers[task.AIProvider]
	if !ok {
		return Analysis{Err: fmt.Sprintf("unknown AI provider %q", task.AIProvider)}
	}

	messages := a.buildMessages(provider, task, result)

	raw, err := a.policy.Do(ctx, func(ctx context.Context) Outcome {
		return provider.Complete(ctx, messages)
	})
	if err != nil {
		return Analysis{
			Provider: provider.Name(),
			Model:    provider.Model(),
			Err:      err.Error(),
		}
	}

	parsed := ParseAnalysis(raw)
	if parsed.ParseFailed {
		log.Warnf("unparseable analysis response for result %d, using neutral score", result.ID)
	}

	return Analysis{
		Success:        true,
		Provider:       provider.Name(),
		Model:          provider.Model(),
		RelevanceScore: parsed.RelevanceScore,
		Summary:        parsed.Summary,
		Flags:          parsed.Flags,
		IsAlert:        parsed.IsAlert || parsed.RelevanceScore >= a.alertThreshold,
		RawResponse:    raw,
	}
}

// buildMessages assembles the chat payload. Vision providers get up to
// the image cap attached as data URIs; text-only providers get a note
// naming how many attachments were omitted.
func (a *Analyzer) buildMessages(provider Provider, task *models.MonitoringTask, result *models.MonitoringResult) []Message {
	prompt := a.buildPrompt(task, result)

	if !provider.SupportsVision() {
		if result.MediaCount > 0 {
			prompt += fmt.Sprintf(
				"\n\nNote: this content has %d media attachment(s) that could not be "+
					"included in this text-only analysis. Score the text on its own.",
				result.MediaCount)
		}
		return []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		}
	}

	content := []any{TextContent{Type: "text", Text: prompt}}
	attached := 0
	for _, path := range result.MediaLocalPaths {
		if attached >= a.maxImages {
			break
		}
		if !media.IsImage(path) {
			continue
		}
		uri, err := media.EncodeDataURI(path)
		if err != nil {
			log.Warnf("failed to encode media %s for analysis: %v", path, err)
			continue
		}
		content = append(content, ImageContent{Type: "image_url", ImageURL: ImageURL{URL: uri}})
		attached++
	}

	return []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: content},
	}
}

func (a *Analyzer) buildPrompt(task *models.MonitoringTask, result *models.MonitoringResult) string {
	template := task.AIPromptTemplate
	if template == "" {
		template = defaultUserTemplate
	}

	text := result.ContentText
	if text == "" {
		text = "(no text content)"
	}

	prompt := strings.ReplaceAll(template, "{objective}", task.Objective)
	prompt = strings.ReplaceAll(prompt, "{text}", text)

	var ctxLines []string
	if result.AuthorUsername != "" {
		ctxLines = append(ctxLines, "Author: "+result.AuthorUsername)
	}
	if result.SourceTimestamp != nil {
		ctxLines = append(ctxLines, "Posted: "+result.SourceTimestamp.UTC().Format(time.RFC3339))
	}
	if result.ExternalURL != "" {
		ctxLines = append(ctxLines, "URL: "+result.ExternalURL)
	}
	if len(ctxLines) > 0 {
		prompt += "\n\nContext:\n" + strings.Join(ctxLines, "\n")
	}
	return prompt
}
