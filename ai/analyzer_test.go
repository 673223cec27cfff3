package ai

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"monitoring-pipeline/models"
)

// stubProvider returns a canned response and records the messages it
// was asked to complete.
type stubProvider struct {
	name     string
	vision   bool
	response string
	outcome  *Outcome

	gotMessages []Message
}

func (p *stubProvider) Name() string         { return p.name }
func (p *stubProvider) Model() string        { return p.name + "-model" }
func (p *stubProvider) SupportsVision() bool { return p.vision }

func (p *stubProvider) Complete(_ context.Context, messages []Message) Outcome {
	p.gotMessages = messages
	if p.outcome != nil {
		return *p.outcome
	}
	return Success(p.response)
}

func newTestAnalyzer(p Provider) *Analyzer {
	policy := RetryPolicy{MaxRetries: 0, InitialWait: time.Millisecond, MaxWait: time.Millisecond}
	return NewAnalyzer([]Provider{p}, policy, 0.6, 4)
}

func testTask(provider string) *models.MonitoringTask {
	return &models.MonitoringTask{
		ID:         1,
		AIProvider: provider,
		Objective:  "detect activities incompatible with sick leave",
	}
}

func TestAnalyzeScoresAboveThreshold(t *testing.T) {
	stub := &stubProvider{
		name:     "deepseek",
		response: `{"relevance_score": 0.9, "summary": "Subject lifting weights.", "is_alert": false, "flags": ["physical_activity"]}`,
	}
	analyzer := newTestAnalyzer(stub)

	analysis := analyzer.Analyze(context.Background(), testTask("deepseek"),
		&models.MonitoringResult{ID: 10, ContentText: "leg day!"})

	if !analysis.Success {
		t.Fatalf("analysis failed: %s", analysis.Err)
	}
	if analysis.RelevanceScore != 0.9 {
		t.Errorf("score = %v, want 0.9", analysis.RelevanceScore)
	}
	// 0.9 crosses the 0.6 threshold even though the model said is_alert=false.
	if !analysis.IsAlert {
		t.Error("score above threshold should alert")
	}
	if analysis.Provider != "deepseek" || analysis.Model != "deepseek-model" {
		t.Errorf("provider/model = %s/%s", analysis.Provider, analysis.Model)
	}
}

func TestAnalyzeModelAlertBelowThreshold(t *testing.T) {
	stub := &stubProvider{
		name:     "deepseek",
		response: `{"relevance_score": 0.4, "summary": "Mentions upcoming court date.", "is_alert": true}`,
	}
	analyzer := newTestAnalyzer(stub)

	analysis := analyzer.Analyze(context.Background(), testTask("deepseek"),
		&models.MonitoringResult{ID: 11, ContentText: "see you in court"})

	if !analysis.IsAlert {
		t.Error("model is_alert=true should alert regardless of score")
	}
}

func TestAnalyzeUnknownProvider(t *testing.T) {
	analyzer := newTestAnalyzer(&stubProvider{name: "deepseek"})
	analysis := analyzer.Analyze(context.Background(), testTask("gemini"), &models.MonitoringResult{})
	if analysis.Success {
		t.Error("expected failure for unknown provider")
	}
	if analysis.Err == "" {
		t.Error("expected error message")
	}
}

func TestAnalyzeProviderFailure(t *testing.T) {
	out := Fatal(context.DeadlineExceeded)
	stub := &stubProvider{name: "openai", vision: true, outcome: &out}
	analyzer := newTestAnalyzer(stub)

	analysis := analyzer.Analyze(context.Background(), testTask("openai"), &models.MonitoringResult{})
	if analysis.Success {
		t.Error("expected failed analysis")
	}
	if analysis.Err == "" {
		t.Error("expected error recorded on analysis")
	}
}

func TestTextOnlyProviderGetsOmissionNote(t *testing.T) {
	stub := &stubProvider{name: "deepseek", response: `{"relevance_score": 0.1, "summary": "ok"}`}
	analyzer := newTestAnalyzer(stub)

	result := &models.MonitoringResult{
		ContentText: "beach day",
		MediaCount:  3,
		MediaURLs:   []string{"a", "b", "c"},
	}
	analyzer.Analyze(context.Background(), testTask("deepseek"), result)

	if len(stub.gotMessages) != 2 {
		t.Fatalf("messages = %d, want 2", len(stub.gotMessages))
	}
	prompt, ok := stub.gotMessages[1].Content.(string)
	if !ok {
		t.Fatalf("text-only user content should be a plain string, got %T", stub.gotMessages[1].Content)
	}
	if !strings.Contains(prompt, "3 media attachment(s)") {
		t.Errorf("prompt missing omission note: %q", prompt)
	}
}

func TestTextOnlyProviderNoNoteWithoutMedia(t *testing.T) {
	stub := &stubProvider{name: "deepseek", response: `{"relevance_score": 0.1, "summary": "ok"}`}
	analyzer := newTestAnalyzer(stub)

	analyzer.Analyze(context.Background(), testTask("deepseek"),
		&models.MonitoringResult{ContentText: "quiet day"})

	prompt := stub.gotMessages[1].Content.(string)
	if strings.Contains(prompt, "media attachment") {
		t.Errorf("unexpected omission note without media: %q", prompt)
	}
}

func TestVisionProviderImageCap(t *testing.T) {
	stub := &stubProvider{name: "openai", vision: true, response: `{"relevance_score": 0.1, "summary": "ok"}`}
	analyzer := newTestAnalyzer(stub)

	dir := t.TempDir()
	var paths []string
	for i := 0; i < 6; i++ {
		path := filepath.Join(dir, fmt.Sprintf("img%d.jpg", i))
		if err := os.WriteFile(path, []byte("fake image bytes"), 0o644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, path)
	}

	result := &models.MonitoringResult{
		ContentText:     "photo dump",
		MediaCount:      6,
		MediaLocalPaths: paths,
	}
	analyzer.Analyze(context.Background(), testTask("openai"), result)

	content, ok := stub.gotMessages[1].Content.([]any)
	if !ok {
		t.Fatalf("vision user content should be a part list, got %T", stub.gotMessages[1].Content)
	}
	images := 0
	for _, part := range content {
		if _, isImage := part.(ImageContent); isImage {
			images++
		}
	}
	if images != 4 {
		t.Errorf("attached images = %d, want 4", images)
	}
}

func TestVisionProviderSkipsNonImages(t *testing.T) {
	stub := &stubProvider{name: "openai", vision: true, response: `{"relevance_score": 0.1, "summary": "ok"}`}
	analyzer := newTestAnalyzer(stub)

	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(video, []byte("fake video bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	result := &models.MonitoringResult{
		ContentText:     "video post",
		MediaCount:      1,
		MediaLocalPaths: []string{video},
	}
	analyzer.Analyze(context.Background(), testTask("openai"), result)

	content := stub.gotMessages[1].Content.([]any)
	if len(content) != 1 {
		t.Errorf("content parts = %d, want text only", len(content))
	}
}

func TestPromptTemplateSubstitution(t *testing.T) {
	stub := &stubProvider{name: "deepseek", response: `{"relevance_score": 0.1, "summary": "ok"}`}
	analyzer := newTestAnalyzer(stub)

	task := testTask("deepseek")
	task.AIPromptTemplate = "Goal: {objective}\nPost: {text}"
	ts := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	result := &models.MonitoringResult{
		ContentText:     "marathon finished!",
		AuthorUsername:  "runner42",
		SourceTimestamp: &ts,
		ExternalURL:     "https://x.com/runner42/status/1",
	}

	analyzer.Analyze(context.Background(), task, result)

	prompt := stub.gotMessages[1].Content.(string)
	if !strings.Contains(prompt, "Goal: detect activities incompatible with sick leave") {
		t.Errorf("objective not substituted: %q", prompt)
	}
	if !strings.Contains(prompt, "Post: marathon finished!") {
		t.Errorf("text not substituted: %q", prompt)
	}
	if !strings.Contains(prompt, "Author: runner42") {
		t.Errorf("context block missing author: %q", prompt)
	}
	if !strings.Contains(prompt, "2025-03-10T12:00:00Z") {
		t.Errorf("context block missing timestamp: %q", prompt)
	}
}
