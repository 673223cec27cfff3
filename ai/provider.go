// Package ai scores captured content against a task's investigation
// objective using chat-completion providers. Vision-capable providers
// receive attached images; text-only providers get an explicit note
// that media was omitted, so the model never silently ignores it.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	openAIEndpoint   = "https://api.openai.com/v1/chat/completions"
	deepSeekEndpoint = "https://api.deepseek.com/v1/chat/completions"

	openAIModel   = "gpt-4o"
	deepSeekModel = "deepseek-chat"

	maxCompletionTokens = 1000
	completionTemp      = 0.3
)

type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ImageContent struct {
	Type     string   `json:"type"`
	ImageURL ImageURL `json:"image_url"`
}

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content any `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Provider is one chat-completion backend.
type Provider interface {
	Name() string
	Model() string
	SupportsVision() bool
	Complete(ctx context.Context, messages []Message) Outcome
}

// Client calls an OpenAI-compatible chat completions endpoint. The API
// key resolves per request so a rotated key applies without a restart.
type Client struct {
	name     string
	model    string
	endpoint string
	key      func() string
	vision   bool
	client   *http.Client
}

// NewOpenAIClient creates the vision-capable OpenAI provider.
func NewOpenAIClient(key func() string, timeout time.Duration) *Client {
	return &Client{
		name:     "openai",
		model:    openAIModel,
		endpoint: openAIEndpoint,
		key:      key,
		vision:   true,
		client:   &http.Client{Timeout: timeout},
	}
}

// NewDeepSeekClient creates the text-only DeepSeek provider.
func NewDeepSeekClient(key func() string, timeout time.Duration) *Client {
	return &Client{
		name:     "deepseek",
		model:    deepSeekModel,
		endpoint: deepSeekEndpoint,
		key:      key,
		vision:   false,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string         { return c.name }
func (c *Client) Model() string        { return c.model }
func (c *Client) SupportsVision() bool { return c.vision }

// Complete sends one chat request. Rate limiting (429) yields a
// retryable outcome carrying the server's Retry-After hint; every other
// failure is fatal for this attempt.
func (c *Client) Complete(ctx context.Context, messages []Message) Outcome {
	apiKey := c.key()
	if apiKey == "" {
		return Fatal(fmt.Errorf("%s api key is not configured", c.name))
	}

	reqBody := ChatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxCompletionTokens,
		Temperature: completionTemp,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return Fatal(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return Fatal(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Fatal(fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Fatal(fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return RetryAfter(parseRetryAfter(resp.Header.Get("Retry-After")),
			fmt.Errorf("%s rate limited (status 429)", c.name))
	}
	if resp.StatusCode != http.StatusOK {
		return Fatal(fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body)))
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return Fatal(fmt.Errorf("failed to parse response: %w", err))
	}
	if len(chatResp.Choices) == 0 {
		return Fatal(fmt.Errorf("no choices in response"))
	}

	content := chatResp.Choices[0].Message.Content
	if contentStr, ok := content.(string); ok {
		return Success(contentStr)
	}
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return Fatal(fmt.Errorf("failed to marshal content: %w", err))
	}
	return Success(string(contentJSON))
}

// parseRetryAfter reads a Retry-After header in seconds. Zero means the
// server gave no usable hint and the backoff schedule applies.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
