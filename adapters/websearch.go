package adapters

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"monitoring-pipeline/models"
)

const serpAPIBase = "https://serpapi.com/search.json"

// WebSearchAdapter monitors the open web through SerpAPI Google
// searches. Search results carry no stable platform ids, so items get a
// synthetic id derived from the result URL and dedup runs on that.
type WebSearchAdapter struct {
	key     KeyFunc
	baseURL string
	client  *http.Client
}

// NewWebSearchAdapter creates an adapter backed by SerpAPI.
func NewWebSearchAdapter(key KeyFunc, timeout time.Duration) *WebSearchAdapter {
	return &WebSearchAdapter{
		key:     key,
		baseURL: serpAPIBase,
		client:  &http.Client{Timeout: timeout},
	}
}

func (a *WebSearchAdapter) Platform() models.Platform { return models.PlatformWebSearch }

// RecencyOrdered is false: organic results are rank-ordered, so a
// marker cut would drop new pages ranked below the previous top result.
func (a *WebSearchAdapter) RecencyOrdered() bool { return false }

type serpResult struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Source   string `json:"source"`
	Date     string `json:"date"`
}

type serpResponse struct {
	OrganicResults []serpResult `json:"organic_results"`
	Error          string       `json:"error"`
}

// Fetch runs a Google search and normalizes the organic results. The
// results have no reliable recency ordering, so timestamp markers are
// not advanced for this platform and dedup relies on the per-item
// identity check.
func (a *WebSearchAdapter) Fetch(ctx context.Context, q Query) ([]Item, error) {
	apiKey := a.key()
	if apiKey == "" {
		return nil, fmt.Errorf("serpapi key is not configured")
	}
	if q.Type != models.QuerySearch {
		return nil, fmt.Errorf("unsupported query type %s for web_search", q.Type)
	}

	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", q.Value)
	params.Set("num", strconv.Itoa(clampMaxResults(q.MaxResults, 1, 100)))
	params.Set("api_key", apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create serpapi request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serpapi request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read serpapi response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serpapi returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed serpResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse serpapi response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("serpapi error: %s", parsed.Error)
	}

	items := make([]Item, 0, len(parsed.OrganicResults))
	for _, r := range parsed.OrganicResults {
		raw, _ := json.Marshal(r)
		items = append(items, Item{
			ExternalID:        syntheticID(r.Link),
			URL:               r.Link,
			Text:              r.Title + "\n" + r.Snippet,
			Metadata:          string(raw),
			AuthorDisplayName: r.Source,
		})
	}
	return items, nil
}

// syntheticID derives a stable id for a search result from its URL.
func syntheticID(link string) string {
	sum := sha256.Sum256([]byte(link))
	return "web_" + hex.EncodeToString(sum[:])[:16]
}
