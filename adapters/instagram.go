package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"monitoring-pipeline/models"
)

const apifyBase = "https://api.apify.com/v2"

// instagramActor is the Apify scraper the adapter drives. Instagram has
// no practical official API for third-party monitoring, so fetches run
// the actor synchronously and read its dataset items.
const instagramActor = "apify~instagram-scraper"

// InstagramAdapter reads Instagram posts through an Apify actor run.
type InstagramAdapter struct {
	key     KeyFunc
	baseURL string
	client  *http.Client
}

// NewInstagramAdapter creates an adapter backed by the Apify API.
func NewInstagramAdapter(key KeyFunc, timeout time.Duration) *InstagramAdapter {
	return &InstagramAdapter{
		key:     key,
		baseURL: apifyBase,
		client:  &http.Client{Timeout: timeout},
	}
}

func (a *InstagramAdapter) Platform() models.Platform { return models.PlatformInstagram }

// RecencyOrdered is true: Fetch sorts posts newest first by timestamp
// before returning them.
func (a *InstagramAdapter) RecencyOrdered() bool { return true }

type apifyPost struct {
	ID            string    `json:"id"`
	ShortCode     string    `json:"shortCode"`
	URL           string    `json:"url"`
	Caption       string    `json:"caption"`
	OwnerUsername string    `json:"ownerUsername"`
	OwnerFullName string    `json:"ownerFullName"`
	Timestamp     time.Time `json:"timestamp"`
	DisplayURL    string    `json:"displayUrl"`
	VideoURL      string    `json:"videoUrl"`
	Images        []string  `json:"images"`
	Type          string    `json:"type"`
}

// Fetch runs the scraper actor and returns its posts, newest first.
func (a *InstagramAdapter) Fetch(ctx context.Context, q Query) ([]Item, error) {
	token := a.key()
	if token == "" {
		return nil, fmt.Errorf("apify api token is not configured")
	}

	input := map[string]any{
		"resultsLimit": clampMaxResults(q.MaxResults, 1, 100),
	}
	switch q.Type {
	case models.QueryUserProfile:
		input["directUrls"] = []string{"https://www.instagram.com/" + q.Value + "/"}
		input["resultsType"] = "posts"
	case models.QueryHashtag:
		input["hashtags"] = []string{strings.TrimPrefix(q.Value, "#")}
		input["resultsType"] = "posts"
	default:
		return nil, fmt.Errorf("unsupported query type %s for instagram", q.Type)
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode actor input: %w", err)
	}

	endpoint := fmt.Sprintf("%s/acts/%s/run-sync-get-dataset-items?token=%s",
		a.baseURL, instagramActor, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create apify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apify actor run failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read apify response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("apify returned status %d: %s", resp.StatusCode, string(body))
	}

	var posts []apifyPost
	if err := json.Unmarshal(body, &posts); err != nil {
		return nil, fmt.Errorf("failed to parse apify dataset items: %w", err)
	}

	items := make([]Item, 0, len(posts))
	for _, p := range posts {
		raw, _ := json.Marshal(p)
		ts := p.Timestamp
		item := Item{
			ExternalID:        p.ID,
			URL:               p.URL,
			Text:              p.Caption,
			Metadata:          string(raw),
			AuthorUsername:    p.OwnerUsername,
			AuthorDisplayName: p.OwnerFullName,
			Timestamp:         &ts,
		}
		if p.ID == "" {
			item.ExternalID = p.ShortCode
		}
		if p.OwnerUsername != "" {
			item.AuthorProfileURL = "https://www.instagram.com/" + p.OwnerUsername + "/"
		}
		if p.VideoURL != "" {
			item.MediaURLs = append(item.MediaURLs, p.VideoURL)
		}
		if len(p.Images) > 0 {
			item.MediaURLs = append(item.MediaURLs, p.Images...)
		} else if p.DisplayURL != "" {
			item.MediaURLs = append(item.MediaURLs, p.DisplayURL)
		}
		items = append(items, item)
	}

	// The actor does not guarantee ordering, sort newest first so the
	// dedup cutoff sees a monotonic stream.
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Timestamp == nil || items[j].Timestamp == nil {
			return false
		}
		return items[i].Timestamp.After(*items[j].Timestamp)
	})
	return items, nil
}
