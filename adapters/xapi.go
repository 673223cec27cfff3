package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/apex/log"

	"monitoring-pipeline/models"
)

const xAPIBase = "https://api.x.com/2"

// XAdapter reads tweets through the X API v2 with a bearer token.
// Profile sources use the user timeline endpoint with since_id; hashtag
// and search sources use recent search.
type XAdapter struct {
	key     KeyFunc
	baseURL string
	client  *http.Client
}

// NewXAdapter creates an adapter for the X API.
func NewXAdapter(key KeyFunc, timeout time.Duration) *XAdapter {
	return &XAdapter{
		key:     key,
		baseURL: xAPIBase,
		client:  &http.Client{Timeout: timeout},
	}
}

func (a *XAdapter) Platform() models.Platform { return models.PlatformX }

// RecencyOrdered is true: timelines and recent search return tweets
// newest first with monotonic ids.
func (a *XAdapter) RecencyOrdered() bool { return true }

type xTweet struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	AuthorID    string    `json:"author_id"`
	CreatedAt   time.Time `json:"created_at"`
	Attachments struct {
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
}

type xUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type xMedia struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"`
	URL             string `json:"url"`
	PreviewImageURL string `json:"preview_image_url"`
}

type xTimelineResponse struct {
	Data     []xTweet `json:"data"`
	Includes struct {
		Users []xUser  `json:"users"`
		Media []xMedia `json:"media"`
	} `json:"includes"`
	Errors []struct {
		Detail string `json:"detail"`
		Title  string `json:"title"`
	} `json:"errors"`
}

// Fetch returns recent tweets for the query, newest first.
func (a *XAdapter) Fetch(ctx context.Context, q Query) ([]Item, error) {
	token := a.key()
	if token == "" {
		return nil, fmt.Errorf("x api bearer token is not configured")
	}

	var endpoint string
	params := url.Values{}
	params.Set("max_results", strconv.Itoa(clampMaxResults(q.MaxResults, 10, 100)))
	params.Set("tweet.fields", "created_at,author_id,attachments")
	params.Set("expansions", "author_id,attachments.media_keys")
	params.Set("media.fields", "url,preview_image_url,type")
	params.Set("user.fields", "name,username")

	switch q.Type {
	case models.QueryUserProfile:
		userID, err := a.lookupUserID(ctx, token, q.Value)
		if err != nil {
			return nil, err
		}
		if q.SinceID != "" {
			params.Set("since_id", q.SinceID)
		}
		endpoint = fmt.Sprintf("%s/users/%s/tweets", a.baseURL, userID)
	case models.QueryHashtag:
		params.Set("query", "#"+q.Value+" -is:retweet")
		if q.SinceID != "" {
			params.Set("since_id", q.SinceID)
		}
		endpoint = a.baseURL + "/tweets/search/recent"
	case models.QuerySearch:
		params.Set("query", q.Value+" -is:retweet")
		if q.SinceID != "" {
			params.Set("since_id", q.SinceID)
		}
		endpoint = a.baseURL + "/tweets/search/recent"
	default:
		return nil, fmt.Errorf("unsupported query type %s for x_twitter", q.Type)
	}

	var resp xTimelineResponse
	if err := a.get(ctx, token, endpoint+"?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		log.Warnf("x api returned partial errors: %s", resp.Errors[0].Title)
	}

	users := make(map[string]xUser, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		users[u.ID] = u
	}
	media := make(map[string]xMedia, len(resp.Includes.Media))
	for _, m := range resp.Includes.Media {
		media[m.MediaKey] = m
	}

	items := make([]Item, 0, len(resp.Data))
	for _, t := range resp.Data {
		raw, _ := json.Marshal(t)
		ts := t.CreatedAt
		item := Item{
			ExternalID: t.ID,
			Text:       t.Text,
			Metadata:   string(raw),
			Timestamp:  &ts,
		}
		if u, ok := users[t.AuthorID]; ok {
			item.AuthorUsername = u.Username
			item.AuthorDisplayName = u.Name
			item.AuthorProfileURL = "https://x.com/" + u.Username
			item.URL = fmt.Sprintf("https://x.com/%s/status/%s", u.Username, t.ID)
		} else {
			item.URL = "https://x.com/i/status/" + t.ID
		}
		for _, key := range t.Attachments.MediaKeys {
			if m, ok := media[key]; ok {
				if m.URL != "" {
					item.MediaURLs = append(item.MediaURLs, m.URL)
				} else if m.PreviewImageURL != "" {
					item.MediaURLs = append(item.MediaURLs, m.PreviewImageURL)
				}
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func (a *XAdapter) lookupUserID(ctx context.Context, token, username string) (string, error) {
	var resp struct {
		Data xUser `json:"data"`
	}
	endpoint := fmt.Sprintf("%s/users/by/username/%s", a.baseURL, url.PathEscape(username))
	if err := a.get(ctx, token, endpoint, &resp); err != nil {
		return "", fmt.Errorf("failed to resolve x user %s: %w", username, err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("x user %s not found", username)
	}
	return resp.Data.ID, nil
}

func (a *XAdapter) get(ctx context.Context, token, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create x api request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("x api request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read x api response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("x api returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse x api response: %w", err)
	}
	return nil
}

func clampMaxResults(n, min, max int) int {
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
