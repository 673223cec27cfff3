package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"monitoring-pipeline/models"
)

func TestWebSearchFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("engine"); got != "google" {
			t.Errorf("engine = %q, want google", got)
		}
		if got := r.URL.Query().Get("q"); got != "john doe construction" {
			t.Errorf("q = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"organic_results": [
				{"position": 1, "title": "John Doe wins contract", "link": "https://news.example.com/a", "snippet": "Local builder John Doe...", "source": "Example News"},
				{"position": 2, "title": "Doe Construction LLC", "link": "https://doe.example.com", "snippet": "Quality builds since 2019", "source": "doe.example.com"}
			]
		}`))
	}))
	defer srv.Close()

	adapter := &WebSearchAdapter{key: StaticKey("test-key"), baseURL: srv.URL, client: srv.Client()}

	items, err := adapter.Fetch(context.Background(), Query{
		Type:       models.QuerySearch,
		Value:      "john doe construction",
		MaxResults: 10,
	})
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}

	first := items[0]
	if first.URL != "https://news.example.com/a" {
		t.Errorf("URL = %q", first.URL)
	}
	if first.ExternalID == "" || first.ExternalID == items[1].ExternalID {
		t.Error("synthetic ids missing or colliding")
	}
	if first.Text != "John Doe wins contract\nLocal builder John Doe..." {
		t.Errorf("Text = %q", first.Text)
	}
	if first.Timestamp != nil {
		t.Error("web results should carry no timestamp")
	}
	if first.Metadata == "" {
		t.Error("raw payload not preserved")
	}
}

func TestWebSearchFetchAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "Invalid API key"}`))
	}))
	defer srv.Close()

	adapter := &WebSearchAdapter{key: StaticKey("bad"), baseURL: srv.URL, client: srv.Client()}
	if _, err := adapter.Fetch(context.Background(), Query{Type: models.QuerySearch, Value: "x"}); err == nil {
		t.Error("expected error from API error payload")
	}
}

func TestWebSearchRejectsUnsupportedQueryType(t *testing.T) {
	adapter := NewWebSearchAdapter(StaticKey("key"), time.Second)
	if _, err := adapter.Fetch(context.Background(), Query{Type: models.QueryUserProfile, Value: "x"}); err == nil {
		t.Error("expected error for user_profile query")
	}
}

func TestWebSearchRequiresKey(t *testing.T) {
	adapter := NewWebSearchAdapter(StaticKey(""), time.Second)
	if _, err := adapter.Fetch(context.Background(), Query{Type: models.QuerySearch, Value: "x"}); err == nil {
		t.Error("expected error without an API key")
	}
}
