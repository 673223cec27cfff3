package adapters

import (
	"testing"
	"time"

	"monitoring-pipeline/models"
)

func ts(minute int) *time.Time {
	t := time.Date(2025, 3, 10, 12, minute, 0, 0, time.UTC)
	return &t
}

func TestFilterNew(t *testing.T) {
	items := []Item{
		{ExternalID: "300", Timestamp: ts(30)},
		{ExternalID: "200", Timestamp: ts(20)},
		{ExternalID: "100", Timestamp: ts(10)},
	}

	tests := []struct {
		name      string
		sinceID   string
		sinceTime *time.Time
		wantIDs   []string
	}{
		{
			name:    "no markers keeps everything",
			wantIDs: []string{"300", "200", "100"},
		},
		{
			name:    "cut at marker id",
			sinceID: "200",
			wantIDs: []string{"300"},
		},
		{
			name:    "marker id is the newest item",
			sinceID: "300",
			wantIDs: []string{},
		},
		{
			name:      "cut at marker timestamp",
			sinceTime: ts(20),
			wantIDs:   []string{"300"},
		},
		{
			name:      "timestamp equal to marker is not new",
			sinceTime: ts(30),
			wantIDs:   []string{},
		},
		{
			name:      "id marker wins when it appears first",
			sinceID:   "300",
			sinceTime: ts(10),
			wantIDs:   []string{},
		},
		{
			name:    "unknown marker id keeps everything",
			sinceID: "999",
			wantIDs: []string{"300", "200", "100"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterNew(items, tt.sinceID, tt.sinceTime)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("FilterNew() returned %d items, want %d", len(got), len(tt.wantIDs))
			}
			for i, want := range tt.wantIDs {
				if got[i].ExternalID != want {
					t.Errorf("item %d = %s, want %s", i, got[i].ExternalID, want)
				}
			}
		})
	}
}

func TestFilterNewWithoutTimestamps(t *testing.T) {
	// Web search items carry no timestamps; only the id marker applies.
	items := []Item{
		{ExternalID: "web_aaa"},
		{ExternalID: "web_bbb"},
		{ExternalID: "web_ccc"},
	}
	got := FilterNew(items, "web_bbb", ts(0))
	if len(got) != 1 || got[0].ExternalID != "web_aaa" {
		t.Errorf("FilterNew() = %v, want only web_aaa", got)
	}
}

func TestNewestMarker(t *testing.T) {
	id, timestamp := NewestMarker(nil)
	if id != "" || timestamp != nil {
		t.Errorf("NewestMarker(nil) = %q, %v", id, timestamp)
	}

	items := []Item{
		{ExternalID: "300", Timestamp: ts(30)},
		{ExternalID: "200", Timestamp: ts(20)},
	}
	id, timestamp = NewestMarker(items)
	if id != "300" {
		t.Errorf("id = %s, want 300", id)
	}
	if timestamp == nil || !timestamp.Equal(*ts(30)) {
		t.Errorf("timestamp = %v, want %v", timestamp, ts(30))
	}
}

func TestRegistry(t *testing.T) {
	x := NewXAdapter(StaticKey("token"), time.Second)
	registry := NewRegistry(x)

	got, err := registry.For(models.PlatformX)
	if err != nil || got != x {
		t.Errorf("For(x_twitter) = %v, %v", got, err)
	}

	if _, err := registry.For(models.PlatformInstagram); err == nil {
		t.Error("expected error for unregistered platform")
	}
}

func TestRecencyOrdered(t *testing.T) {
	if !NewXAdapter(StaticKey("t"), time.Second).RecencyOrdered() {
		t.Error("x adapter should be recency ordered")
	}
	if !NewInstagramAdapter(StaticKey("t"), time.Second).RecencyOrdered() {
		t.Error("instagram adapter should be recency ordered")
	}
	// Search results are rank ordered; cursor dedup does not apply.
	if NewWebSearchAdapter(StaticKey("t"), time.Second).RecencyOrdered() {
		t.Error("web search adapter must not be recency ordered")
	}
}

func TestSyntheticID(t *testing.T) {
	a := syntheticID("https://example.com/page")
	b := syntheticID("https://example.com/page")
	c := syntheticID("https://example.com/other")

	if a != b {
		t.Error("synthetic id is not stable for the same URL")
	}
	if a == c {
		t.Error("synthetic id collides across URLs")
	}
	if len(a) != len("web_")+16 {
		t.Errorf("synthetic id length = %d", len(a))
	}
}
