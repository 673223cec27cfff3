// Package adapters fetches content from external platforms and
// normalizes it into a single item shape the pipeline can persist.
// One adapter per platform, registered explicitly at startup.
package adapters

import (
	"context"
	"fmt"
	"time"

	"monitoring-pipeline/models"
)

// Item is one piece of content normalized from a platform payload.
type Item struct {
	ExternalID string
	URL        string
	Text       string

	// Raw platform payload serialized as JSON, kept for forensic review.
	Metadata string

	AuthorUsername    string
	AuthorDisplayName string
	AuthorProfileURL  string

	Timestamp *time.Time
	MediaURLs []string
}

// Query describes one fetch against a platform.
type Query struct {
	Type       models.QueryType
	Value      string
	MaxResults int

	// Dedup markers from the previous check. SinceID is the
	// platform-native id of the newest item already stored; SinceTime
	// backs platforms without stable id cursors.
	SinceID   string
	SinceTime *time.Time
}

// Adapter fetches recent content for a query, newest first. Adapters
// use the markers as an optimization where the platform supports it;
// FilterNew enforces the cutoff regardless.
type Adapter interface {
	Platform() models.Platform
	Fetch(ctx context.Context, q Query) ([]Item, error)

	// RecencyOrdered reports whether Fetch returns a newest-first
	// stream with meaningful cursor markers. When false the caller must
	// skip the cursor cut and watermark advancement and dedup on
	// per-item identity alone: cutting a rank-ordered list at a marker
	// would drop new items ranked below it.
	RecencyOrdered() bool
}

// KeyFunc resolves the current API credential at fetch time, so a
// rotated key takes effect without a restart.
type KeyFunc func() string

// StaticKey wraps a fixed credential as a KeyFunc.
func StaticKey(key string) KeyFunc {
	return func() string { return key }
}

// Registry maps platforms to their adapters.
type Registry struct {
	adapters map[models.Platform]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[models.Platform]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Platform()] = a
	}
	return &Registry{adapters: m}
}

// For returns the adapter for a platform.
func (r *Registry) For(p models.Platform) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for platform %s", p)
	}
	return a, nil
}

// FilterNew cuts a newest-first item list at the dedup markers: items
// from the marker id onward, or items not strictly newer than the
// marker timestamp, are dropped along with everything older. Order is
// preserved.
func FilterNew(items []Item, sinceID string, sinceTime *time.Time) []Item {
	for i, it := range items {
		if sinceID != "" && it.ExternalID == sinceID {
			return items[:i]
		}
		if sinceTime != nil && it.Timestamp != nil && !it.Timestamp.After(*sinceTime) {
			return items[:i]
		}
	}
	return items
}

// NewestMarker returns the id and timestamp of the newest item in a
// newest-first list, for advancing the source watermark. The watermark
// moves even when every item turned out to be a duplicate.
func NewestMarker(items []Item) (string, *time.Time) {
	if len(items) == 0 {
		return "", nil
	}
	return items[0].ExternalID, items[0].Timestamp
}
