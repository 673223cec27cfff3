// Package models holds the monitoring domain types and the pure logic
// attached to them: task lifecycle transitions, schedule computation,
// content integrity hashing and alert/check-log bookkeeping. Persistence
// lives in the database package.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of a monitoring task.
type TaskStatus string

const (
	StatusDraft     TaskStatus = "draft"
	StatusActive    TaskStatus = "active"
	StatusPaused    TaskStatus = "paused"
	StatusCompleted TaskStatus = "completed"
	StatusArchived  TaskStatus = "archived"
)

// Platform identifies the upstream system a source reads from.
type Platform string

const (
	PlatformX         Platform = "x_twitter"
	PlatformInstagram Platform = "instagram"
	PlatformWebSearch Platform = "web_search"
)

// QueryType is what a source monitors on its platform.
type QueryType string

const (
	QueryUserProfile QueryType = "user_profile"
	QueryHashtag     QueryType = "hashtag"
	QuerySearch      QueryType = "search_query"
)

// Trigger records how a check execution was started.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// MonitoringTask is one surveillance assignment tied to a case.
type MonitoringTask struct {
	ID          int64
	CaseID      int64
	Name        string
	Description string

	// The objective/question the AI scores content against,
	// e.g. "detect activities incompatible with sick leave".
	Objective string

	AIProvider        string
	AIAnalysisEnabled bool
	AIPromptTemplate  string

	CheckIntervalMinutes int
	StartDate            time.Time
	EndDate              *time.Time
	LastCheckAt          *time.Time
	NextCheckAt          *time.Time

	Status TaskStatus

	TotalChecks       int
	TotalResults      int
	AlertsCount       int
	UnreadAlertsCount int

	CreatedByID int64
	CreatedAt   time.Time
	UpdatedAt   time.Time

	IsDeleted   bool
	DeletedAt   *time.Time
	DeletedByID *int64
}

// Activate transitions a draft or paused task to active and computes the
// next check time. Source-count validation is the caller's job; the
// transition itself only cares about the current status.
func (t *MonitoringTask) Activate(now time.Time) bool {
	if t.Status != StatusDraft && t.Status != StatusPaused {
		return false
	}
	t.Status = StatusActive
	t.CalculateNextCheck(now)
	return true
}

// Pause stops an active task and clears its schedule; next_check_at is
// only ever set while the task is active. Only valid from active.
func (t *MonitoringTask) Pause() bool {
	if t.Status != StatusActive {
		return false
	}
	t.Status = StatusPaused
	t.NextCheckAt = nil
	return true
}

// Complete marks the task finished and clears the schedule.
func (t *MonitoringTask) Complete() {
	t.Status = StatusCompleted
	t.NextCheckAt = nil
}

// CalculateNextCheck computes when the task should run next. A future
// start date wins over the interval; a computed time past the end date
// completes the task instead.
func (t *MonitoringTask) CalculateNextCheck(now time.Time) {
	var next time.Time
	if t.StartDate.After(now) {
		next = t.StartDate
	} else {
		next = now.Add(time.Duration(t.CheckIntervalMinutes) * time.Minute)
	}

	if t.EndDate != nil && next.After(*t.EndDate) {
		t.Complete()
		return
	}
	t.NextCheckAt = &next
}

// IsDueForCheck reports whether the scheduler should run this task now.
func (t *MonitoringTask) IsDueForCheck(now time.Time) bool {
	if t.Status != StatusActive || t.NextCheckAt == nil {
		return false
	}
	return !now.Before(*t.NextCheckAt)
}

// IncrementAlerts bumps both alert counters by n.
func (t *MonitoringTask) IncrementAlerts(n int) {
	t.AlertsCount += n
	t.UnreadAlertsCount += n
}

// SoftDelete archives the task without destroying forensic history.
func (t *MonitoringTask) SoftDelete(userID int64, now time.Time) {
	t.IsDeleted = true
	t.DeletedAt = &now
	t.DeletedByID = &userID
	t.Status = StatusArchived
	t.NextCheckAt = nil
}

// MonitoringSource is one platform query belonging to a task.
type MonitoringSource struct {
	ID     int64
	TaskID int64

	Platform   Platform
	QueryType  QueryType
	QueryValue string

	MaxResultsPerCheck int
	IncludeMedia       bool

	IsActive bool

	// Dedup markers. LastResultID is the platform-native id of the newest
	// item seen; LastResultTimestamp backs platforms without stable
	// recency cursors. Both only move forward.
	LastResultID        string
	LastResultTimestamp *time.Time

	LastCheckAt *time.Time
	ErrorCount  int
	LastError   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

const maxSourceErrorLen = 1000

// RecordError notes a failed fetch on the source.
func (s *MonitoringSource) RecordError(msg string) {
	s.ErrorCount++
	if len(msg) > maxSourceErrorLen {
		msg = msg[:maxSourceErrorLen]
	}
	s.LastError = msg
}

// ClearErrors resets error state after a successful fetch.
func (s *MonitoringSource) ClearErrors() {
	s.ErrorCount = 0
	s.LastError = ""
}

// AdvanceMarker moves the dedup watermark to the newest item seen in a
// fetch. Markers never move backward.
func (s *MonitoringSource) AdvanceMarker(id string, ts *time.Time) {
	if id != "" {
		s.LastResultID = id
	}
	if ts != nil && (s.LastResultTimestamp == nil || ts.After(*s.LastResultTimestamp)) {
		s.LastResultTimestamp = ts
	}
}

// MonitoringResult is one captured content item.
type MonitoringResult struct {
	ID       int64
	TaskID   int64
	SourceID int64

	ExternalID  string
	ExternalURL string

	ContentText     string
	ContentMetadata string // raw platform payload, JSON

	AuthorUsername    string
	AuthorDisplayName string
	AuthorProfileURL  string

	HasMedia        bool
	MediaCount      int
	MediaURLs       []string
	MediaDownloaded bool
	MediaLocalPaths []string
	MediaHashes     []string

	SourceTimestamp *time.Time
	CapturedAt      time.Time

	AIAnalyzed          bool
	AIAnalysisTimestamp *time.Time
	AIProviderUsed      string
	AIModelUsed         string
	AIRelevanceScore    *float64
	AISummary           string
	AIFlags             []string
	AIError             string

	IsAlert             bool
	AlertAcknowledged   bool
	AlertAcknowledgedBy *int64
	AlertAcknowledgedAt *time.Time
	AlertNotes          string

	SavedAsEvidence bool
	EvidenceID      *int64

	ContentHash string
}

// CalculateContentHash computes the forensic SHA-256 over the stable
// concatenation external_id|text|timestamp. The timestamp component is
// rendered in RFC3339 UTC, or empty when the platform supplied none.
func CalculateContentHash(contentText, externalID string, sourceTimestamp *time.Time) string {
	ts := ""
	if sourceTimestamp != nil {
		ts = sourceTimestamp.UTC().Format(time.RFC3339)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", externalID, contentText, ts)))
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity recomputes the content hash and compares it against the
// stored one. A mismatch means the stored text, id or timestamp was
// altered after capture.
func (r *MonitoringResult) VerifyIntegrity() bool {
	return r.ContentHash == CalculateContentHash(r.ContentText, r.ExternalID, r.SourceTimestamp)
}

// MarkAsAlert flags the result for attention. Returns true only on the
// transition from non-alert to alert, so callers can increment task
// counters exactly once per result.
func (r *MonitoringResult) MarkAsAlert(score *float64, flags []string) bool {
	already := r.IsAlert
	r.IsAlert = true
	if score != nil {
		r.AIRelevanceScore = score
	}
	if len(flags) > 0 {
		r.AIFlags = flags
	}
	return !already
}

// AcknowledgeAlert records who reviewed the alert and when.
func (r *MonitoringResult) AcknowledgeAlert(userID int64, notes string, now time.Time) {
	r.AlertAcknowledged = true
	r.AlertAcknowledgedBy = &userID
	r.AlertAcknowledgedAt = &now
	if notes != "" {
		r.AlertNotes = notes
	}
}

// MonitoringCheckLog is the immutable audit record of one check execution.
type MonitoringCheckLog struct {
	ID     int64
	TaskID int64

	CheckStartedAt   time.Time
	CheckCompletedAt *time.Time
	DurationSeconds  *float64

	SourcesChecked  int
	NewResultsCount int
	AIAnalysesCount int
	AlertsGenerated int
	ErrorsCount     int

	Success      bool
	ErrorMessage string

	TriggeredBy       string
	TriggeredByUserID *int64
	JobID             string
}

const maxCheckLogErrorLen = 2000

// Complete closes the log with an outcome and computes the duration.
// The record must not be mutated afterward.
func (l *MonitoringCheckLog) Complete(success bool, errorMessage string, now time.Time) {
	l.CheckCompletedAt = &now
	l.Success = success
	if errorMessage != "" {
		if len(errorMessage) > maxCheckLogErrorLen {
			errorMessage = errorMessage[:maxCheckLogErrorLen]
		}
		l.ErrorMessage = errorMessage
	}
	d := now.Sub(l.CheckStartedAt).Seconds()
	l.DurationSeconds = &d
}
