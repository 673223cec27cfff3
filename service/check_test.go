package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"monitoring-pipeline/adapters"
	"monitoring-pipeline/ai"
	"monitoring-pipeline/config"
	"monitoring-pipeline/database"
	"monitoring-pipeline/models"
)

// stubAdapter serves canned items for check execution tests.
type stubAdapter struct {
	platform models.Platform
	ordered  bool
	items    []adapters.Item
	err      error
}

func (a *stubAdapter) Platform() models.Platform { return a.platform }
func (a *stubAdapter) RecencyOrdered() bool      { return a.ordered }
func (a *stubAdapter) Fetch(context.Context, adapters.Query) ([]adapters.Item, error) {
	return a.items, a.err
}

func newStubService(adapter adapters.Adapter, analyzer *ai.Analyzer) *Service {
	return New(database.NewFromDB(db), adapters.NewRegistry(adapter), analyzer, nil, config.Load())
}

func activeTaskRow(id int64, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(taskColumns).AddRow(
		id, 1, "watch subject", nil, "detect activity", "deepseek", true, nil,
		60, now.Add(-24*time.Hour), nil, nil, now.Add(-time.Minute),
		"active", 3, 12, 0, 0,
		9, now, now, false, nil, nil,
	)
}

func sourceRow(id, taskID int64, platform models.Platform, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "task_id", "platform", "query_type", "query_value",
		"max_results_per_check", "include_media", "is_active",
		"last_result_id", "last_result_timestamp", "last_check_at",
		"error_count", "last_error", "created_at", "updated_at",
	}).AddRow(id, taskID, string(platform), "search", "john doe", 20, false, true,
		nil, nil, nil, 0, nil, now, now)
}

func TestCheckSourceRankOrderedPlatformKeepsLowerRankedItems(t *testing.T) {
	it(func() {
		// The previous check stored the top-ranked page; a new page now
		// ranks below it. Search results carry no ordering the marker
		// cut could rely on, so only the identity check decides.
		adapter := &stubAdapter{
			platform: models.PlatformWebSearch,
			ordered:  false,
			items: []adapters.Item{
				{ExternalID: "web_aaaa", URL: "https://example.com/top", Text: "old top result"},
				{ExternalID: "web_bbbb", URL: "https://example.com/new", Text: "new page"},
			},
		}
		task := &models.MonitoringTask{ID: 5}
		source := &models.MonitoringSource{
			ID: 2, TaskID: 5, Platform: models.PlatformWebSearch,
			QueryType: models.QuerySearch, QueryValue: "john doe",
			LastResultID: "web_aaaa",
		}

		// Items insert oldest-position-last first, so web_bbbb is
		// processed before web_aaaa.
		mock.ExpectQuery("SELECT COUNT(.+) FROM monitoring_results").
			WithArgs(int64(5), int64(2), "web_bbbb").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec("INSERT INTO monitoring_results").
			WillReturnResult(sqlmock.NewResult(42, 1))
		mock.ExpectQuery("SELECT COUNT(.+) FROM monitoring_results").
			WithArgs(int64(5), int64(2), "web_aaaa").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectExec("UPDATE monitoring_sources SET").
			WillReturnResult(sqlmock.NewResult(0, 1))

		svc := newStubService(adapter, nil)
		stored, err := svc.checkSource(context.Background(), task, source)
		if err != nil {
			t.Fatalf("checkSource() error: %v", err)
		}
		if len(stored) != 1 || stored[0].ExternalID != "web_bbbb" {
			t.Fatalf("stored %d result(s), want only the new page", len(stored))
		}
		if source.LastResultID != "web_aaaa" {
			t.Errorf("LastResultID = %q, the marker must not move on rank-ordered platforms",
				source.LastResultID)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestCheckSourceRecencyOrderedAdvancesMarker(t *testing.T) {
	it(func() {
		ts := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		adapter := &stubAdapter{
			platform: models.PlatformX,
			ordered:  true,
			items: []adapters.Item{
				{ExternalID: "900", Text: "newest", Timestamp: &ts},
			},
		}
		task := &models.MonitoringTask{ID: 5}
		source := &models.MonitoringSource{
			ID: 2, TaskID: 5, Platform: models.PlatformX,
			QueryType: models.QuerySearch, QueryValue: "john doe",
			LastResultID: "100",
		}

		mock.ExpectQuery("SELECT COUNT(.+) FROM monitoring_results").
			WithArgs(int64(5), int64(2), "900").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec("INSERT INTO monitoring_results").
			WillReturnResult(sqlmock.NewResult(43, 1))
		mock.ExpectExec("UPDATE monitoring_sources SET").
			WillReturnResult(sqlmock.NewResult(0, 1))

		svc := newStubService(adapter, nil)
		if _, err := svc.checkSource(context.Background(), task, source); err != nil {
			t.Fatalf("checkSource() error: %v", err)
		}
		if source.LastResultID != "900" {
			t.Errorf("LastResultID = %q, want 900", source.LastResultID)
		}
	})
}

func TestExecuteCheckAbortsOnStorageFailure(t *testing.T) {
	it(func() {
		now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		adapter := &stubAdapter{
			platform: models.PlatformX,
			ordered:  true,
			items:    []adapters.Item{{ExternalID: "900", Text: "fresh"}},
		}

		mock.ExpectQuery("SELECT GET_LOCK").
			WithArgs("monitoring_check_5").
			WillReturnRows(sqlmock.NewRows([]string{"lock"}).AddRow(1))
		mock.ExpectQuery("SELECT (.+) FROM monitoring_tasks").
			WithArgs(int64(5)).
			WillReturnRows(activeTaskRow(5, now))
		mock.ExpectExec("INSERT INTO monitoring_check_logs").
			WillReturnResult(sqlmock.NewResult(11, 1))
		mock.ExpectQuery("SELECT (.+) FROM monitoring_sources").
			WithArgs(int64(5)).
			WillReturnRows(sourceRow(2, 5, models.PlatformX, now))
		mock.ExpectQuery("SELECT COUNT(.+) FROM monitoring_results").
			WillReturnError(errors.New("connection reset"))
		// The check log completes as failed and nothing reschedules the
		// task, so it stays due and is retried on the next poll.
		mock.ExpectExec("UPDATE monitoring_check_logs").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT RELEASE_LOCK").
			WithArgs("monitoring_check_5").
			WillReturnRows(sqlmock.NewRows([]string{"released"}).AddRow(1))

		svc := newStubService(adapter, nil)
		err := svc.ExecuteCheck(context.Background(), 5, models.TriggerScheduled, nil, "job-1")
		if err == nil || !strings.Contains(err.Error(), "aborted") {
			t.Fatalf("ExecuteCheck() error = %v, want check aborted", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

// flakyProvider fails any content mentioning "unreachable" and scores
// the rest below the alert threshold.
type flakyProvider struct{}

func (flakyProvider) Name() string         { return "deepseek" }
func (flakyProvider) Model() string        { return "deepseek-chat" }
func (flakyProvider) SupportsVision() bool { return false }
func (flakyProvider) Complete(_ context.Context, messages []ai.Message) ai.Outcome {
	for _, m := range messages {
		if text, ok := m.Content.(string); ok && strings.Contains(text, "unreachable") {
			return ai.Fatal(errors.New("model unavailable"))
		}
	}
	return ai.Success(`{"relevance_score": 0.2, "summary": "nothing notable", "is_alert": false}`)
}

func TestAnalyzeResultsCountsOnlySuccessfulAnalyses(t *testing.T) {
	it(func() {
		// Both analyses persist their outcome, but only the successful
		// one may count toward the check log.
		mock.MatchExpectationsInOrder(false)
		mock.ExpectExec("UPDATE monitoring_results SET").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE monitoring_results SET").
			WillReturnResult(sqlmock.NewResult(0, 1))

		analyzer := ai.NewAnalyzer([]ai.Provider{flakyProvider{}},
			ai.RetryPolicy{MaxRetries: 1, InitialWait: time.Millisecond, MaxWait: time.Millisecond},
			0.6, 4)
		svc := newStubService(&stubAdapter{platform: models.PlatformX, ordered: true}, analyzer)

		task := &models.MonitoringTask{
			ID: 5, Objective: "detect activity",
			AIProvider: "deepseek", AIAnalysisEnabled: true,
		}
		results := []*models.MonitoringResult{
			{ID: 1, TaskID: 5, ContentText: "regular gym selfie"},
			{ID: 2, TaskID: 5, ContentText: "unreachable content"},
		}

		analyzed, alerts := svc.analyzeResults(context.Background(), task, results)
		if analyzed != 1 {
			t.Errorf("analyzed = %d, want 1; failed analyses must not count", analyzed)
		}
		if alerts != 0 {
			t.Errorf("alerts = %d, want 0", alerts)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}
