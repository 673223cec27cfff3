package service

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jknair0/beforeeach"

	"monitoring-pipeline/adapters"
	"monitoring-pipeline/config"
	"monitoring-pipeline/database"
	"monitoring-pipeline/models"
)

var (
	db   *sql.DB
	mock sqlmock.Sqlmock
)

func setUp() {
	db, mock, _ = sqlmock.New()
}

func tearDown() {
	db.Close()
}

var it = beforeeach.Create(setUp, tearDown)

func newTestService() *Service {
	return New(database.NewFromDB(db), adapters.NewRegistry(), nil, nil, config.Load())
}

func TestSupportedQuery(t *testing.T) {
	tests := []struct {
		platform  models.Platform
		queryType models.QueryType
		want      bool
	}{
		{models.PlatformX, models.QueryUserProfile, true},
		{models.PlatformX, models.QueryHashtag, true},
		{models.PlatformX, models.QuerySearch, true},
		{models.PlatformInstagram, models.QueryUserProfile, true},
		{models.PlatformInstagram, models.QueryHashtag, true},
		{models.PlatformInstagram, models.QuerySearch, false},
		{models.PlatformWebSearch, models.QuerySearch, true},
		{models.PlatformWebSearch, models.QueryUserProfile, false},
		{models.PlatformWebSearch, models.QueryHashtag, false},
		{models.Platform("tiktok"), models.QuerySearch, false},
	}

	for _, tt := range tests {
		if got := supportedQuery(tt.platform, tt.queryType); got != tt.want {
			t.Errorf("supportedQuery(%s, %s) = %v, want %v",
				tt.platform, tt.queryType, got, tt.want)
		}
	}
}

func TestCreateTaskValidation(t *testing.T) {
	it(func() {
		svc := newTestService()
		base := CreateTaskParams{
			CaseID:               1,
			Name:                 "surveillance",
			Objective:            "detect activity",
			CheckIntervalMinutes: 60,
			StartDate:            time.Now(),
		}

		t.Run("missing name", func(t *testing.T) {
			p := base
			p.Name = ""
			if _, err := svc.CreateTask(p); err == nil {
				t.Error("expected error for missing name")
			}
		})

		t.Run("missing objective", func(t *testing.T) {
			p := base
			p.Objective = ""
			if _, err := svc.CreateTask(p); err == nil {
				t.Error("expected error for missing objective")
			}
		})

		t.Run("zero interval", func(t *testing.T) {
			p := base
			p.CheckIntervalMinutes = 0
			if _, err := svc.CreateTask(p); err == nil {
				t.Error("expected error for zero interval")
			}
		})

		t.Run("end before start", func(t *testing.T) {
			p := base
			end := p.StartDate.Add(-time.Hour)
			p.EndDate = &end
			if _, err := svc.CreateTask(p); err == nil {
				t.Error("expected error for end date before start")
			}
		})
	})
}

func TestCreateTaskDefaultsProvider(t *testing.T) {
	it(func() {
		mock.ExpectExec("INSERT INTO monitoring_tasks").
			WillReturnResult(sqlmock.NewResult(7, 1))

		svc := newTestService()
		task, err := svc.CreateTask(CreateTaskParams{
			CaseID:               1,
			Name:                 "surveillance",
			Objective:            "detect activity",
			CheckIntervalMinutes: 60,
			StartDate:            time.Now(),
		})
		if err != nil {
			t.Fatalf("CreateTask() error: %v", err)
		}
		if task.ID != 7 {
			t.Errorf("ID = %d, want 7", task.ID)
		}
		if task.AIProvider != "deepseek" {
			t.Errorf("AIProvider = %q, want deepseek default", task.AIProvider)
		}
		if task.Status != models.StatusDraft {
			t.Errorf("Status = %s, want draft", task.Status)
		}
	})
}

func TestActivateTaskRequiresSources(t *testing.T) {
	it(func() {
		now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT (.+) FROM monitoring_tasks").
			WithArgs(int64(5)).
			WillReturnRows(draftTaskRow(5, now))
		mock.ExpectQuery("SELECT COUNT(.+) FROM monitoring_sources").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		svc := newTestService()
		if _, err := svc.ActivateTask(5); err == nil {
			t.Error("expected error activating a task with no sources")
		}
	})
}

func TestActivateTask(t *testing.T) {
	it(func() {
		now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT (.+) FROM monitoring_tasks").
			WithArgs(int64(5)).
			WillReturnRows(draftTaskRow(5, now))
		mock.ExpectQuery("SELECT COUNT(.+) FROM monitoring_sources").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectExec("UPDATE monitoring_tasks SET").
			WillReturnResult(sqlmock.NewResult(0, 1))

		svc := newTestService()
		task, err := svc.ActivateTask(5)
		if err != nil {
			t.Fatalf("ActivateTask() error: %v", err)
		}
		if task.Status != models.StatusActive {
			t.Errorf("Status = %s, want active", task.Status)
		}
		if task.NextCheckAt == nil {
			t.Error("NextCheckAt not scheduled")
		}
	})
}

var taskColumns = []string{
	"id", "case_id", "name", "description", "objective",
	"ai_provider", "ai_analysis_enabled", "ai_prompt_template",
	"check_interval_minutes", "start_date", "end_date", "last_check_at", "next_check_at",
	"status", "total_checks", "total_results", "alerts_count", "unread_alerts_count",
	"created_by_id", "created_at", "updated_at", "is_deleted", "deleted_at", "deleted_by_id",
}

func draftTaskRow(id int64, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(taskColumns).AddRow(
		id, 1, "watch subject", nil, "detect activity", "deepseek", true, nil,
		60, now.Add(-24*time.Hour), nil, nil, nil,
		"draft", 0, 0, 0, 0,
		9, now, now, false, nil, nil,
	)
}
