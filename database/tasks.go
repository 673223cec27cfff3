package database

import (
	"database/sql"
	"fmt"
	"time"

	"monitoring-pipeline/models"
)

const taskColumns = `id, case_id, name, description, objective,
	ai_provider, ai_analysis_enabled, ai_prompt_template,
	check_interval_minutes, start_date, end_date, last_check_at, next_check_at,
	status, total_checks, total_results, alerts_count, unread_alerts_count,
	created_by_id, created_at, updated_at, is_deleted, deleted_at, deleted_by_id`

func scanTask(row interface{ Scan(...any) error }) (*models.MonitoringTask, error) {
	var t models.MonitoringTask
	var description, promptTemplate sql.NullString
	var endDate, lastCheck, nextCheck, deletedAt sql.NullTime
	var deletedBy sql.NullInt64

	err := row.Scan(
		&t.ID, &t.CaseID, &t.Name, &description, &t.Objective,
		&t.AIProvider, &t.AIAnalysisEnabled, &promptTemplate,
		&t.CheckIntervalMinutes, &t.StartDate, &endDate, &lastCheck, &nextCheck,
		&t.Status, &t.TotalChecks, &t.TotalResults, &t.AlertsCount, &t.UnreadAlertsCount,
		&t.CreatedByID, &t.CreatedAt, &t.UpdatedAt, &t.IsDeleted, &deletedAt, &deletedBy,
	)
	if err != nil {
		return nil, err
	}

	t.Description = description.String
	t.AIPromptTemplate = promptTemplate.String
	if endDate.Valid {
		t.EndDate = &endDate.Time
	}
	if lastCheck.Valid {
		t.LastCheckAt = &lastCheck.Time
	}
	if nextCheck.Valid {
		t.NextCheckAt = &nextCheck.Time
	}
	if deletedAt.Valid {
		t.DeletedAt = &deletedAt.Time
	}
	if deletedBy.Valid {
		t.DeletedByID = &deletedBy.Int64
	}
	return &t, nil
}

// InsertTask stores a new monitoring task and fills in its ID.
func (d *Database) InsertTask(t *models.MonitoringTask) error {
	res, err := d.db.Exec(`INSERT INTO monitoring_tasks
		(case_id, name, description, objective, ai_provider, ai_analysis_enabled,
		 ai_prompt_template, check_interval_minutes, start_date, end_date,
		 status, created_by_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.CaseID, t.Name, t.Description, t.Objective, t.AIProvider, t.AIAnalysisEnabled,
		nullString(t.AIPromptTemplate), t.CheckIntervalMinutes, t.StartDate, nullTime(t.EndDate),
		string(t.Status), t.CreatedByID)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get task id: %w", err)
	}
	return nil
}

// GetTask loads a non-deleted task by ID. Returns nil when not found.
func (d *Database) GetTask(id int64) (*models.MonitoringTask, error) {
	row := d.db.QueryRow(
		`SELECT `+taskColumns+` FROM monitoring_tasks WHERE id = ? AND is_deleted = FALSE`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	return t, nil
}

// DueTasks returns all active, non-deleted tasks whose next check time has
// arrived. This is the scheduler's polling query.
func (d *Database) DueTasks(now time.Time) ([]*models.MonitoringTask, error) {
	rows, err := d.db.Query(
		`SELECT `+taskColumns+` FROM monitoring_tasks
		 WHERE status = ? AND is_deleted = FALSE AND next_check_at IS NOT NULL AND next_check_at <= ?`,
		string(models.StatusActive), now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.MonitoringTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan due task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTaskConfig persists the user-editable task fields.
func (d *Database) UpdateTaskConfig(t *models.MonitoringTask) error {
	_, err := d.db.Exec(`UPDATE monitoring_tasks SET
		name = ?, description = ?, objective = ?, ai_provider = ?,
		ai_analysis_enabled = ?, ai_prompt_template = ?, check_interval_minutes = ?,
		start_date = ?, end_date = ?
		WHERE id = ? AND is_deleted = FALSE`,
		t.Name, t.Description, t.Objective, t.AIProvider,
		t.AIAnalysisEnabled, nullString(t.AIPromptTemplate), t.CheckIntervalMinutes,
		t.StartDate, nullTime(t.EndDate), t.ID)
	if err != nil {
		return fmt.Errorf("failed to update task %d: %w", t.ID, err)
	}
	return nil
}

// UpdateTaskSchedule persists status, counters and scheduling state after a
// lifecycle transition or a completed check.
func (d *Database) UpdateTaskSchedule(t *models.MonitoringTask) error {
	_, err := d.db.Exec(`UPDATE monitoring_tasks SET
		status = ?, last_check_at = ?, next_check_at = ?,
		total_checks = ?, total_results = ?
		WHERE id = ?`,
		string(t.Status), nullTime(t.LastCheckAt), nullTime(t.NextCheckAt),
		t.TotalChecks, t.TotalResults, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update task %d schedule: %w", t.ID, err)
	}
	return nil
}

// SoftDeleteTask archives a task, preserving all rows for forensic history.
func (d *Database) SoftDeleteTask(t *models.MonitoringTask) error {
	_, err := d.db.Exec(`UPDATE monitoring_tasks SET
		is_deleted = TRUE, deleted_at = ?, deleted_by_id = ?, status = ?, next_check_at = NULL
		WHERE id = ?`,
		nullTime(t.DeletedAt), nullInt64(t.DeletedByID), string(models.StatusArchived), t.ID)
	if err != nil {
		return fmt.Errorf("failed to soft delete task %d: %w", t.ID, err)
	}
	return nil
}

// CountTaskSources returns how many sources a task has.
func (d *Database) CountTaskSources(taskID int64) (int, error) {
	var n int
	err := d.db.QueryRow(
		`SELECT COUNT(*) FROM monitoring_sources WHERE task_id = ?`, taskID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sources for task %d: %w", taskID, err)
	}
	return n, nil
}

// MarkTaskAlertsRead zeroes the unread alert counter.
func (d *Database) MarkTaskAlertsRead(taskID int64) error {
	_, err := d.db.Exec(
		`UPDATE monitoring_tasks SET unread_alerts_count = 0 WHERE id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("failed to mark alerts read for task %d: %w", taskID, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullFloat64(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
