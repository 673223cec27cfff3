package database

import (
	"database/sql"
	"fmt"

	"monitoring-pipeline/models"
)

// InsertCheckLog opens the audit record for a check execution.
func (d *Database) InsertCheckLog(l *models.MonitoringCheckLog) error {
	res, err := d.db.Exec(`INSERT INTO monitoring_check_logs
		(task_id, check_started_at, triggered_by, triggered_by_user_id, job_id, success)
		VALUES (?, ?, ?, ?, ?, FALSE)`,
		l.TaskID, l.CheckStartedAt, l.TriggeredBy, nullInt64(l.TriggeredByUserID), nullString(l.JobID))
	if err != nil {
		return fmt.Errorf("failed to insert check log: %w", err)
	}
	l.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get check log id: %w", err)
	}
	return nil
}

// CompleteCheckLog writes the final counts and outcome. The row is never
// updated again after this.
func (d *Database) CompleteCheckLog(l *models.MonitoringCheckLog) error {
	_, err := d.db.Exec(`UPDATE monitoring_check_logs SET
		check_completed_at = ?, duration_seconds = ?,
		sources_checked = ?, new_results_count = ?, ai_analyses_count = ?,
		alerts_generated = ?, errors_count = ?, success = ?, error_message = ?
		WHERE id = ? AND check_completed_at IS NULL`,
		nullTime(l.CheckCompletedAt), nullFloat64(l.DurationSeconds),
		l.SourcesChecked, l.NewResultsCount, l.AIAnalysesCount,
		l.AlertsGenerated, l.ErrorsCount, l.Success, nullString(l.ErrorMessage), l.ID)
	if err != nil {
		return fmt.Errorf("failed to complete check log %d: %w", l.ID, err)
	}
	return nil
}

// RecentCheckLogs returns the latest check logs for a task, newest first.
func (d *Database) RecentCheckLogs(taskID int64, limit int) ([]*models.MonitoringCheckLog, error) {
	rows, err := d.db.Query(`SELECT
		id, task_id, check_started_at, check_completed_at, duration_seconds,
		sources_checked, new_results_count, ai_analyses_count, alerts_generated, errors_count,
		success, error_message, triggered_by, triggered_by_user_id, job_id
		FROM monitoring_check_logs WHERE task_id = ?
		ORDER BY check_started_at DESC LIMIT ?`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query check logs for task %d: %w", taskID, err)
	}
	defer rows.Close()

	var logs []*models.MonitoringCheckLog
	for rows.Next() {
		var l models.MonitoringCheckLog
		var completedAt sql.NullTime
		var duration sql.NullFloat64
		var errorMessage, jobID sql.NullString
		var userID sql.NullInt64

		err := rows.Scan(
			&l.ID, &l.TaskID, &l.CheckStartedAt, &completedAt, &duration,
			&l.SourcesChecked, &l.NewResultsCount, &l.AIAnalysesCount, &l.AlertsGenerated, &l.ErrorsCount,
			&l.Success, &errorMessage, &l.TriggeredBy, &userID, &jobID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check log: %w", err)
		}
		if completedAt.Valid {
			l.CheckCompletedAt = &completedAt.Time
		}
		if duration.Valid {
			l.DurationSeconds = &duration.Float64
		}
		l.ErrorMessage = errorMessage.String
		l.JobID = jobID.String
		if userID.Valid {
			l.TriggeredByUserID = &userID.Int64
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
