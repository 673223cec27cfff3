package database

import (
	"database/sql"
	"fmt"

	"monitoring-pipeline/models"
)

const sourceColumns = `id, task_id, platform, query_type, query_value,
	max_results_per_check, include_media, is_active,
	last_result_id, last_result_timestamp, last_check_at,
	error_count, last_error, created_at, updated_at`

func scanSource(row interface{ Scan(...any) error }) (*models.MonitoringSource, error) {
	var s models.MonitoringSource
	var lastResultID, lastError sql.NullString
	var lastResultTS, lastCheck sql.NullTime

	err := row.Scan(
		&s.ID, &s.TaskID, &s.Platform, &s.QueryType, &s.QueryValue,
		&s.MaxResultsPerCheck, &s.IncludeMedia, &s.IsActive,
		&lastResultID, &lastResultTS, &lastCheck,
		&s.ErrorCount, &lastError, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.LastResultID = lastResultID.String
	s.LastError = lastError.String
	if lastResultTS.Valid {
		s.LastResultTimestamp = &lastResultTS.Time
	}
	if lastCheck.Valid {
		s.LastCheckAt = &lastCheck.Time
	}
	return &s, nil
}

// InsertSource stores a new monitoring source and fills in its ID.
func (d *Database) InsertSource(s *models.MonitoringSource) error {
	res, err := d.db.Exec(`INSERT INTO monitoring_sources
		(task_id, platform, query_type, query_value, max_results_per_check, include_media, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.TaskID, string(s.Platform), string(s.QueryType), s.QueryValue,
		s.MaxResultsPerCheck, s.IncludeMedia, s.IsActive)
	if err != nil {
		return fmt.Errorf("failed to insert source: %w", err)
	}
	s.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get source id: %w", err)
	}
	return nil
}

// ActiveSources returns the active sources of a task in creation order.
func (d *Database) ActiveSources(taskID int64) ([]*models.MonitoringSource, error) {
	rows, err := d.db.Query(
		`SELECT `+sourceColumns+` FROM monitoring_sources
		 WHERE task_id = ? AND is_active = TRUE ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources for task %d: %w", taskID, err)
	}
	defer rows.Close()

	var sources []*models.MonitoringSource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// UpdateSourceState persists dedup markers and error bookkeeping. Called
// once per source after its fetch+persist step completes, so a crash
// mid-check leaves the marker at its previous value.
func (d *Database) UpdateSourceState(s *models.MonitoringSource) error {
	_, err := d.db.Exec(`UPDATE monitoring_sources SET
		last_result_id = ?, last_result_timestamp = ?, last_check_at = ?,
		error_count = ?, last_error = ?
		WHERE id = ?`,
		nullString(s.LastResultID), nullTime(s.LastResultTimestamp), nullTime(s.LastCheckAt),
		s.ErrorCount, nullString(s.LastError), s.ID)
	if err != nil {
		return fmt.Errorf("failed to update source %d state: %w", s.ID, err)
	}
	return nil
}

// SetSourceActive toggles a source on or off.
func (d *Database) SetSourceActive(sourceID int64, active bool) error {
	_, err := d.db.Exec(
		`UPDATE monitoring_sources SET is_active = ? WHERE id = ?`, active, sourceID)
	if err != nil {
		return fmt.Errorf("failed to set source %d active=%v: %w", sourceID, active, err)
	}
	return nil
}
