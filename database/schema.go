package database

import (
	"fmt"

	"github.com/apex/log"
)

// CreateTables creates all monitoring tables if they don't exist.
func (d *Database) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS monitoring_tasks (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			case_id BIGINT NOT NULL,
			name VARCHAR(200) NOT NULL,
			description TEXT,
			objective TEXT NOT NULL,
			ai_provider VARCHAR(50) NOT NULL DEFAULT 'deepseek',
			ai_analysis_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			ai_prompt_template TEXT,
			check_interval_minutes INT NOT NULL DEFAULT 60,
			start_date DATETIME NOT NULL,
			end_date DATETIME,
			last_check_at DATETIME,
			next_check_at DATETIME,
			status VARCHAR(20) NOT NULL DEFAULT 'draft',
			total_checks INT NOT NULL DEFAULT 0,
			total_results INT NOT NULL DEFAULT 0,
			alerts_count INT NOT NULL DEFAULT 0,
			unread_alerts_count INT NOT NULL DEFAULT 0,
			created_by_id BIGINT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			deleted_at DATETIME,
			deleted_by_id BIGINT,
			INDEX idx_tasks_case (case_id),
			INDEX idx_tasks_status (status),
			INDEX idx_tasks_next_check (next_check_at),
			INDEX idx_tasks_is_deleted (is_deleted)
		)`,
		`CREATE TABLE IF NOT EXISTS monitoring_sources (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			task_id BIGINT NOT NULL,
			platform VARCHAR(50) NOT NULL,
			query_type VARCHAR(50) NOT NULL,
			query_value VARCHAR(500) NOT NULL,
			max_results_per_check INT NOT NULL DEFAULT 20,
			include_media BOOLEAN NOT NULL DEFAULT TRUE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			last_result_id VARCHAR(200),
			last_result_timestamp DATETIME,
			last_check_at DATETIME,
			error_count INT NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_sources_task (task_id),
			INDEX idx_sources_is_active (is_active),
			CONSTRAINT fk_sources_task FOREIGN KEY (task_id)
				REFERENCES monitoring_tasks(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS monitoring_results (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			task_id BIGINT NOT NULL,
			source_id BIGINT NOT NULL,
			external_id VARCHAR(200) NOT NULL,
			external_url VARCHAR(1000),
			content_text TEXT,
			content_metadata JSON,
			author_username VARCHAR(200),
			author_display_name VARCHAR(300),
			author_profile_url VARCHAR(500),
			has_media BOOLEAN NOT NULL DEFAULT FALSE,
			media_count INT NOT NULL DEFAULT 0,
			media_urls JSON,
			media_downloaded BOOLEAN NOT NULL DEFAULT FALSE,
			media_local_paths JSON,
			media_hashes JSON,
			source_timestamp DATETIME,
			captured_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ai_analyzed BOOLEAN NOT NULL DEFAULT FALSE,
			ai_analysis_timestamp DATETIME,
			ai_provider_used VARCHAR(50),
			ai_model_used VARCHAR(100),
			ai_relevance_score FLOAT,
			ai_summary TEXT,
			ai_flags JSON,
			ai_error TEXT,
			is_alert BOOLEAN NOT NULL DEFAULT FALSE,
			alert_acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
			alert_acknowledged_by_id BIGINT,
			alert_acknowledged_at DATETIME,
			alert_notes TEXT,
			saved_as_evidence BOOLEAN NOT NULL DEFAULT FALSE,
			evidence_id BIGINT,
			content_hash CHAR(64) NOT NULL,
			UNIQUE INDEX uq_results_identity (task_id, source_id, external_id),
			INDEX idx_results_source (source_id),
			INDEX idx_results_is_alert (is_alert),
			INDEX idx_results_ai_analyzed (ai_analyzed),
			INDEX idx_results_source_timestamp (source_timestamp),
			CONSTRAINT fk_results_task FOREIGN KEY (task_id)
				REFERENCES monitoring_tasks(id) ON DELETE CASCADE,
			CONSTRAINT fk_results_source FOREIGN KEY (source_id)
				REFERENCES monitoring_sources(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS monitoring_check_logs (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			task_id BIGINT NOT NULL,
			check_started_at DATETIME NOT NULL,
			check_completed_at DATETIME,
			duration_seconds FLOAT,
			sources_checked INT NOT NULL DEFAULT 0,
			new_results_count INT NOT NULL DEFAULT 0,
			ai_analyses_count INT NOT NULL DEFAULT 0,
			alerts_generated INT NOT NULL DEFAULT 0,
			errors_count INT NOT NULL DEFAULT 0,
			success BOOLEAN NOT NULL DEFAULT FALSE,
			error_message TEXT,
			triggered_by VARCHAR(50) NOT NULL,
			triggered_by_user_id BIGINT,
			job_id VARCHAR(200),
			INDEX idx_check_logs_task (task_id),
			INDEX idx_check_logs_started (check_started_at),
			CONSTRAINT fk_check_logs_task FOREIGN KEY (task_id)
				REFERENCES monitoring_tasks(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS api_keys (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			service VARCHAR(100) NOT NULL,
			api_key TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			usage_count BIGINT NOT NULL DEFAULT 0,
			last_used_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_api_keys_service (service),
			INDEX idx_api_keys_is_active (is_active)
		)`,
	}

	for _, query := range queries {
		if _, err := d.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create monitoring tables: %w", err)
		}
	}

	log.Info("monitoring tables created/verified successfully")
	return nil
}
