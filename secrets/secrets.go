// Package secrets resolves third-party API credentials. Keys are stored
// in the database so they can be rotated without redeploying, with an
// environment variable fallback for local runs.
package secrets

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/apex/log"
)

// Service names recognized by the key store.
const (
	ServiceOpenAI   = "openai"
	ServiceDeepSeek = "deepseek"
	ServiceXAPI     = "x_api"
	ServiceApify    = "apify"
	ServiceSerpAPI  = "serpapi"
)

// Store resolves API keys for external services.
type Store struct {
	db *sql.DB
}

// NewStore creates a key store backed by the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetActiveKey returns the newest active key for a service and bumps
// its usage counter. When the database has none, the <SERVICE>_API_KEY
// environment variable is used as a fallback. An empty key with a nil
// error means the service is not configured.
func (s *Store) GetActiveKey(service string) (string, error) {
	var key string
	err := s.db.QueryRow(
		`SELECT api_key FROM api_keys
		 WHERE service = ? AND is_active = TRUE
		 ORDER BY created_at DESC LIMIT 1`, service).Scan(&key)
	if err == sql.ErrNoRows {
		envKey := os.Getenv(strings.ToUpper(service) + "_API_KEY")
		if envKey == "" {
			log.Warnf("no active API key found for service %s", service)
		}
		return envKey, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up API key for %s: %w", service, err)
	}
	s.RecordUsage(service)
	return key, nil
}

// RecordUsage bumps the usage counter on the active key. Best effort,
// failures are logged and swallowed so a stats hiccup never fails a check.
func (s *Store) RecordUsage(service string) {
	_, err := s.db.Exec(
		`UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = NOW()
		 WHERE service = ? AND is_active = TRUE`, service)
	if err != nil {
		log.Warnf("failed to record key usage for %s: %v", service, err)
	}
}

// UpsertKey stores a key for a service, deactivating any previous ones.
func (s *Store) UpsertKey(service, apiKey string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin key upsert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE api_keys SET is_active = FALSE WHERE service = ?`, service); err != nil {
		return fmt.Errorf("failed to deactivate old keys for %s: %w", service, err)
	}
	if _, err := tx.Exec(
		`INSERT INTO api_keys (service, api_key, is_active) VALUES (?, ?, TRUE)`,
		service, apiKey); err != nil {
		return fmt.Errorf("failed to insert key for %s: %w", service, err)
	}
	return tx.Commit()
}
