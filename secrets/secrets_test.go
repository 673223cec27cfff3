package secrets

import (
	"database/sql"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jknair0/beforeeach"
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

func TestGetActiveKeyFromDatabase(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT api_key FROM api_keys").
			WithArgs(ServiceOpenAI).
			WillReturnRows(sqlmock.NewRows([]string{"api_key"}).AddRow("sk-live-123"))
		mock.ExpectExec("UPDATE api_keys SET usage_count").
			WithArgs(ServiceOpenAI).
			WillReturnResult(sqlmock.NewResult(0, 1))

		store := NewStore(db)
		key, err := store.GetActiveKey(ServiceOpenAI)
		if err != nil {
			t.Fatalf("GetActiveKey() error: %v", err)
		}
		if key != "sk-live-123" {
			t.Errorf("key = %q", key)
		}
	})
}

func TestGetActiveKeyEnvFallback(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT api_key FROM api_keys").
			WithArgs(ServiceDeepSeek).
			WillReturnError(sql.ErrNoRows)

		os.Setenv("DEEPSEEK_API_KEY", "env-key")
		defer os.Unsetenv("DEEPSEEK_API_KEY")

		store := NewStore(db)
		key, err := store.GetActiveKey(ServiceDeepSeek)
		if err != nil {
			t.Fatalf("GetActiveKey() error: %v", err)
		}
		if key != "env-key" {
			t.Errorf("key = %q, want env fallback", key)
		}
	})
}

func TestGetActiveKeyUnconfigured(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT api_key FROM api_keys").
			WithArgs(ServiceSerpAPI).
			WillReturnError(sql.ErrNoRows)

		store := NewStore(db)
		key, err := store.GetActiveKey(ServiceSerpAPI)
		if err != nil {
			t.Fatalf("GetActiveKey() error: %v", err)
		}
		if key != "" {
			t.Errorf("key = %q, want empty", key)
		}
	})
}

func TestUpsertKeyDeactivatesOldKeys(t *testing.T) {
	it(func() {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE api_keys SET is_active = FALSE").
			WithArgs(ServiceXAPI).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("INSERT INTO api_keys").
			WithArgs(ServiceXAPI, "new-bearer").
			WillReturnResult(sqlmock.NewResult(3, 1))
		mock.ExpectCommit()

		store := NewStore(db)
		if err := store.UpsertKey(ServiceXAPI, "new-bearer"); err != nil {
			t.Fatalf("UpsertKey() error: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}
