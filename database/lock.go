package database

import (
	"context"
	"database/sql"
	"fmt"
)

// CheckLock is a MySQL advisory lock held on a dedicated connection.
// GET_LOCK and RELEASE_LOCK are session-scoped, so both statements must
// run on the same connection; the pool gives no such guarantee, and a
// lock taken through the pool would also make a concurrent acquire
// succeed re-entrantly whenever it lands on the holder's connection.
type CheckLock struct {
	conn *sql.Conn
	name string
}

// AcquireCheckLock takes a MySQL advisory lock scoped to a task so that
// two workers consuming the same check job cannot run it concurrently.
// Returns nil without waiting when another holder has the lock. The
// caller must Release the returned lock.
func (d *Database) AcquireCheckLock(ctx context.Context, taskID int64) (*CheckLock, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to pin connection for check lock: %w", err)
	}

	name := checkLockName(taskID)
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, 0)`, name).Scan(&got); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to acquire check lock for task %d: %w", taskID, err)
	}
	if !got.Valid || got.Int64 != 1 {
		conn.Close()
		return nil, nil
	}
	return &CheckLock{conn: conn, name: name}, nil
}

// Release drops the lock on the connection that took it and returns the
// connection to the pool. Runs on a fresh context so a check aborted by
// its deadline still releases its lock.
func (l *CheckLock) Release() error {
	defer l.conn.Close()

	var released sql.NullInt64
	err := l.conn.QueryRowContext(context.Background(), `SELECT RELEASE_LOCK(?)`, l.name).Scan(&released)
	if err != nil {
		return fmt.Errorf("failed to release check lock %s: %w", l.name, err)
	}
	if !released.Valid || released.Int64 != 1 {
		return fmt.Errorf("check lock %s was not held by this session", l.name)
	}
	return nil
}

func checkLockName(taskID int64) string {
	return fmt.Sprintf("monitoring_check_%d", taskID)
}
