package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Busy-retry policy: busy_timeout already covers short lock contention at
// the driver level, but SQLITE_BUSY still surfaces when a writer holds the
// lock past the timeout. Three attempts with linear backoff.
const busyRetries = 3

func busyBackoff(attempt int) time.Duration {
	return time.Duration(100*(attempt+1)) * time.Millisecond
}

// IsBusy reports whether err indicates SQLite lock contention.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// RunTx runs fn inside a transaction, retrying the whole transaction when
// it fails with lock contention. Any non-busy error from fn aborts
// immediately and rolls back.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	var err error
	for attempt := range busyRetries {
		if err = runTxOnce(ctx, db, fn); err == nil {
			return nil
		}
		if !IsBusy(err) {
			return err
		}
		if attempt == busyRetries-1 {
			break
		}
		if werr := waitCtx(ctx, busyBackoff(attempt)); werr != nil {
			return fmt.Errorf("dbopen: retry wait: %w", werr)
		}
	}
	return fmt.Errorf("dbopen: busy after %d attempts: %w", busyRetries, err)
}

func runTxOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}

func waitCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
