package remote

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and migrates) the database file at path. Changes are
// only observed by subscribers of the same process.
func OpenSQLite(ctx context.Context, path string, feed *Feed) (*SQLDB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open(sqliteDialect.driver, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; also keeps :memory: on a single connection.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %q: %w", pragma, err)
		}
	}
	if err := migrate(ctx, db, sqliteDialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	if feed == nil {
		feed = NewFeed(nil)
	}
	return newSQLDB(db, sqliteDialect, feed), nil
}
