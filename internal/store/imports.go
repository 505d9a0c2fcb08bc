package store

import (
	"context"
	"database/sql"
	"errors"
)

// ImportChecksum returns the checksum recorded for an inbox file, or "" when
// the file has never been imported.
func (db *DB) ImportChecksum(ctx context.Context, path string) (string, error) {
	var sum string
	err := db.conn.QueryRowContext(ctx, `SELECT checksum FROM inbox_files WHERE path = ?`, path).Scan(&sum)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", classify("import checksum", err)
	}
	return sum, nil
}

// RecordImport remembers that path was imported with the given checksum.
func (db *DB) RecordImport(ctx context.Context, path, checksum string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO inbox_files (path, checksum, imported_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum    = excluded.checksum,
			imported_at = excluded.imported_at
	`, path, checksum, db.now())
	return classify("record import", err)
}

// ForgetImport drops the record for path so a re-created file is imported again.
func (db *DB) ForgetImport(ctx context.Context, path string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM inbox_files WHERE path = ?`, path)
	return classify("forget import", err)
}
