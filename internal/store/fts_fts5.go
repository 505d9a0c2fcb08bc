//go:build sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/dossier/internal/searchvec"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS contacts_fts USING fts5(
			document,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

// ftsUpsert mirrors the stored vector into contacts_fts keyed by contact id.
func ftsUpsert(ctx context.Context, tx querier, id int64, vector string) error {
	if err := ftsDelete(ctx, tx, id); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO contacts_fts (rowid, document) VALUES (?, ?)`,
		id, searchvec.Document(vector))
	if err != nil {
		return fmt.Errorf("store: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(ctx context.Context, tx querier, id int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM contacts_fts WHERE rowid = ?`, id); err != nil {
		return fmt.Errorf("store: delete fts: %w", err)
	}
	return nil
}

// vectorMatches returns a (id, score) relation of contacts whose indexed
// document matches every lexeme of text, scored by bm25.
func vectorMatches(text string) (string, []any) {
	q := searchvec.FTSQuery(text)
	if q == "" {
		return `SELECT id, 0.0 AS score FROM contacts WHERE 0`, nil
	}
	return `SELECT rowid AS id, -bm25(contacts_fts) AS score
		FROM contacts_fts WHERE contacts_fts MATCH ?`, []any{q}
}
