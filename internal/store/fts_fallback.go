//go:build !sqlite_fts5

package store

import (
	"context"
	"database/sql"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; ranking runs through vector_rank over contacts.search_vector.
	return nil
}

func ftsUpsert(_ context.Context, _ querier, _ int64, _ string) error { return nil }

func ftsDelete(_ context.Context, _ querier, _ int64) error { return nil }

// vectorMatches returns a (id, score) relation of contacts whose stored vector
// matches text, scored by vector_rank.
func vectorMatches(text string) (string, []any) {
	return `SELECT id, score FROM (
		SELECT id, vector_rank(COALESCE(search_vector, ''), ?) AS score FROM contacts
	) WHERE score > 0`, []any{text}
}
