package store

import (
	"context"

	"github.com/starford/dossier/internal/models"
)

// Outgoing returns the contacts id links to (its linked clients), in name order.
func (db *DB) Outgoing(ctx context.Context, id int64) ([]models.Contact, error) {
	return db.neighbours(ctx, "outgoing links", id, `
		SELECT `+contactColumns+`
		FROM contact_links l
		JOIN contacts c ON c.id = l.to_id
		WHERE l.from_id = ?
		ORDER BY `+nameOrder)
}

// Incoming returns the contacts that link to id (its linked files), in name order.
func (db *DB) Incoming(ctx context.Context, id int64) ([]models.Contact, error) {
	return db.neighbours(ctx, "incoming links", id, `
		SELECT `+contactColumns+`
		FROM contact_links l
		JOIN contacts c ON c.id = l.from_id
		WHERE l.to_id = ?
		ORDER BY `+nameOrder)
}

// neighbours distinguishes an unknown id (not found) from one with no edges.
func (db *DB) neighbours(ctx context.Context, op string, id int64, query string) ([]models.Contact, error) {
	var exists int
	err := db.conn.QueryRowContext(ctx, `SELECT 1 FROM contacts WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return nil, classify(op, err)
	}
	rows, err := db.conn.QueryContext(ctx, query, id)
	if err != nil {
		return nil, classify(op, err)
	}
	out, err := collectContacts(ctx, db.conn, rows)
	if err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}
