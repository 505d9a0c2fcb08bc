package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/models"
)

const contactColumns = `c.id, c.file_number, c.first_name, c.middle_name, c.last_name, c.email,
	c.phone_number, c.address, c.company, c.file_status, c.client_status, c.created_at, c.updated_at`

const nameOrder = `c.last_name COLLATE NOCASE, c.first_name COLLATE NOCASE, c.id`

type scanner interface {
	Scan(dest ...any) error
}

// scanContact reads contactColumns followed by any extra destinations.
func scanContact(s scanner, extra ...any) (models.Contact, error) {
	var (
		c          models.Contact
		middleName sql.NullString
		company    sql.NullString
	)
	dest := []any{
		&c.ID, &c.FileNumber, &c.FirstName, &middleName, &c.LastName, &c.Email,
		&c.PhoneNumber, &c.Address, &company, &c.FileStatus, &c.ClientStatus, &c.CreatedAt, &c.UpdatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return c, err
	}
	if middleName.Valid {
		c.MiddleName = &middleName.String
	}
	if company.Valid {
		c.Company = &company.String
	}
	c.LinkedClients = []int64{}
	return c, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// normalizeLinks drops duplicates and sorts ascending.
func normalizeLinks(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// idList encodes ids as a JSON array bound to a single json_each(?) so that
// id sets of any size stay under the engine's variable limit.
func idList(ids []int64) string {
	b, _ := json.Marshal(ids)
	return string(b)
}

// checkWrite enforces the uniqueness and link invariants for c inside tx.
// The UNIQUE constraints remain the final arbiter; this only produces
// friendlier field errors for the common case.
func checkWrite(ctx context.Context, tx querier, c *models.Contact) error {
	verr := &apperr.ValidationError{}

	rows, err := tx.QueryContext(ctx, `
		SELECT file_number, email, phone_number
		FROM contacts
		WHERE (file_number = ? OR email = ? OR phone_number = ?) AND id <> ?
	`, c.FileNumber, c.Email, c.PhoneNumber, c.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var fn, email, phone string
		if err := rows.Scan(&fn, &email, &phone); err != nil {
			rows.Close()
			return err
		}
		if fn == c.FileNumber {
			verr.Merge(apperr.NewValidation("file_number", "already exists"))
		}
		if email == c.Email {
			verr.Merge(apperr.NewValidation("email", "already exists"))
		}
		if phone == c.PhoneNumber {
			verr.Merge(apperr.NewValidation("phone_number", "already exists"))
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	links := normalizeLinks(c.LinkedClients)
	if c.ID != 0 {
		for _, id := range links {
			if id == c.ID {
				verr.Merge(apperr.NewValidation("linked_clients", "cannot link to self"))
				break
			}
		}
	}
	if _, selfErr := verr.Fields["linked_clients"]; !selfErr && len(links) > 0 {
		missing, err := missingContacts(ctx, tx, links)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			verr.Merge(apperr.NewValidation("linked_clients", fmt.Sprintf("contact %d does not exist", missing[0])))
		}
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func missingContacts(ctx context.Context, q querier, ids []int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT id FROM contacts WHERE id IN (SELECT value FROM json_each(?))`, idList(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	found := make(map[int64]struct{}, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// replaceLinks swaps the outgoing edge set of from for ids.
func replaceLinks(ctx context.Context, tx querier, from int64, ids []int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM contact_links WHERE from_id = ?`, from); err != nil {
		return fmt.Errorf("clear links: %w", err)
	}
	for _, to := range ids {
		if _, err := tx.ExecContext(ctx, `INSERT INTO contact_links (from_id, to_id) VALUES (?, ?)`, from, to); err != nil {
			return fmt.Errorf("insert link: %w", err)
		}
	}
	return nil
}

// CreateContact inserts c with its outgoing links and schedules a vector
// refresh in the same transaction. ID and timestamps are filled in on c.
func (db *DB) CreateContact(ctx context.Context, c *models.Contact) error {
	return db.withTx(ctx, "create contact", func(tx *sql.Tx) error {
		c.ID = 0
		c.LinkedClients = normalizeLinks(c.LinkedClients)
		if err := checkWrite(ctx, tx, c); err != nil {
			return err
		}

		now := db.now()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO contacts (file_number, first_name, middle_name, last_name, email, phone_number,
				address, company, file_status, client_status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.FileNumber, c.FirstName, nullable(c.MiddleName), c.LastName, c.Email, c.PhoneNumber,
			c.Address, nullable(c.Company), c.FileStatus, c.ClientStatus, now, now)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := replaceLinks(ctx, tx, id, c.LinkedClients); err != nil {
			return err
		}
		if err := enqueueVector(ctx, tx, id, now); err != nil {
			return err
		}
		c.ID, c.CreatedAt, c.UpdatedAt = id, now, now
		return nil
	})
}

// UpdateContact loads the contact, lets mutate change it, re-checks the
// invariants and persists the result in one transaction. mutate may return a
// validation error to abort.
func (db *DB) UpdateContact(ctx context.Context, id int64, mutate func(c *models.Contact) error) (*models.Contact, error) {
	var out *models.Contact
	err := db.withTx(ctx, "update contact", func(tx *sql.Tx) error {
		c, err := getContact(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := mutate(c); err != nil {
			return err
		}
		c.ID = id
		c.LinkedClients = normalizeLinks(c.LinkedClients)
		if err := checkWrite(ctx, tx, c); err != nil {
			return err
		}

		now := db.now()
		_, err = tx.ExecContext(ctx, `
			UPDATE contacts SET
				file_number   = ?,
				first_name    = ?,
				middle_name   = ?,
				last_name     = ?,
				email         = ?,
				phone_number  = ?,
				address       = ?,
				company       = ?,
				file_status   = ?,
				client_status = ?,
				updated_at    = ?
			WHERE id = ?
		`, c.FileNumber, c.FirstName, nullable(c.MiddleName), c.LastName, c.Email, c.PhoneNumber,
			c.Address, nullable(c.Company), c.FileStatus, c.ClientStatus, now, id)
		if err != nil {
			return err
		}
		if err := replaceLinks(ctx, tx, id, c.LinkedClients); err != nil {
			return err
		}
		if err := enqueueVector(ctx, tx, id, now); err != nil {
			return err
		}
		c.UpdatedAt = now
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteContact removes the contact, every edge touching it, and its pending
// vector work in one transaction.
func (db *DB) DeleteContact(ctx context.Context, id int64) error {
	return db.withTx(ctx, "delete contact", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM contact_links WHERE from_id = ? OR to_id = ?`, id, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM vector_tasks WHERE contact_id = ?`, id); err != nil {
			return err
		}
		if err := ftsDelete(ctx, tx, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.ErrNotFound
		}
		return nil
	})
}

// GetContact returns one contact with its linked client ids.
func (db *DB) GetContact(ctx context.Context, id int64) (*models.Contact, error) {
	c, err := getContact(ctx, db.conn, id)
	if err != nil {
		return nil, classify("get contact", err)
	}
	return c, nil
}

// ContactByFileNumber looks a contact up by its caller-assigned file number.
func (db *DB) ContactByFileNumber(ctx context.Context, fileNumber string) (*models.Contact, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts c WHERE c.file_number = ?`, fileNumber)
	c, err := scanContact(row)
	if err != nil {
		return nil, classify("get contact by file number", err)
	}
	if err := attachLinks(ctx, db.conn, []*models.Contact{&c}); err != nil {
		return nil, classify("get contact by file number", err)
	}
	return &c, nil
}

// ContactsByIDs returns the contacts that exist among ids, in name order.
func (db *DB) ContactsByIDs(ctx context.Context, ids []int64) ([]models.Contact, error) {
	ids = normalizeLinks(ids)
	if len(ids) == 0 {
		return []models.Contact{}, nil
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts c
		WHERE c.id IN (SELECT value FROM json_each(?))
		ORDER BY `+nameOrder, idList(ids))
	if err != nil {
		return nil, classify("contacts by ids", err)
	}
	out, err := collectContacts(ctx, db.conn, rows)
	if err != nil {
		return nil, classify("contacts by ids", err)
	}
	return out, nil
}

func getContact(ctx context.Context, q querier, id int64) (*models.Contact, error) {
	row := q.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts c WHERE c.id = ?`, id)
	c, err := scanContact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if err := attachLinks(ctx, q, []*models.Contact{&c}); err != nil {
		return nil, err
	}
	return &c, nil
}

// collectContacts drains rows of contactColumns and attaches links in one query.
func collectContacts(ctx context.Context, q querier, rows *sql.Rows) ([]models.Contact, error) {
	defer rows.Close()
	out := []models.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	ptrs := make([]*models.Contact, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	if err := attachLinks(ctx, q, ptrs); err != nil {
		return nil, err
	}
	return out, nil
}

// attachLinks fills LinkedClients for every contact with a single query.
func attachLinks(ctx context.Context, q querier, contacts []*models.Contact) error {
	if len(contacts) == 0 {
		return nil
	}
	byID := make(map[int64]*models.Contact, len(contacts))
	ids := make([]int64, 0, len(contacts))
	for _, c := range contacts {
		c.LinkedClients = []int64{}
		if _, ok := byID[c.ID]; !ok {
			byID[c.ID] = c
			ids = append(ids, c.ID)
		}
	}
	rows, err := q.QueryContext(ctx, `
		SELECT from_id, to_id FROM contact_links
		WHERE from_id IN (SELECT value FROM json_each(?))
		ORDER BY from_id, to_id
	`, idList(ids))
	if err != nil {
		return fmt.Errorf("load links: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var from, to int64
		if err := rows.Scan(&from, &to); err != nil {
			return err
		}
		if c, ok := byID[from]; ok {
			c.LinkedClients = append(c.LinkedClients, to)
		}
	}
	return rows.Err()
}
