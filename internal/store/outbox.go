package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/searchvec"
)

// VectorTask is one pending search-vector refresh. A task is written in the
// same transaction as the contact change that made the vector stale, so a
// committed write can never lose its refresh.
type VectorTask struct {
	ID        int64
	ContactID int64
	Attempts  int
	LastError string
}

func enqueueVector(ctx context.Context, tx querier, contactID int64, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO vector_tasks (contact_id, attempts, next_attempt_at, created_at)
		VALUES (?, 0, ?, ?)
	`, contactID, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("enqueue vector task: %w", err)
	}
	return nil
}

// ClaimVectorTasks leases up to limit due tasks to owner. A lease that runs
// out without a refresh or retry makes the task claimable again.
func (db *DB) ClaimVectorTasks(ctx context.Context, owner string, limit int, lease time.Duration) ([]VectorTask, error) {
	if limit <= 0 {
		return nil, nil
	}
	var tasks []VectorTask
	err := db.withTx(ctx, "claim vector tasks", func(tx *sql.Tx) error {
		now := db.now().UnixMilli()
		rows, err := tx.QueryContext(ctx, `
			SELECT id, contact_id, attempts, COALESCE(last_error, '')
			FROM vector_tasks
			WHERE next_attempt_at <= ?
			  AND (claimed_until IS NULL OR claimed_until <= ?)
			ORDER BY next_attempt_at, id
			LIMIT ?
		`, now, now, limit)
		if err != nil {
			return err
		}
		for rows.Next() {
			var t VectorTask
			if err := rows.Scan(&t.ID, &t.ContactID, &t.Attempts, &t.LastError); err != nil {
				rows.Close()
				return err
			}
			tasks = append(tasks, t)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		until := now + lease.Milliseconds()
		for _, t := range tasks {
			if _, err := tx.ExecContext(ctx,
				`UPDATE vector_tasks SET claimed_by = ?, claimed_until = ? WHERE id = ?`,
				owner, until, t.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// RefreshVector recomputes the contact's vector, stores it, and retires the
// task in one transaction. A task whose contact is gone is simply retired.
func (db *DB) RefreshVector(ctx context.Context, task VectorTask) error {
	err := db.withTx(ctx, "refresh vector", func(tx *sql.Tx) error {
		c, err := getContact(ctx, tx, task.ContactID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
		case err != nil:
			return err
		default:
			vector := searchvec.ForContact(c)
			if _, err := tx.ExecContext(ctx,
				`UPDATE contacts SET search_vector = ? WHERE id = ?`, vector, c.ID); err != nil {
				return err
			}
			if err := ftsUpsert(ctx, tx, c.ID, vector); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM vector_tasks WHERE id = ?`, task.ID)
		return err
	})
	if err != nil && !errors.Is(err, apperr.ErrStorageUnavailable) {
		return fmt.Errorf("%w: %w", apperr.ErrIndexMaintenance, err)
	}
	return err
}

// RetryVectorTask releases the lease and schedules the task again after delay.
func (db *DB) RetryVectorTask(ctx context.Context, taskID int64, delay time.Duration, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	next := db.now().Add(delay).UnixMilli()
	_, err := db.conn.ExecContext(ctx, `
		UPDATE vector_tasks SET
			attempts        = attempts + 1,
			next_attempt_at = ?,
			claimed_by      = NULL,
			claimed_until   = NULL,
			last_error      = ?
		WHERE id = ?
	`, next, msg, taskID)
	return classify("retry vector task", err)
}

// EnqueueStale schedules a refresh for every contact that has no vector and no
// pending task. It returns the number of tasks created.
func (db *DB) EnqueueStale(ctx context.Context) (int, error) {
	return db.enqueueWhere(ctx, "enqueue stale vectors", "c.search_vector IS NULL AND ")
}

// EnqueueAll schedules a refresh for every contact without a pending task.
func (db *DB) EnqueueAll(ctx context.Context) (int, error) {
	return db.enqueueWhere(ctx, "enqueue all vectors", "")
}

func (db *DB) enqueueWhere(ctx context.Context, op, cond string) (int, error) {
	var n int64
	err := db.withTx(ctx, op, func(tx *sql.Tx) error {
		now := db.now().UnixMilli()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO vector_tasks (contact_id, attempts, next_attempt_at, created_at)
			SELECT c.id, 0, ?, ? FROM contacts c
			WHERE `+cond+`NOT EXISTS (SELECT 1 FROM vector_tasks t WHERE t.contact_id = c.id)
		`, now, now)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

// PendingVectorTasks counts tasks not yet refreshed, claimed or not.
func (db *DB) PendingVectorTasks(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_tasks`).Scan(&n)
	return n, classify("pending vector tasks", err)
}

// SearchVector returns the stored vector of a contact; "" means not yet computed.
func (db *DB) SearchVector(ctx context.Context, id int64) (string, error) {
	var v sql.NullString
	err := db.conn.QueryRowContext(ctx, `SELECT search_vector FROM contacts WHERE id = ?`, id).Scan(&v)
	if err != nil {
		return "", classify("search vector", err)
	}
	return v.String, nil
}
