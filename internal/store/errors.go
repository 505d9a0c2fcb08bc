package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/dossier/internal/apperr"
)

// uniqueColumns maps constrained columns to the field names callers see.
var uniqueColumns = map[string]string{
	"contacts.file_number":  "file_number",
	"contacts.email":        "email",
	"contacts.phone_number": "phone_number",
}

// classify maps driver errors onto the apperr taxonomy. Errors that already
// carry a taxonomy sentinel pass through untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		return err
	}
	for _, known := range []error{apperr.ErrNotFound, apperr.ErrInvalidArgument, apperr.ErrStorageUnavailable} {
		if errors.Is(err, known) {
			return err
		}
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("store: %s: %w", op, apperr.ErrNotFound)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("store: %s: %w: %w", op, apperr.ErrStorageUnavailable, err)
	}

	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrFull, sqlite3.ErrIoErr, sqlite3.ErrCantOpen, sqlite3.ErrInterrupt:
			return fmt.Errorf("store: %s: %w: %w", op, apperr.ErrStorageUnavailable, err)
		case sqlite3.ErrConstraint:
			if field := uniqueField(se.Error()); field != "" {
				return apperr.NewValidation(field, "already exists")
			}
			if strings.Contains(se.Error(), "CHECK constraint failed") && strings.Contains(se.Error(), "from_id") {
				return apperr.NewValidation("linked_clients", "cannot link to self")
			}
		}
	}
	return fmt.Errorf("store: %s: %w", op, err)
}

// uniqueField extracts the field from "UNIQUE constraint failed: contacts.email".
func uniqueField(msg string) string {
	const prefix = "UNIQUE constraint failed: "
	i := strings.Index(msg, prefix)
	if i < 0 {
		return ""
	}
	cols := strings.Split(msg[i+len(prefix):], ",")
	for _, c := range cols {
		if f, ok := uniqueColumns[strings.TrimSpace(c)]; ok {
			return f
		}
	}
	return ""
}
