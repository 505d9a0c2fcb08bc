// Package testutil provides shared test helpers for databases, inbox
// directories and contact fixtures.
package testutil

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/dossier/internal/models"
	"github.com/starford/dossier/internal/storage"
	"github.com/starford/dossier/internal/store"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "dossier-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestInbox creates a temporary inbox directory with a storage.Provider.
func TestInbox(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	p, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, p
}

// Input returns a valid contact input whose email and phone are derived from
// the file number. Fixtures must differ in the digits of their file numbers.
func Input(fileNumber, first, last string, links ...int64) models.ContactInput {
	slug := strings.ToLower(fileNumber)
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, fileNumber)
	return models.ContactInput{
		FileNumber:    fileNumber,
		FirstName:     first,
		LastName:      last,
		Email:         slug + "@example.com",
		PhoneNumber:   "+1555" + digits,
		Address:       "1 Main Street",
		LinkedClients: links,
	}
}
