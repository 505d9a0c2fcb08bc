// Package storage defines the inbox file-system abstraction.
package storage

import (
	"path/filepath"
	"strings"
	"time"
)

// FileMeta describes one contact-card file in the inbox.
type FileMeta struct {
	Path      string
	Checksum  string
	UpdatedAt time.Time
}

// Provider is the interface for inbox file operations.
type Provider interface {
	// List returns metadata for every card file under dir (relative to the inbox root).
	List(dir string) ([]FileMeta, error)
	// Read returns the raw bytes of the file at path (relative to the inbox root).
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path (relative to the inbox root),
	// so the watcher never sees it half written.
	Write(path string, content []byte) error
	// Delete removes the file at path. A missing file yields an error
	// matching fs.ErrNotExist.
	Delete(path string) error
	// Root returns the absolute inbox directory.
	Root() string
}

// IsCard reports whether name has a contact-card extension.
func IsCard(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
