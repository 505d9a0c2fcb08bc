package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/dossier/internal/checksum"
)

func tempInbox(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	p, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return p
}

func TestWriteAndRead(t *testing.T) {
	s := tempInbox(t)
	content := []byte("file_number: F100\nfirst_name: Jane\n")
	if err := s.Write("cards.yaml", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("cards.yaml")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempInbox(t)
	if err := s.Write("2026/q3/batch.yml", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("2026/q3/batch.yml")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestDelete(t *testing.T) {
	s := tempInbox(t)
	if err := s.Write("cards.yaml.rejected", []byte("- reason: x\n")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("cards.yaml.rejected"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("cards.yaml.rejected"); err == nil {
		t.Error("file still readable after delete")
	}
	if err := s.Delete("cards.yaml.rejected"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("second delete = %v, want fs.ErrNotExist", err)
	}
	if err := s.Delete("../outside.yaml"); err == nil {
		t.Error("expected traversal error")
	}
}

func TestList(t *testing.T) {
	s := tempInbox(t)
	_ = s.Write("b.yaml", []byte("b"))
	_ = s.Write("sub/a.YML", []byte("a"))
	_ = s.Write("readme.txt", []byte("not a card"))
	_ = s.Write(".hidden.yaml", []byte("skip"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	if items[0].Path != "b.yaml" || items[1].Path != "sub/a.YML" {
		t.Errorf("paths = %q, %q", items[0].Path, items[1].Path)
	}
	if items[0].Checksum != checksum.Sum([]byte("b")) {
		t.Errorf("checksum = %q", items[0].Checksum)
	}
}

func TestIsCard(t *testing.T) {
	for name, want := range map[string]bool{
		"a.yaml":  true,
		"a.yml":   true,
		"A.YAML":  true,
		"a.json":  false,
		"a.md":    false,
		"yaml":    false,
		"a.yaml~": false,
	} {
		if got := IsCard(name); got != want {
			t.Errorf("IsCard(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempInbox(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.yaml",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteNoCorruption(t *testing.T) {
	s := tempInbox(t)
	_ = s.Write("atomic.yaml", []byte("original content"))

	updated := []byte("updated content")
	if err := s.Write("atomic.yaml", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.yaml")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.Root(), ".dossier-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp(t.TempDir(), "dossier-test-*")
	_ = f.Close()
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
