package file

import (
	"path/filepath"
	"testing"

	"github.com/gozork/zvm/internal/host"
)

func TestStoreSaveRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want := host.Snapshot("GOZM fake snapshot bytes")
	if err := s.Save("game1", want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Restore("game1")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("Restore = %q, want %q", got, want)
	}
}

func TestStoreDefaultNameAndExtension(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Save("", host.Snapshot("data")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := s.path(""); got != filepath.Join(dir, "save.sav") {
		t.Errorf("path(\"\") = %q, want %q", got, filepath.Join(dir, "save.sav"))
	}

	if got := s.path("game2"); got != filepath.Join(dir, "game2.sav") {
		t.Errorf("path(\"game2\") = %q, want %q", got, filepath.Join(dir, "game2.sav"))
	}
	if got := s.path("game3.dat"); got != filepath.Join(dir, "game3.dat") {
		t.Errorf("path(\"game3.dat\") = %q, want %q", got, filepath.Join(dir, "game3.dat"))
	}
}

func TestStorePathRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := s.path("../../etc/passwd")
	want := filepath.Join(dir, "passwd.sav")
	if got != want {
		t.Errorf("path with traversal = %q, want %q", got, want)
	}
}

func TestStoreList(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Save("alpha", host.Snapshot("a")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save("beta", host.Snapshot("b")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	names, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2: %v", len(names), names)
	}
}

func TestStoreRestoreMissing(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Restore("nope"); err == nil {
		t.Fatalf("Restore of a missing save should error")
	}
}
