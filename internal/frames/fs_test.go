package frames

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/keyscan/internal/apperr"
	"github.com/starford/keyscan/internal/checksum"
)

func tempFrames(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempFrames(t)
	content := []byte("not really a png")
	if err := s.Write("0001.png", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("0001.png")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestReadMissingIsNotFound(t *testing.T) {
	s := tempFrames(t)
	if _, err := s.Read("missing.png"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := tempFrames(t)
	_ = s.Write("del.png", []byte("bye"))
	if err := s.Delete("del.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del.png"); err == nil {
		t.Error("expected error reading deleted frame")
	}
	if err := s.Delete("del.png"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestListSortedImagesOnly(t *testing.T) {
	s := tempFrames(t)
	_ = s.Write("b.png", []byte("b"))
	_ = s.Write("a.jpg", []byte("a"))
	_ = os.WriteFile(filepath.Join(s.Root(), "notes.txt"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(s.Root(), ".hidden.png"), []byte("x"), 0o644)
	_ = os.Mkdir(filepath.Join(s.Root(), "sub.png"), 0o755)

	metas, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("List returned %d frames, want 2: %+v", len(metas), metas)
	}
	if metas[0].Name != "a.jpg" || metas[1].Name != "b.png" {
		t.Errorf("order = %s, %s", metas[0].Name, metas[1].Name)
	}
	if metas[1].Checksum != checksum.Sum([]byte("b")) || metas[1].Size != 1 {
		t.Errorf("metadata = %+v", metas[1])
	}
}

func TestInvalidNames(t *testing.T) {
	s := tempFrames(t)
	bad := []string{"", "../escape.png", "sub/frame.png", "/etc/passwd.png", "frame.txt", ".hidden.png"}
	for _, name := range bad {
		if err := s.Write(name, []byte("x")); !errors.Is(err, apperr.ErrInvalidName) {
			t.Errorf("Write(%q) err = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestNewFSRejectsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	_ = os.WriteFile(f, []byte("x"), 0o644)
	if _, err := NewFS(f); err == nil {
		t.Error("expected error for non-directory root")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("garbage")); !errors.Is(err, apperr.ErrInvalidImage) {
		t.Errorf("err = %v, want ErrInvalidImage", err)
	}
}
