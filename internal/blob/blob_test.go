package blob

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadDelete(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	png := []byte{0x89, 'P', 'N', 'G'}
	name, err := s.Save("01ENTRY", png)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if name != "01ENTRY.png" {
		t.Fatalf("Save name = %q, want 01ENTRY.png", name)
	}

	got, err := s.Load(name)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(got, png) {
		t.Fatalf("Load = %v, want %v", got, png)
	}

	if err := s.Delete(name); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(name); err == nil {
		t.Fatal("Load after Delete should fail")
	}
	if err := s.Delete(name); err != nil {
		t.Fatalf("Delete of absent blob: %v", err)
	}
}

func TestLoadRejectsPathEscape(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, name := range []string{"../../etc/passwd", "a/b.png", "", ".hidden"} {
		if _, err := s.Load(name); err == nil {
			t.Errorf("Load(%q) should fail", name)
		}
		if err := s.Delete(name); err == nil {
			t.Errorf("Delete(%q) should fail", name)
		}
	}
}

func TestSweepKeepsReferencedBlobs(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	kept, err := s.Save("kept", []byte{1})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.Save("orphan1", []byte{2}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.Save("orphan2", []byte{3}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	removed, err := s.Sweep([]string{kept})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 2 {
		t.Fatalf("Sweep removed %d, want 2", removed)
	}
	if _, err := s.Load(kept); err != nil {
		t.Fatalf("kept blob gone: %v", err)
	}

	dirents, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(dirents) != 1 {
		t.Fatalf("dir has %d files after sweep, want 1", len(dirents))
	}
	if dirents[0].Name() != filepath.Base(kept) {
		t.Fatalf("surviving blob = %s, want %s", dirents[0].Name(), kept)
	}
}
