// ABOUTME: Unit tests for the Source factory's path dispatch
package source

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew_EmptyPathReturnsTestTone(t *testing.T) {
	src, err := New("")
	if err != nil {
		t.Fatalf("New(\"\") failed: %v", err)
	}
	if _, ok := src.(*TestTone); !ok {
		t.Errorf("New(\"\") returned %T, want *TestTone", src)
	}
}

func TestNew_MissingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "does-not-exist.mp3"))
	if err == nil {
		t.Fatal("New() with a missing file expected an error, got nil")
	}
}

func TestNew_UnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "track.wav")
	if err := writeEmptyFile(path); err != nil {
		t.Fatalf("writeEmptyFile: %v", err)
	}

	_, err := New(path)
	if err == nil {
		t.Fatal("New() with an unsupported extension expected an error, got nil")
	}
}

func writeEmptyFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return f.Close()
}
