package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-lexshelf")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/test-lexshelf" {
			t.Errorf("expected path /tmp/test-lexshelf, got %s", dir.Path())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		dir, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, DefaultDirName)
		if dir.Path() != expected {
			t.Errorf("expected path %s, got %s", expected, dir.Path())
		}
	})
}

func TestDir_Paths(t *testing.T) {
	dir, _ := New("/tmp/test-lexshelf")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"MediaPath", dir.MediaPath(), "/tmp/test-lexshelf/media"},
		{"ConfigPath", dir.ConfigPath(), "/tmp/test-lexshelf/config.yaml"},
		{"DatabasePath", dir.DatabasePath(), "/tmp/test-lexshelf/lexshelf.db"},
		{"LockPath", dir.LockPath(), "/tmp/test-lexshelf/server.lock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, tt.got)
			}
		})
	}
}

func TestDir_EnsureExists(t *testing.T) {
	dir, err := New(filepath.Join(t.TempDir(), "lexshelf-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dir.Exists() {
		t.Error("directory should not exist before EnsureExists")
	}
	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists failed: %v", err)
	}
	if !dir.Exists() {
		t.Error("directory should exist after EnsureExists")
	}
	if _, err := os.Stat(dir.MediaPath()); os.IsNotExist(err) {
		t.Error("media directory should exist after EnsureExists")
	}
	if dir.ConfigExists() {
		t.Error("config should not exist yet")
	}
}
