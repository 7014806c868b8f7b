package objstore

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalPut(t *testing.T) {
	root := t.TempDir()
	l, err := NewLocal(root, "http://localhost:8080/media/")
	if err != nil {
		t.Fatal(err)
	}

	url, err := l.Put(context.Background(), "works/w1/chapters/1/cover.png", []byte("png"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if url != "http://localhost:8080/media/works/w1/chapters/1/cover.png" {
		t.Errorf("url = %q", url)
	}

	// Overwrite is idempotent.
	if _, err := l.Put(context.Background(), "works/w1/chapters/1/cover.png", []byte("png2")); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(root, "works", "w1", "chapters", "1", "cover.png"))
	if err != nil || string(data) != "png2" {
		t.Errorf("stored object = %q, %v", data, err)
	}
	entries, _ := os.ReadDir(filepath.Join(root, "works", "w1", "chapters", "1"))
	if len(entries) != 1 {
		t.Errorf("expected no temp files left behind, got %d entries", len(entries))
	}
}

func TestLocalHandler(t *testing.T) {
	l, err := NewLocal(t.TempDir(), "/media")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Put(context.Background(), "a/narration.mp3", []byte("mp3")); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	l.Handler("/media/").ServeHTTP(rec, httptest.NewRequest("GET", "/media/a/narration.mp3", nil))
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 || string(body) != "mp3" {
		t.Errorf("GET = %d %q", rec.Code, body)
	}
}

func TestInvalidPaths(t *testing.T) {
	m := NewMemory()
	for _, p := range []string{"", "/", "../escape", "a/../../b"} {
		if _, err := m.Put(context.Background(), p, nil); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Put(%q) error = %v, want ErrInvalidPath", p, err)
		}
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	url, err := m.Put(context.Background(), "/x/y.png", []byte("img"))
	if err != nil {
		t.Fatal(err)
	}
	if url != "mem://objects/x/y.png" {
		t.Errorf("url = %q", url)
	}
	if data, ok := m.Get("x/y.png"); !ok || string(data) != "img" {
		t.Errorf("Get() = %q %v", data, ok)
	}

	m.Fail = errors.New("bucket down")
	if _, err := m.Put(context.Background(), "x/z.png", nil); err == nil {
		t.Error("expected injected failure")
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d", m.Len())
	}
}
