// Package objstore stores generated media and returns public URLs for it.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// ErrInvalidPath is returned for empty, absolute or escaping object paths.
var ErrInvalidPath = errors.New("invalid object path")

// Store writes bytes at a path and returns a URL the reading UI can fetch.
// Writing the same path twice overwrites.
type Store interface {
	Put(ctx context.Context, objectPath string, data []byte) (string, error)
}

// cleanPath normalizes an object path to a slash-separated relative path.
func cleanPath(objectPath string) (string, error) {
	p := path.Clean("/" + strings.TrimSpace(objectPath))
	if p == "/" || strings.Contains(objectPath, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
	}
	return strings.TrimPrefix(p, "/"), nil
}

// Local stores objects under a directory. URLs are BaseURL + "/" + path.
type Local struct {
	root    string
	baseURL string
}

// NewLocal creates the root directory if needed.
func NewLocal(root, baseURL string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &Local{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root returns the directory objects are written under.
func (l *Local) Root() string {
	return l.root
}

// Put writes data through a temp file and rename so readers never see a
// partial object.
func (l *Local) Put(ctx context.Context, objectPath string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rel, err := cleanPath(objectPath)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(l.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".put-*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("commit object: %w", err)
	}
	return l.baseURL + "/" + rel, nil
}

// Handler serves stored objects. Mount it under the BaseURL path prefix.
func (l *Local) Handler(prefix string) http.Handler {
	return http.StripPrefix(prefix, http.FileServer(http.Dir(l.root)))
}

// Memory keeps objects in a map, for tests.
type Memory struct {
	BaseURL string

	mu      sync.Mutex
	objects map[string][]byte
	// Fail, when set, is returned by every Put.
	Fail error
}

// NewMemory creates an empty in-memory object store.
func NewMemory() *Memory {
	return &Memory{BaseURL: "mem://objects", objects: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, objectPath string, data []byte) (string, error) {
	rel, err := cleanPath(objectPath)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return "", m.Fail
	}
	m.objects[rel] = append([]byte(nil), data...)
	return m.BaseURL + "/" + rel, nil
}

// Get returns a stored object.
func (m *Memory) Get(objectPath string) ([]byte, bool) {
	rel, err := cleanPath(objectPath)
	if err != nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[rel]
	return data, ok
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

var (
	_ Store = (*Local)(nil)
	_ Store = (*Memory)(nil)
)
