package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotExist is returned when an artifact has not been written yet.
var ErrNotExist = errors.New("artifact does not exist")

// ArtifactWriter receives published artifacts by name.
type ArtifactWriter interface {
	Put(ctx context.Context, name string, data []byte) error
}

// Artifacts is the primary artifact location; it is read back on later runs.
type Artifacts interface {
	ArtifactWriter
	Get(ctx context.Context, name string) ([]byte, error)
}

// Dir stores artifacts as files in a local directory.
type Dir struct {
	Root string
}

// NewDir creates a Dir rooted at root.
func NewDir(root string) *Dir {
	return &Dir{Root: root}
}

// Get reads the named artifact.
func (d *Dir) Get(_ context.Context, name string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(d.Root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotExist
	}
	return b, err
}

// Put writes the named artifact, creating the directory when needed.
func (d *Dir) Put(_ context.Context, name string, data []byte) error {
	if err := os.MkdirAll(d.Root, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", d.Root, err)
	}
	p := filepath.Join(d.Root, name)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("rename %s: %w", p, err)
	}
	return nil
}
