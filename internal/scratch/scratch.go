// Package scratch manages the temporary files that hold downloaded
// attachments and synthesized audio while a single update is processed.
package scratch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// filePrefix marks files created by this package so cleanup never touches
// anything else in a shared directory.
const filePrefix = "assistbot-"

// Dir is a directory of scratch files.
type Dir struct {
	root string
	log  *slog.Logger
}

// New returns a Dir rooted at root, creating it if needed. An empty root
// uses the system temp directory.
func New(root string, log *slog.Logger) (*Dir, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "assistbot")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory %s: %w", root, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dir{root: root, log: log.With("component", "scratch")}, nil
}

// Root returns the directory path.
func (d *Dir) Root() string { return d.root }

// NewPath returns a fresh, unused file path with the given kind and
// extension (".ogg", ".mp3", ...). No file is created.
func (d *Dir) NewPath(kind, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(d.root, filePrefix+kind+"-"+uuid.NewString()+ext)
}

// Write stores r in a new scratch file. On error no file is left behind.
func (d *Dir) Write(kind, ext string, r io.Reader) (*File, error) {
	path := d.NewPath(kind, ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to close scratch file: %w", err)
	}
	return d.Adopt(path), nil
}

// Adopt takes ownership of an existing path so that Release removes it.
func (d *Dir) Adopt(path string) *File {
	return &File{path: path, log: d.log}
}

// CleanupOlderThan removes scratch files whose modification time is older
// than maxAge and returns how many were removed.
func (d *Dir) CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return 0, fmt.Errorf("failed to read scratch directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if e.IsDir() || !strings.HasPrefix(e.Name(), filePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(d.root, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// File is a scratch file owned by one update. Release removes it; only the
// first call has an effect, so it is safe to defer Release and also call it
// early.
type File struct {
	path string
	log  *slog.Logger
	once sync.Once
}

// Path returns the file path.
func (f *File) Path() string { return f.path }

// Release removes the file.
func (f *File) Release() {
	if f == nil {
		return
	}
	f.once.Do(func() {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.log.Warn("Failed to remove scratch file", "path", f.path, "error", err)
			return
		}
		f.log.Debug("Scratch file removed", "path", f.path)
	})
}
