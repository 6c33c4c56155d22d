// Package filesystem grants workbook file handles on the local disk.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rl1809/storeflow/internal/port"
)

var ErrOutsideRoot = errors.New("path escapes the workbook directory")

// LocalFileAccess opens files under a single root directory. A disabled
// instance reports itself unsupported.
type LocalFileAccess struct {
	root    string
	enabled bool
}

func NewLocalFileAccess(root string, enabled bool) *LocalFileAccess {
	return &LocalFileAccess{root: filepath.Clean(root), enabled: enabled}
}

func (l *LocalFileAccess) Supported() bool {
	return l.enabled && l.root != ""
}

// Open grants a handle to an existing regular file. path is relative to the root.
func (l *LocalFileAccess) Open(ctx context.Context, path string) (port.FileHandle, error) {
	if !l.Supported() {
		return nil, errors.New("file access disabled")
	}
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, fmt.Errorf("stat workbook: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	return &localHandle{path: full, name: filepath.Base(full)}, nil
}

func (l *LocalFileAccess) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: %w: empty path", ErrOutsideRoot, fs.ErrPermission)
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: %w: %s", ErrOutsideRoot, fs.ErrPermission, path)
	}
	full := filepath.Join(l.root, path)
	rel, err := filepath.Rel(l.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %w: %s", ErrOutsideRoot, fs.ErrPermission, path)
	}
	return full, nil
}

type localHandle struct {
	path string
	name string
}

func (h *localHandle) Name() string { return h.name }

func (h *localHandle) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(h.path)
}

// Write replaces the file through a temp file in the same directory, so a
// failed write never leaves a truncated workbook behind.
func (h *localHandle) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(h.path), "."+h.name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), h.path); err != nil {
		return fmt.Errorf("replace workbook: %w", err)
	}
	return nil
}
