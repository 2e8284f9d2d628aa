package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath = errors.New("invalid storage path")
	ErrExists      = errors.New("object already exists")
	ErrNotFound    = errors.New("object not found")
)

// FilesystemStorage stores objects on local disk under basePath. Object
// paths are slash separated and relative, e.g. "{user}/verification/x.jpg".
type FilesystemStorage struct {
	basePath string // e.g., "./data/verification"
}

func NewFilesystemStorage(basePath string) (*FilesystemStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FilesystemStorage{basePath: basePath}, nil
}

// CreateFile opens a new object for writing. Existing objects are never
// overwritten.
func (s *FilesystemStorage) CreateFile(objectPath string) (io.WriteCloser, error) {
	full, err := s.resolve(objectPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("create object dir: %w", err)
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("%w: %s", ErrExists, objectPath)
	}
	return f, err
}

func (s *FilesystemStorage) ReadFile(objectPath string) (io.ReadCloser, error) {
	full, err := s.resolve(objectPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, objectPath)
	}
	return f, err
}

func (s *FilesystemStorage) DeleteFile(objectPath string) error {
	full, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	err = os.Remove(full)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, objectPath)
	}
	return err
}

// resolve maps an object path onto the filesystem, refusing anything that
// would escape basePath.
func (s *FilesystemStorage) resolve(objectPath string) (string, error) {
	if objectPath == "" || strings.HasPrefix(objectPath, "/") || strings.Contains(objectPath, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
	}
	clean := path.Clean(objectPath)
	if clean != objectPath || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
	}
	return filepath.Join(s.basePath, filepath.FromSlash(clean)), nil
}
