package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrTooLarge reports an upload exceeding the configured size limit.
var ErrTooLarge = errors.New("file exceeds maximum size")

// ErrInvalidRef reports a reference that escapes the storage root.
var ErrInvalidRef = errors.New("invalid file reference")

// LocalStorage persists manuscripts on disk under a base directory.
// Callers only ever see the relative reference returned by Save.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./manuscripts"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create manuscripts directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Save copies at most maxBytes from r into a fresh file grouped under the
// owner directory and returns its reference. A non-positive maxBytes disables the limit.
func (s *LocalStorage) Save(owner, originalName string, r io.Reader, maxBytes int64) (string, error) {
	owner = sanitizeSegment(owner)
	if owner == "" {
		owner = "unassigned"
	}
	ref := path.Join(owner, uuid.NewString()+strings.ToLower(filepath.Ext(originalName)))
	target, err := s.resolve(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("prepare manuscript directory: %w", err)
	}
	file, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create manuscript file: %w", err)
	}

	reader := r
	if maxBytes > 0 {
		reader = io.LimitReader(r, maxBytes+1)
	}
	written, copyErr := io.Copy(file, reader)
	closeErr := file.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(target)
		return "", fmt.Errorf("write manuscript stream: %w", copyErr)
	case closeErr != nil:
		_ = os.Remove(target)
		return "", fmt.Errorf("close manuscript file: %w", closeErr)
	case maxBytes > 0 && written > maxBytes:
		_ = os.Remove(target)
		return "", ErrTooLarge
	}
	return ref, nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(ref string) (*os.File, error) {
	target, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if err != nil {
		return nil, fmt.Errorf("open manuscript file: %w", err)
	}
	return file, nil
}

// Exists reports whether a reference points at a stored file.
func (s *LocalStorage) Exists(ref string) bool {
	target, err := s.resolve(ref)
	if err != nil {
		return false
	}
	info, err := os.Stat(target)
	return err == nil && !info.IsDir()
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(ref string) error {
	target, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete manuscript file: %w", err)
	}
	return nil
}

// DeleteOwner removes every file stored for the owner.
func (s *LocalStorage) DeleteOwner(owner string) error {
	owner = sanitizeSegment(owner)
	if owner == "" {
		return ErrInvalidRef
	}
	if err := os.RemoveAll(filepath.Join(s.baseDir, owner)); err != nil {
		return fmt.Errorf("delete manuscripts for %s: %w", owner, err)
	}
	return nil
}

// Path exposes the underlying path (useful for debugging).
func (s *LocalStorage) Path(ref string) string {
	target, err := s.resolve(ref)
	if err != nil {
		return ""
	}
	return target
}

func (s *LocalStorage) resolve(ref string) (string, error) {
	cleaned := path.Clean("/" + filepath.ToSlash(ref))
	if cleaned == "/" {
		return "", ErrInvalidRef
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(strings.TrimPrefix(cleaned, "/"))), nil
}

func sanitizeSegment(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, "/", "")
	raw = strings.ReplaceAll(raw, "\\", "")
	if raw == "." || raw == ".." {
		return ""
	}
	return raw
}
