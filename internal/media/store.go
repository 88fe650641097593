// Package media provides local photo storage with content addressing.
// Captured photos are written here first and referenced by observations
// through their local path until the sync engine uploads them.
package media

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	apperrors "github.com/naturelog/backend/internal/errors"
)

// Store handles photo files with SHA-256 content addressing. Identical
// photos captured twice share a single file on disk.
type Store struct {
	// Base directory for stored photos
	baseDir string
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	return &Store{baseDir: baseDir}, nil
}

// SaveResult describes a stored photo.
type SaveResult struct {
	// Path is the absolute local path, suitable for Observation.MediaPath.
	Path        string
	ContentHash string
	Size        int64
	MIMEType    string
}

// Save stores a photo with content addressing. The payload is buffered
// to a temp file, its type sniffed from the leading bytes, and rejected
// unless it is an image. The stored bytes are never transformed.
func (s *Store) Save(r io.Reader) (*SaveResult, error) {
	hasher := sha256.New()

	tmpFile, err := os.CreateTemp(s.baseDir, "incoming-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())
	defer tmpFile.Close()

	size, err := io.Copy(io.MultiWriter(tmpFile, hasher), r)
	if err != nil {
		return nil, fmt.Errorf("failed to read photo data: %w", err)
	}
	if size == 0 {
		return nil, apperrors.New(apperrors.ErrValidation, "empty photo payload")
	}

	mtype, err := mimetype.DetectFile(tmpFile.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to detect photo type: %w", err)
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, apperrors.New(apperrors.ErrValidation,
			fmt.Sprintf("unsupported media type %s, only images are accepted", mtype.String()))
	}

	contentHash := hex.EncodeToString(hasher.Sum(nil))

	// Content-addressed path: baseDir/XX/XXXX...<ext>
	prefix := contentHash[:2]
	dirPath := filepath.Join(s.baseDir, prefix)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media subdirectory: %w", err)
	}

	filePath := filepath.Join(dirPath, contentHash+mtype.Extension())

	result := &SaveResult{
		Path:        filePath,
		ContentHash: contentHash,
		Size:        size,
		MIMEType:    mtype.String(),
	}

	// Deduplication: an existing file means the same photo was stored before
	if _, err := os.Stat(filePath); err == nil {
		return result, nil
	}

	if err := os.Rename(tmpFile.Name(), filePath); err != nil {
		return nil, fmt.Errorf("failed to move photo into store: %w", err)
	}

	return result, nil
}

// Open returns the stored photo for reading. The caller must close it.
func (s *Store) Open(path string) (io.ReadCloser, error) {
	if err := s.validatePath(path); err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open photo: %w", err)
	}
	return file, nil
}

// Exists checks whether a stored photo is still on disk.
func (s *Store) Exists(path string) (bool, error) {
	if err := s.validatePath(path); err != nil {
		return false, err
	}

	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Delete removes a stored photo. Missing files are not an error; the
// empty prefix directory is cleaned up opportunistically.
func (s *Store) Delete(path string) error {
	if err := s.validatePath(path); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete photo: %w", err)
	}

	os.Remove(filepath.Dir(path))
	return nil
}

// validatePath rejects paths outside the store's base directory.
func (s *Store) validatePath(path string) error {
	rel, err := filepath.Rel(s.baseDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("path %q is outside the media store", path)
	}
	return nil
}

// Stats provides storage usage statistics.
type Stats struct {
	TotalFiles int
	TotalSize  int64
}

// GetStats walks the store and totals file counts and sizes.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read media directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || len(entry.Name()) != 2 {
			continue
		}

		files, err := os.ReadDir(filepath.Join(s.baseDir, entry.Name()))
		if err != nil {
			continue
		}

		for _, file := range files {
			if file.IsDir() {
				continue
			}
			stats.TotalFiles++
			if info, err := file.Info(); err == nil {
				stats.TotalSize += info.Size()
			}
		}
	}

	return stats, nil
}
