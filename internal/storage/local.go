package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrBlobNotFound is returned when a blob reference does not resolve to a stored file
var ErrBlobNotFound = errors.New("blob not found")

// LocalStorage handles blob storage on the local filesystem. References are
// opaque relative paths; callers never interpret them.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	// Ensure the base directory exists
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Put streams r into a new blob and returns its reference and size
func (s *LocalStorage) Put(ctx context.Context, r io.Reader, filename, subDir string) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	// Organised by year/month (e.g., "documents/2026/01")
	dir := filepath.Join(s.basePath, subDir, time.Now().Format("2006/01"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create directory: %w", err)
	}

	// Generate unique filename
	ext := strings.ToLower(filepath.Ext(filename))
	filePath := filepath.Join(dir, generateID()+ext)

	// Create destination file
	dst, err := os.Create(filePath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create file: %w", err)
	}

	// Copy content
	n, err := io.Copy(dst, &ctxReader{ctx: ctx, r: r})
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		// Clean up on failure
		os.Remove(filePath)
		return "", 0, fmt.Errorf("failed to save file: %w", err)
	}

	// Return relative path for database storage
	relPath, _ := filepath.Rel(s.basePath, filePath)
	return filepath.ToSlash(relPath), n, nil
}

// PutBytes saves data as a new blob and returns its reference
func (s *LocalStorage) PutBytes(ctx context.Context, data []byte, filename, subDir string) (string, error) {
	ref, _, err := s.Put(ctx, bytes.NewReader(data), filename, subDir)
	return ref, err
}

// Open returns the blob for reading
func (s *LocalStorage) Open(ctx context.Context, ref string) (*os.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filePath, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	return f, err
}

// Stat reports the size of an existing blob
func (s *LocalStorage) Stat(ctx context.Context, ref string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	filePath, err := s.resolve(ref)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(filePath)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
		return 0, ErrBlobNotFound
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Delete removes a blob
func (s *LocalStorage) Delete(ref string) error {
	filePath, err := s.resolve(ref)
	if err != nil {
		return err
	}
	return os.Remove(filePath)
}

// FullPath returns the absolute path for serving files
func (s *LocalStorage) FullPath(ref string) (string, error) {
	return s.resolve(ref)
}

// resolve maps a reference to a path, refusing anything that escapes the base directory
func (s *LocalStorage) resolve(ref string) (string, error) {
	if ref == "" {
		return "", ErrBlobNotFound
	}
	clean := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrBlobNotFound
	}
	return filepath.Join(s.basePath, clean), nil
}

// ctxReader stops a copy once the context is cancelled
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// generateID creates a unique identifier for filenames
func generateID() string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// ValidContentTypes returns allowed MIME types for uploads
func ValidContentTypes() map[string]bool {
	return map[string]bool{
		"application/pdf":    true,
		"application/msword": true,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
		"application/vnd.ms-excel": true,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
		"application/xml":          true,
		"text/xml":                 true,
		"text/plain":               true,
		"application/zip":          true,
		"application/octet-stream": true,
		"image/jpeg":               true,
		"image/jpg":                true,
		"image/png":                true,
	}
}

// IsValidContentType checks if the content type is allowed
func IsValidContentType(contentType string) bool {
	// drop parameters such as "; charset=utf-8"
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return ValidContentTypes()[strings.TrimSpace(strings.ToLower(contentType))]
}

// IsImage reports whether a content type can be thumbnailed
func IsImage(contentType string) bool {
	switch strings.ToLower(contentType) {
	case "image/jpeg", "image/jpg", "image/png":
		return true
	}
	return false
}
