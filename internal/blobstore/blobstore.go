// Package blobstore defines the image-storage collaborator boundary. The
// messaging service only ever stores the returned URL and reference; image
// bytes never enter the message store.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("blob not found")

// Store uploads image bytes and deletes them by reference.
type Store interface {
	Upload(ctx context.Context, data []byte, contentType string) (url string, ref string, err error)
	Delete(ctx context.Context, ref string) error
}

// FileStore keeps uploads on the local filesystem and serves them from a
// public base URL. Production deployments swap this for an object store
// behind the same interface.
type FileStore struct {
	dir     string
	baseURL string
	logger  *zap.Logger
}

func NewFileStore(dir, baseURL string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &FileStore{
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}, nil
}

func (s *FileStore) Upload(ctx context.Context, data []byte, contentType string) (string, string, error) {
	ext := extensionFor(contentType)
	ref := uuid.New().String() + ext

	path := filepath.Join(s.dir, ref)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write blob: %w", err)
	}

	s.logger.Debug("blob stored",
		zap.String("ref", ref),
		zap.Int("size", len(data)),
	)
	return s.baseURL + "/" + ref, ref, nil
}

func (s *FileStore) Delete(ctx context.Context, ref string) error {
	// refuse path traversal in stored refs
	if ref == "" || ref != filepath.Base(ref) {
		return ErrNotFound
	}

	err := os.Remove(filepath.Join(s.dir, ref))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
