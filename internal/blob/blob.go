// Package blob is the storage collaborator for todo attachments: a
// content-addressed file store. Upload returns a stable attachment id
// (the SHA-256 of the bytes) once the bytes are durably stored;
// Resolve maps an id back to a URL or reports it unresolved.
//
// The sync engine never owns upload mechanics beyond this contract.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/notedeck/notedeck/internal/errors"
)

// Store is the storage collaborator contract consumed by the
// attachment linker.
type Store interface {
	// Upload durably stores data and returns its attachment id.
	Upload(data []byte) (string, error)

	// Resolve returns a URL for an attachment id, or an
	// ATTACHMENT_NOT_FOUND error for a dangling id.
	Resolve(id string) (string, error)
}

// FileStore stores attachments by content hash under a base
// directory. Identical payloads are stored once.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a FileStore rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

// Hash returns the attachment id for a payload.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Upload implements Store. Files land at
// baseDir/{id[0:2]}/{id[2:4]}/{id}; the two-level fanout keeps
// directories small.
func (s *FileStore) Upload(data []byte) (string, error) {
	id := Hash(data)

	dir := filepath.Join(s.baseDir, id[0:2], id[2:4])
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create attachment directory: %w", err)
	}

	path := filepath.Join(dir, id)
	if _, err := os.Stat(path); err == nil {
		// Already stored, deduplicated.
		return id, nil
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}

	return id, nil
}

// Resolve implements Store.
func (s *FileStore) Resolve(id string) (string, error) {
	if len(id) != sha256.Size*2 {
		return "", errors.Newf(errors.ErrAttachmentNotFound, "malformed attachment id %q", id)
	}

	path := filepath.Join(s.baseDir, id[0:2], id[2:4], id)
	if _, err := os.Stat(path); err != nil {
		return "", errors.Newf(errors.ErrAttachmentNotFound, "attachment %s does not resolve", id)
	}

	return "file://" + path, nil
}

var _ Store = (*FileStore)(nil)
