// Package storage defines the show-library file-system abstraction.
package storage

import "github.com/starford/cueflow/internal/models"

// Provider is the interface for show file operations.
type Provider interface {
	// List returns metadata for every show file under dir (relative to
	// the library root).
	List(dir string) ([]models.ShowMetadata, error)
	// Read returns the raw bytes of the file at path (relative to the
	// library root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to the library root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to the library root).
	Delete(path string) error
	// Move renames oldPath to newPath (both relative to the library root).
	Move(oldPath, newPath string) error
}
