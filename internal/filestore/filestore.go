package filestore

import (
	"io"
)

// FileStore is an interface for storing and retrieving uploaded files by id.
type FileStore interface {
	// Save saves the file content under the given id.
	// It is idempotent: if a file with the same id already exists, it returns nil.
	Save(r io.Reader, id string) error

	// Get retrieves the file content for the given id.
	Get(id string) (io.ReadCloser, error)
}
