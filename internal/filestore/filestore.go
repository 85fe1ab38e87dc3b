package filestore

import (
	"io"
)

// FileStore stores and retrieves uploaded file content by id.
type FileStore interface {
	// Save writes the file content under the given id. Writing the same
	// id twice is idempotent.
	Save(r io.Reader, id string) error

	// Get retrieves the file content for the given id.
	Get(id string) (io.ReadCloser, error)

	// Delete removes the file content. Deleting a missing id is not an
	// error.
	Delete(id string) error
}
