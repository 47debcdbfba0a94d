// Package landing reads raw files from the object landing store. The engine
// only consumes the store; provisioning buckets and uploading files is an
// external concern.
package landing

import (
	"context"
	"io"
	"time"
)

// Object is a handle to one landed file.
type Object struct {
	Dataset      string
	Key          string
	Size         int64
	LastModified time.Time
}

// Store lists and reads landed files for a dataset.
type Store interface {
	// ListNewObjects returns objects for the dataset modified after since,
	// oldest first.
	ListNewObjects(ctx context.Context, dataset string, since time.Time) ([]Object, error)
	// Read opens the object payload. Callers must close the reader.
	Read(ctx context.Context, obj Object) (io.ReadCloser, error)
}
