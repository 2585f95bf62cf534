package storage

import (
	"context"
	"errors"
	"io"
	"path"
)

var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrCopyFailed         = errors.New("copy failed")
	ErrNotFound           = errors.New("image not found")
)

// ImageStore abstracts the directory that holds the images.
type ImageStore interface {
	Initialize() error
	List() ([]ImageRecord, error)
	Items() []ImageRecord
	Add(ctx context.Context, sourceURI string) (ImageRecord, error)
	Remove(uri string) error
	Lookup(name string) (ImageRecord, error)
	Open(uri string) (io.ReadCloser, error)
}

// ImageRecord is one stored image. URI is a file:// URI inside the store
// directory.
type ImageRecord struct {
	URI string `json:"uri" yaml:"uri"`
}

// DisplayName is the last path segment of the URI.
func (r ImageRecord) DisplayName() string {
	return path.Base(r.URI)
}
