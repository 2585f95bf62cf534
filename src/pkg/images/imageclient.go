package images

import (
	"context"
	"errors"
	"io"

	"github.com/q-controller/imagestore/src/pkg/images/journal"
	"github.com/q-controller/imagestore/src/pkg/images/storage"
	"github.com/q-controller/imagestore/src/pkg/images/upload"
)

var ErrUploadNotConfigured = errors.New("upload endpoint is not configured")

// Status is the busy signal rendered by the UI as a blocking overlay.
type Status struct {
	Busy   bool `json:"busy"`
	Active int  `json:"active"`
}

// UploadOutcome is what the caller gets back from an upload: the session
// handle and the raw response.
type UploadOutcome struct {
	SessionID string
	Image     storage.ImageRecord
	Result    *upload.Result
}

// ImageService is the surface the UI layer talks to. Images are referenced
// either by display name or by URI.
type ImageService interface {
	List(ctx context.Context, refresh bool) ([]storage.ImageRecord, error)
	Add(ctx context.Context, sourceURI string) (storage.ImageRecord, error)
	Remove(ctx context.Context, ref string) error
	Open(ctx context.Context, ref string) (io.ReadCloser, storage.ImageRecord, error)
	Upload(ctx context.Context, ref string) (*UploadOutcome, error)
	History(ctx context.Context, ref string) ([]journal.Entry, error)
	Status() Status
	Subscribe() <-chan upload.BusyEvent
	Unsubscribe(ch <-chan upload.BusyEvent)
}
