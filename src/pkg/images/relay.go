package images

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/q-controller/imagestore/src/pkg/images/journal"
	"github.com/q-controller/imagestore/src/pkg/images/storage"
	"github.com/q-controller/imagestore/src/pkg/images/upload"
	"github.com/q-controller/imagestore/src/pkg/metrics"
	"github.com/q-controller/imagestore/src/pkg/utils"
)

type relay struct {
	store    storage.ImageStore
	uploader *upload.Client
	tracker  *upload.Tracker
	journal  *journal.Journal
}

func (r *relay) List(ctx context.Context, refresh bool) ([]storage.ImageRecord, error) {
	if !refresh {
		return r.store.Items(), nil
	}

	records, err := r.store.List()
	metrics.Operations.WithLabelValues("list", metrics.Result(err)).Inc()
	if err != nil {
		return nil, err
	}
	metrics.Images.Set(float64(len(records)))
	return records, nil
}

func (r *relay) Add(ctx context.Context, sourceURI string) (storage.ImageRecord, error) {
	record, err := r.store.Add(ctx, sourceURI)
	metrics.Operations.WithLabelValues("add", metrics.Result(err)).Inc()
	if err != nil {
		return storage.ImageRecord{}, err
	}
	metrics.Images.Set(float64(len(r.store.Items())))
	slog.Info("Image stored", "image", record.DisplayName(), "source", sourceURI)
	return record, nil
}

func (r *relay) Remove(ctx context.Context, ref string) error {
	record, resolveErr := r.resolve(ref)
	if resolveErr != nil {
		metrics.Operations.WithLabelValues("remove", "error").Inc()
		return resolveErr
	}

	err := r.store.Remove(record.URI)
	metrics.Operations.WithLabelValues("remove", metrics.Result(err)).Inc()
	if err != nil {
		return err
	}
	metrics.Images.Set(float64(len(r.store.Items())))
	slog.Info("Image removed", "image", record.DisplayName())

	if r.journal != nil {
		if forgetErr := r.journal.Forget(record.DisplayName()); forgetErr != nil {
			slog.Warn("Failed to drop upload history", "image", record.DisplayName(), "error", forgetErr)
		}
	}
	return nil
}

func (r *relay) Open(ctx context.Context, ref string) (io.ReadCloser, storage.ImageRecord, error) {
	record, resolveErr := r.resolve(ref)
	if resolveErr != nil {
		return nil, storage.ImageRecord{}, resolveErr
	}

	reader, openErr := r.store.Open(record.URI)
	if openErr != nil {
		return nil, storage.ImageRecord{}, openErr
	}
	return reader, record, nil
}

// Upload sends one stored image and waits for the response. The busy signal
// stays on for the settle delay after this returns.
func (r *relay) Upload(ctx context.Context, ref string) (*UploadOutcome, error) {
	if r.uploader == nil {
		return nil, ErrUploadNotConfigured
	}

	record, resolveErr := r.resolve(ref)
	if resolveErr != nil {
		return nil, resolveErr
	}

	session := r.uploader.Start(ctx, record.DisplayName(), func() (io.ReadCloser, error) {
		return r.store.Open(record.URI)
	})
	result, uploadErr := session.Wait(ctx)
	r.record(session, record, result, uploadErr)

	if uploadErr != nil {
		return nil, uploadErr
	}
	return &UploadOutcome{
		SessionID: session.ID,
		Image:     record,
		Result:    result,
	}, nil
}

func (r *relay) record(session *upload.Session, record storage.ImageRecord, result *upload.Result, uploadErr error) {
	if r.journal == nil {
		return
	}

	entry := journal.Entry{
		SessionID:  session.ID,
		Name:       record.DisplayName(),
		URL:        r.uploader.URL(),
		StartedAt:  session.StartedAt,
		FinishedAt: session.FinishedAt(),
	}
	if entry.FinishedAt.IsZero() {
		entry.FinishedAt = time.Now()
	}
	if result != nil {
		entry.StatusCode = result.StatusCode
	}
	if uploadErr != nil {
		entry.Error = uploadErr.Error()
	}

	if err := r.journal.Record(entry); err != nil {
		slog.Warn("Failed to record upload", "image", entry.Name, "session", session.ID, "error", err)
	}
}

func (r *relay) History(ctx context.Context, ref string) ([]journal.Entry, error) {
	if r.journal == nil {
		return []journal.Entry{}, nil
	}
	if ref == "" {
		return r.journal.All()
	}
	return r.journal.List(r.name(ref))
}

func (r *relay) Status() Status {
	return Status{
		Busy:   r.tracker.Busy(),
		Active: r.tracker.Active(),
	}
}

func (r *relay) Subscribe() <-chan upload.BusyEvent {
	return r.tracker.Subscribe()
}

func (r *relay) Unsubscribe(ch <-chan upload.BusyEvent) {
	r.tracker.Unsubscribe(ch)
}

func (r *relay) name(ref string) string {
	if isURI(ref) {
		return filepath.Base(ref)
	}
	return ref
}

func (r *relay) resolve(ref string) (storage.ImageRecord, error) {
	if !isURI(ref) {
		return r.store.Lookup(ref)
	}

	record, lookupErr := r.store.Lookup(filepath.Base(ref))
	if lookupErr != nil {
		return storage.ImageRecord{}, lookupErr
	}
	refPath, refErr := utils.PathFromURI(ref)
	recordPath, recordErr := utils.PathFromURI(record.URI)
	if refErr != nil || recordErr != nil || refPath != recordPath {
		return storage.ImageRecord{}, fmt.Errorf("%w: %s", storage.ErrNotFound, ref)
	}
	return record, nil
}

func isURI(ref string) bool {
	return strings.Contains(ref, "://") || filepath.IsAbs(ref)
}

// CreateService wires the store and the upload relay. uploader and j may be
// nil: uploads then fail with ErrUploadNotConfigured and no history is kept.
func CreateService(store storage.ImageStore, uploader *upload.Client, j *journal.Journal) (ImageService, error) {
	if store == nil {
		return nil, fmt.Errorf("image store is required")
	}

	tracker := upload.NewTracker()
	if uploader != nil {
		tracker = uploader.Tracker()
	}

	return &relay{
		store:    store,
		uploader: uploader,
		tracker:  tracker,
		journal:  j,
	}, nil
}
