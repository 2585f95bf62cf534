package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/q-controller/imagestore/src/pkg/utils"
	"golang.org/x/sync/singleflight"
)

const Extension = ".jpg"

// LocalStore keeps images as flat files in a single directory. The directory
// listing is authoritative; items is a cache rebuilt by every List call.
type LocalStore struct {
	dir   string
	now   func() time.Time
	mu    sync.Mutex
	items []ImageRecord
	group singleflight.Group
}

type Option func(*LocalStore)

// WithClock overrides the clock used to name new files.
func WithClock(now func() time.Time) Option {
	return func(s *LocalStore) {
		s.now = now
	}
}

func NewLocalStore(dir string, opts ...Option) *LocalStore {
	if abs, absErr := filepath.Abs(dir); absErr == nil {
		dir = abs
	}
	store := &LocalStore{
		dir: filepath.Clean(dir),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) ensureDir() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create %s: %w", ErrStorageUnavailable, s.dir, err)
	}
	return nil
}

// Initialize creates the directory if needed and loads the cache from it.
func (s *LocalStore) Initialize() error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	_, listErr := s.List()
	return listErr
}

// List re-reads the directory and replaces the cache with its contents.
// Entries come back in enumeration order.
func (s *LocalStore) List() ([]ImageRecord, error) {
	result, err, _ := s.group.Do("list", func() (interface{}, error) {
		// Held across the read so a concurrent Add or Remove lands either
		// before the snapshot or after the cache swap.
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := s.ensureDir(); err != nil {
			return nil, err
		}

		entries, readErr := os.ReadDir(s.dir)
		if readErr != nil {
			return nil, fmt.Errorf("%w: failed to read %s: %w", ErrStorageUnavailable, s.dir, readErr)
		}

		records := make([]ImageRecord, 0, len(entries))
		for _, entry := range entries {
			if !entry.Type().IsRegular() || strings.HasSuffix(entry.Name(), utils.TempSuffix) {
				continue
			}
			records = append(records, s.record(entry.Name()))
		}

		s.items = records
		return slices.Clone(records), nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(result.([]ImageRecord)), nil
}

// Items returns the cached records without touching the disk.
func (s *LocalStore) Items() []ImageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// Add copies the image at sourceURI into the store under <epoch-millis>.jpg.
// sourceURI may be a file:// URI, a plain path or an http(s) URL. The bytes
// are copied as-is.
func (s *LocalStore) Add(ctx context.Context, sourceURI string) (ImageRecord, error) {
	sourcePath, cleanup, sourceErr := s.materialize(ctx, sourceURI)
	if sourceErr != nil {
		return ImageRecord{}, fmt.Errorf("%w: %w", ErrCopyFailed, sourceErr)
	}
	defer cleanup()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureDir(); err != nil {
		return ImageRecord{}, fmt.Errorf("%w: %w", ErrCopyFailed, err)
	}

	name := fmt.Sprintf("%d%s", s.now().UnixMilli(), Extension)
	if copyErr := utils.CopyFile(sourcePath, filepath.Join(s.dir, name)); copyErr != nil {
		return ImageRecord{}, fmt.Errorf("%w: %s: %w", ErrCopyFailed, sourceURI, copyErr)
	}

	record := s.record(name)
	if !slices.Contains(s.items, record) {
		s.items = append(s.items, record)
	}
	slog.Debug("Image added", "source", sourceURI, "image", name)
	return record, nil
}

func (s *LocalStore) materialize(ctx context.Context, sourceURI string) (string, func(), error) {
	if !utils.IsHTTP(sourceURI) {
		sourcePath, pathErr := utils.PathFromURI(sourceURI)
		return sourcePath, func() {}, pathErr
	}

	tmpDir, tmpErr := os.MkdirTemp("", "imagestore-download-*")
	if tmpErr != nil {
		return "", nil, tmpErr
	}
	cleanup := func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			slog.Warn("Failed to remove download directory", "directory", tmpDir, "error", rmErr)
		}
	}

	tmpPath := filepath.Join(tmpDir, "source")
	if downloadErr := utils.DownloadFile(ctx, sourceURI, tmpPath); downloadErr != nil {
		cleanup()
		return "", nil, downloadErr
	}
	return tmpPath, cleanup, nil
}

// Remove deletes the file behind uri and drops it from the cache. The cache
// is left alone when the delete fails.
func (s *LocalStore) Remove(uri string) error {
	filePath, resolveErr := s.Resolve(uri)
	if resolveErr != nil {
		return resolveErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		return fmt.Errorf("failed to remove %s: %w", uri, err)
	}

	record := s.record(filepath.Base(filePath))
	s.items = slices.DeleteFunc(s.items, func(item ImageRecord) bool {
		return item == record
	})
	slog.Debug("Image removed", "image", record.DisplayName())
	return nil
}

// Resolve maps a record URI (or plain path) to a path inside the store
// directory.
func (s *LocalStore) Resolve(uri string) (string, error) {
	filePath, pathErr := utils.PathFromURI(uri)
	if pathErr != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrNotFound, uri, pathErr)
	}
	if abs, absErr := filepath.Abs(filePath); absErr == nil {
		filePath = abs
	}
	if filepath.Dir(filePath) != s.dir {
		return "", fmt.Errorf("%w: %s is outside %s", ErrNotFound, uri, s.dir)
	}
	return filePath, nil
}

// Lookup finds the record for a display name.
func (s *LocalStore) Lookup(name string) (ImageRecord, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return ImageRecord{}, fmt.Errorf("%w: invalid name %q", ErrNotFound, name)
	}

	info, statErr := os.Stat(filepath.Join(s.dir, name))
	if statErr != nil || !info.Mode().IsRegular() {
		return ImageRecord{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.record(name), nil
}

// Open opens the stored file for reading. The caller closes it.
func (s *LocalStore) Open(uri string) (io.ReadCloser, error) {
	filePath, resolveErr := s.Resolve(uri)
	if resolveErr != nil {
		return nil, resolveErr
	}

	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		return nil, fmt.Errorf("failed to open %s: %w", uri, err)
	}
	return file, nil
}

func (s *LocalStore) record(name string) ImageRecord {
	return ImageRecord{URI: utils.FileURI(filepath.Join(s.dir, name))}
}
