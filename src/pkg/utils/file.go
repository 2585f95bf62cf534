package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const TempSuffix = ".tmp"

// CopyFile streams src into dst. The data is written to a temporary file next
// to dst, synced and renamed, so dst either holds the full content or is left
// untouched.
func CopyFile(src, dst string) (retErr error) {
	in, openErr := os.Open(filepath.Clean(src))
	if openErr != nil {
		return openErr
	}
	defer func() {
		if closeErr := in.Close(); closeErr != nil {
			retErr = errors.Join(retErr, closeErr)
		}
	}()

	return WriteFile(dst, in)
}

// WriteFile stores everything read from r at dst using the same
// temp-file-then-rename sequence as CopyFile.
func WriteFile(dst string, r io.Reader) error {
	tmpPath := dst + TempSuffix
	out, createErr := os.OpenFile(filepath.Clean(tmpPath), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if createErr != nil {
		return createErr
	}

	if _, copyErr := io.Copy(out, r); copyErr != nil {
		_ = out.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", dst, copyErr)
	}

	if syncErr := out.Sync(); syncErr != nil {
		_ = out.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync %s: %w", dst, syncErr)
	}

	if closeErr := out.Close(); closeErr != nil {
		_ = os.Remove(tmpPath)
		return closeErr
	}

	if renameErr := os.Rename(tmpPath, dst); renameErr != nil {
		_ = os.Remove(tmpPath)
		return renameErr
	}
	return nil
}

type pendingFile struct {
	size     int64
	lastSeen time.Time
}

// WaitForFile blocks until a file whose base name satisfies match appears in
// dir and stays untouched for quiet: no write events and an unchanged size.
// A file moved into dir in one piece is ready after quiet; a file written in
// place is ready once its writer has paused for quiet. Files already present
// are ignored.
func WaitForFile(ctx context.Context, dir string, match func(name string) bool, quiet time.Duration) (string, error) {
	watcher, watcherErr := fsnotify.NewWatcher()
	if watcherErr != nil {
		return "", watcherErr
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			slog.Error("WaitForFile: failed to close watcher", "error", err)
		}
	}()

	if addErr := watcher.Add(dir); addErr != nil {
		return "", addErr
	}

	poll := max(quiet/4, 5*time.Millisecond)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	pending := map[string]*pendingFile{}
	slog.Debug("WaitForFile: starting to watch directory", "directory", dir, "quiet", quiet)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return "", fmt.Errorf("watcher closed")
			}
			slog.Debug("WaitForFile: received event", "event", event.Op, "name", event.Name)
			base := filepath.Base(event.Name)
			if match != nil && !match(base) {
				continue
			}
			switch {
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				delete(pending, event.Name)
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				pending[event.Name] = &pendingFile{size: fileSize(event.Name), lastSeen: time.Now()}
			}
		case now := <-ticker.C:
			for name, file := range pending {
				if now.Sub(file.lastSeen) < quiet {
					continue
				}
				size := fileSize(name)
				if size < 0 {
					delete(pending, name)
					continue
				}
				if size == file.size {
					return name, nil
				}
				file.size = size
				file.lastSeen = now
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return "", fmt.Errorf("watcher error channel closed")
			}
			slog.Warn("WaitForFile: watcher error", "error", watchErr)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// fileSize is -1 for anything but an existing regular file.
func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return -1
	}
	return info.Size()
}
