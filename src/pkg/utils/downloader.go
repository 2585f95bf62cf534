package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/sync/singleflight"
)

var downloadGroup singleflight.Group

func fetch(ctx context.Context, url string) (data []byte, retErr error) {
	slog.Info("Starting file download", "url", url)

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if reqErr != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", reqErr)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			retErr = errors.Join(retErr, closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d %s", resp.StatusCode, resp.Status)
	}

	size, err := strconv.Atoi(resp.Header.Get("Content-Length"))
	if err != nil {
		size = -1 // Unknown size
	}

	var buf bytes.Buffer
	progress := &progressWriter{total: size}
	if _, copyErr := io.Copy(&buf, io.TeeReader(resp.Body, progress)); copyErr != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, copyErr)
	}

	slog.Info("File downloaded successfully", "url", url, "bytes", buf.Len())
	return buf.Bytes(), nil
}

// DownloadFile fetches url into filepath. Concurrent calls for the same url
// share one transfer under the first caller's context; every caller writes
// its own copy.
func DownloadFile(ctx context.Context, url, filepath string) error {
	result, err, shared := downloadGroup.Do(url, func() (interface{}, error) {
		return fetch(ctx, url)
	})
	if err != nil {
		return err
	}
	if shared {
		slog.Debug("Reusing in-flight download", "url", url)
	}

	if writeErr := WriteFile(filepath, bytes.NewReader(result.([]byte))); writeErr != nil {
		return fmt.Errorf("failed to write file %s: %w", filepath, writeErr)
	}
	return nil
}

type progressWriter struct {
	total   int
	written int
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.written += n
	if pw.total > 0 {
		slog.Debug("Download progress", "progress", fmt.Sprintf("%.2f%%", float64(pw.written)/float64(pw.total)*100))
	} else {
		slog.Debug("Download progress", "bytes", pw.written)
	}
	return n, nil
}
