// Package picker defines how new images enter the store: picked from a
// library or captured by a camera. Cropping and compression are up to the
// provider; the store copies whatever it is handed.
package picker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/q-controller/imagestore/src/pkg/utils"
)

type Source int

const (
	SourceLibrary Source = iota
	SourceCamera
)

func (s Source) String() string {
	if s == SourceCamera {
		return "camera"
	}
	return "library"
}

type Request struct {
	Source        Source
	AllowsEditing bool
	Aspect        [2]int
	Quality       float64
}

// DefaultRequest mirrors the settings of the mobile picker: editing on, 4:3
// crop, JPEG quality 0.75.
func DefaultRequest(source Source) Request {
	return Request{
		Source:        source,
		AllowsEditing: true,
		Aspect:        [2]int{4, 3},
		Quality:       0.75,
	}
}

// Result carries either Cancelled or the URI to hand to the store.
type Result struct {
	Cancelled bool
	URI       string
}

type Picker interface {
	Pick(ctx context.Context, req Request) (Result, error)
}

// DefaultQuiet is how long a capture must stay unchanged before it is
// handed out.
const DefaultQuiet = time.Second

// DirPicker picks the newest file of Library, or waits for a capture to land
// in Inbox. Captures are expected to be renamed into Inbox once complete; a
// capture written in place is handed out after it has been idle for Quiet.
type DirPicker struct {
	Library string
	Inbox   string
	Timeout time.Duration
	Quiet   time.Duration
}

func (p *DirPicker) Pick(ctx context.Context, req Request) (Result, error) {
	if req.Quality < 0 || req.Quality > 1 {
		return Result{}, fmt.Errorf("quality %.2f is outside [0, 1]", req.Quality)
	}

	switch req.Source {
	case SourceLibrary:
		return p.newest()
	case SourceCamera:
		return p.capture(ctx)
	default:
		return Result{}, fmt.Errorf("unknown source %d", req.Source)
	}
}

func (p *DirPicker) newest() (Result, error) {
	if p.Library == "" {
		return Result{}, fmt.Errorf("library directory is not configured")
	}

	entries, readErr := os.ReadDir(p.Library)
	if readErr != nil {
		return Result{}, fmt.Errorf("failed to read library: %w", readErr)
	}

	var newestPath string
	var newestTime time.Time
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !candidate(entry.Name()) {
			continue
		}
		info, infoErr := entry.Info()
		if infoErr != nil {
			continue
		}
		if newestPath == "" || info.ModTime().After(newestTime) {
			newestPath = filepath.Join(p.Library, entry.Name())
			newestTime = info.ModTime()
		}
	}

	if newestPath == "" {
		return Result{Cancelled: true}, nil
	}
	return Result{URI: utils.FileURI(newestPath)}, nil
}

func (p *DirPicker) capture(ctx context.Context) (Result, error) {
	if p.Inbox == "" {
		return Result{}, fmt.Errorf("camera inbox is not configured")
	}
	if err := os.MkdirAll(p.Inbox, 0755); err != nil {
		return Result{}, fmt.Errorf("failed to create camera inbox: %w", err)
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	quiet := p.Quiet
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	path, waitErr := utils.WaitForFile(ctx, p.Inbox, candidate, quiet)
	if waitErr != nil {
		if errors.Is(waitErr, context.DeadlineExceeded) || errors.Is(waitErr, context.Canceled) {
			return Result{Cancelled: true}, nil
		}
		return Result{}, waitErr
	}
	return Result{URI: utils.FileURI(path)}, nil
}

func candidate(name string) bool {
	return !strings.HasPrefix(name, ".") && !strings.HasSuffix(name, utils.TempSuffix)
}
