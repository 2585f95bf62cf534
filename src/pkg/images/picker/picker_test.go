package picker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRequest(t *testing.T) {
	req := DefaultRequest(SourceCamera)
	assert.True(t, req.AllowsEditing)
	assert.Equal(t, [2]int{4, 3}, req.Aspect)
	assert.InDelta(t, 0.75, req.Quality, 1e-9)
	assert.Equal(t, "camera", req.Source.String())
}

func TestLibraryPicksNewest(t *testing.T) {
	library := t.TempDir()
	old := filepath.Join(library, "old.png")
	recent := filepath.Join(library, "recent.png")
	require.NoError(t, os.WriteFile(old, []byte("o"), 0644))
	require.NoError(t, os.WriteFile(recent, []byte("r"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(library, ".hidden"), []byte("h"), 0644))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	p := &DirPicker{Library: library}
	result, err := p.Pick(context.Background(), DefaultRequest(SourceLibrary))
	require.NoError(t, err)
	assert.False(t, result.Cancelled)
	assert.True(t, strings.HasSuffix(result.URI, "/recent.png"))
}

func TestLibraryEmptyIsCancelled(t *testing.T) {
	p := &DirPicker{Library: t.TempDir()}
	result, err := p.Pick(context.Background(), DefaultRequest(SourceLibrary))
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
}

func TestInvalidQuality(t *testing.T) {
	p := &DirPicker{Library: t.TempDir()}
	req := DefaultRequest(SourceLibrary)
	req.Quality = 1.5
	_, err := p.Pick(context.Background(), req)
	assert.Error(t, err)
}

func TestCameraWaitsForCapture(t *testing.T) {
	inbox := filepath.Join(t.TempDir(), "inbox")
	staging := t.TempDir()
	p := &DirPicker{Inbox: inbox, Timeout: 10 * time.Second, Quiet: 100 * time.Millisecond}

	done := make(chan Result, 1)
	go func() {
		result, err := p.Pick(context.Background(), DefaultRequest(SourceCamera))
		assert.NoError(t, err)
		done <- result
	}()

	// The watcher starts asynchronously; keep dropping captures until one is
	// seen.
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for i := 0; ; i++ {
		select {
		case result := <-done:
			assert.False(t, result.Cancelled)
			assert.Contains(t, result.URI, "/inbox/capture-")
			return
		case <-ticker.C:
			if _, err := os.Stat(inbox); err != nil {
				continue
			}
			name := fmt.Sprintf("capture-%d.jpg", i)
			staged := filepath.Join(staging, name)
			require.NoError(t, os.WriteFile(staged, []byte("c"), 0644))
			require.NoError(t, os.Rename(staged, filepath.Join(inbox, name)))
		}
	}
}

func TestCameraTimeoutIsCancelled(t *testing.T) {
	p := &DirPicker{Inbox: t.TempDir(), Timeout: 50 * time.Millisecond}
	result, err := p.Pick(context.Background(), DefaultRequest(SourceCamera))
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
}
