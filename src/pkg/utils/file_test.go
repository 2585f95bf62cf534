package utils

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))

	require.NoError(t, CopyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	_, err = os.Stat(dst + TempSuffix)
	assert.True(t, os.IsNotExist(err))
}

func TestCopyFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "dst")

	assert.Error(t, CopyFile(filepath.Join(dir, "missing"), dst))
	_, err := os.Stat(dst)
	assert.True(t, os.IsNotExist(err))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("read failed")
}

func TestWriteFileCleansUpOnError(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "dst")

	assert.Error(t, WriteFile(dst, failingReader{}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteFileOverwrites(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "dst")
	require.NoError(t, WriteFile(dst, strings.NewReader("first")))
	require.NoError(t, WriteFile(dst, strings.NewReader("second")))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestWaitForFileCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := WaitForFile(ctx, t.TempDir(), nil, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForFileMissingDirectory(t *testing.T) {
	_, err := WaitForFile(context.Background(), filepath.Join(t.TempDir(), "missing"), nil, 10*time.Millisecond)
	assert.Error(t, err)
}

func TestWaitForFileWaitsForWriter(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	type waitResult struct {
		path string
		err  error
	}
	done := make(chan waitResult, 1)
	go func() {
		path, err := WaitForFile(ctx, dir, func(name string) bool { return !strings.HasSuffix(name, TempSuffix) }, 500*time.Millisecond)
		done <- waitResult{path, err}
	}()
	time.Sleep(200 * time.Millisecond)

	target := filepath.Join(dir, "capture.jpg")
	f, err := os.Create(target)
	require.NoError(t, err)
	_, err = f.WriteString("first-half-")
	require.NoError(t, err)
	time.Sleep(200 * time.Millisecond)
	_, err = f.WriteString("second-half")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, target, res.path)
	data, err := os.ReadFile(res.path)
	require.NoError(t, err)
	assert.Equal(t, "first-half-second-half", string(data))
}

func TestWaitForFileSkipsRemovedFile(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan string, 1)
	go func() {
		path, _ := WaitForFile(ctx, dir, nil, 300*time.Millisecond)
		done <- path
	}()
	time.Sleep(200 * time.Millisecond)

	gone := filepath.Join(dir, "gone.jpg")
	require.NoError(t, os.WriteFile(gone, []byte("x"), 0644))
	require.NoError(t, os.Remove(gone))
	kept := filepath.Join(dir, "kept.jpg")
	require.NoError(t, os.WriteFile(kept, []byte("y"), 0644))

	assert.Equal(t, kept, <-done)
}
