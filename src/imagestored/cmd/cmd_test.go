package cmd

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/q-controller/imagestore/src/pkg/config"
	"github.com/q-controller/imagestore/src/pkg/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// Flag values outlive a single Execute.
	require.NoError(t, rootCmd.PersistentFlags().Set("config", ""))
	require.NoError(t, pickCmd.Flags().Set("camera", "false"))

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func setupRoot(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	t.Setenv(config.EnvRoot, root)
	t.Setenv(config.EnvEndpoint, "")
	t.Setenv(config.EnvAPIKey, "")
	return root
}

func TestAddListRemove(t *testing.T) {
	root := setupRoot(t)
	src := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(src, []byte("jpeg"), 0644))

	out, err := run(t, "add", src)
	require.NoError(t, err)
	uri := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(uri, "file://"))
	name := filepath.Base(uri)
	assert.FileExists(t, filepath.Join(root, "images", name))

	out, err = run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, name)

	_, err = run(t, "remove", name)
	require.NoError(t, err)

	out, err = run(t, "list")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = run(t, "remove", name)
	assert.Error(t, err)
}

func TestUploadNotConfigured(t *testing.T) {
	setupRoot(t)
	src := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(src, []byte("jpeg"), 0644))

	out, err := run(t, "add", src)
	require.NoError(t, err)

	_, err = run(t, "upload", filepath.Base(strings.TrimSpace(out)))
	assert.ErrorIs(t, err, images.ErrUploadNotConfigured)
}

func TestUploadAndHistory(t *testing.T) {
	root := setupRoot(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	t.Cleanup(server.Close)
	t.Setenv(config.EnvEndpoint, server.URL)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("settle_delay: 10ms\n"), 0644))

	src := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(src, []byte("jpeg"), 0644))
	out, err := run(t, "-c", configPath, "add", src)
	require.NoError(t, err)
	name := filepath.Base(strings.TrimSpace(out))

	out, err = run(t, "-c", configPath, "upload", name)
	require.NoError(t, err)
	assert.Contains(t, out, "status: 201")
	assert.Contains(t, out, `{"id":1}`)

	out, err = run(t, "-c", configPath, "history", name)
	require.NoError(t, err)
	assert.Contains(t, out, "status_code: 201")
	assert.Contains(t, out, name)

	assert.FileExists(t, filepath.Join(root, "images", name))
}

func TestPickFromLibrary(t *testing.T) {
	root := setupRoot(t)
	library := filepath.Join(root, "library")
	require.NoError(t, os.MkdirAll(library, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(library, "IMG_0001.jpg"), []byte("jpeg"), 0644))

	out, err := run(t, "pick")
	require.NoError(t, err)
	uri := strings.TrimSpace(out)
	assert.FileExists(t, filepath.Join(root, "images", filepath.Base(uri)))
}

func TestPickFromEmptyLibrary(t *testing.T) {
	root := setupRoot(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "library"), 0755))

	_, err := run(t, "pick")
	assert.Error(t, err)
}
