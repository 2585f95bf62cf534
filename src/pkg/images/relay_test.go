package images_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/q-controller/imagestore/src/pkg/images"
	"github.com/q-controller/imagestore/src/pkg/images/journal"
	"github.com/q-controller/imagestore/src/pkg/images/storage"
	"github.com/q-controller/imagestore/src/pkg/images/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSettle = 300 * time.Millisecond

type fixture struct {
	svc     images.ImageService
	store   *storage.LocalStore
	journal *journal.Journal
	client  *upload.Client
}

func newFixture(t *testing.T, endpoint string) *fixture {
	t.Helper()

	store := storage.NewLocalStore(filepath.Join(t.TempDir(), "images"))
	require.NoError(t, store.Initialize())

	j, err := journal.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	var client *upload.Client
	if endpoint != "" {
		client, err = upload.NewClient(endpoint, "key123", upload.WithSettleDelay(testSettle))
		require.NoError(t, err)
	}

	svc, err := images.CreateService(store, client, j)
	require.NoError(t, err)
	return &fixture{svc: svc, store: store, journal: j, client: client}
}

func (f *fixture) add(t *testing.T, content string) storage.ImageRecord {
	t.Helper()
	source := filepath.Join(t.TempDir(), "source.png")
	require.NoError(t, os.WriteFile(source, []byte(content), 0644))
	record, err := f.svc.Add(context.Background(), source)
	require.NoError(t, err)
	return record
}

func statusServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestUploadServerErrorKeepsLocalFile(t *testing.T) {
	server := statusServer(t, http.StatusInternalServerError, "nope")
	f := newFixture(t, server.URL)
	record := f.add(t, "original bytes")

	outcome, err := f.svc.Upload(context.Background(), record.URI)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, outcome.Result.StatusCode)
	assert.Equal(t, "nope", string(outcome.Result.Body))
	assert.True(t, f.svc.Status().Busy)

	path := filepath.Join(f.store.Dir(), record.DisplayName())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original bytes", string(data))

	assert.Eventually(t, func() bool { return !f.svc.Status().Busy }, 5*time.Second, 10*time.Millisecond)

	entries, err := f.svc.History(context.Background(), record.DisplayName())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, outcome.SessionID, entries[0].SessionID)
	assert.Equal(t, http.StatusInternalServerError, entries[0].StatusCode)
	assert.Empty(t, entries[0].Error)
}

func TestUploadSuccessKeepsLocalFile(t *testing.T) {
	server := statusServer(t, http.StatusOK, "ok")
	f := newFixture(t, server.URL)
	record := f.add(t, "bytes")

	outcome, err := f.svc.Upload(context.Background(), record.DisplayName())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, outcome.Result.StatusCode)

	records, err := f.svc.List(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []storage.ImageRecord{record}, records)
}

func TestUploadTransportFailureIsJournaled(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	f := newFixture(t, endpoint)
	record := f.add(t, "bytes")

	_, err := f.svc.Upload(context.Background(), record.DisplayName())
	require.ErrorIs(t, err, upload.ErrUploadFailed)
	assert.True(t, f.svc.Status().Busy)

	_, statErr := os.Stat(filepath.Join(f.store.Dir(), record.DisplayName()))
	assert.NoError(t, statErr)

	entries, err := f.journal.List(record.DisplayName())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].Error)

	assert.Eventually(t, func() bool { return !f.svc.Status().Busy }, 5*time.Second, 10*time.Millisecond)
}

func TestUploadNotConfigured(t *testing.T) {
	f := newFixture(t, "")
	record := f.add(t, "bytes")

	_, err := f.svc.Upload(context.Background(), record.DisplayName())
	require.ErrorIs(t, err, images.ErrUploadNotConfigured)
	assert.False(t, f.svc.Status().Busy)
}

func TestUploadUnknownImage(t *testing.T) {
	f := newFixture(t, statusServer(t, http.StatusOK, "").URL)

	_, err := f.svc.Upload(context.Background(), "missing.jpg")
	require.ErrorIs(t, err, storage.ErrNotFound)
	assert.False(t, f.svc.Status().Busy)
}

func TestRemoveRejectsForeignURI(t *testing.T) {
	f := newFixture(t, "")
	record := f.add(t, "bytes")

	foreign := filepath.Join(t.TempDir(), record.DisplayName())
	require.NoError(t, os.WriteFile(foreign, []byte("other"), 0644))

	err := f.svc.Remove(context.Background(), foreign)
	require.ErrorIs(t, err, storage.ErrNotFound)
	assert.Len(t, f.store.Items(), 1)

	require.NoError(t, f.svc.Remove(context.Background(), record.URI))
	assert.Empty(t, f.store.Items())

	err = f.svc.Remove(context.Background(), record.URI)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRemoveDropsHistory(t *testing.T) {
	f := newFixture(t, statusServer(t, http.StatusOK, "ok").URL)
	record := f.add(t, "bytes")

	_, err := f.svc.Upload(context.Background(), record.DisplayName())
	require.NoError(t, err)
	entries, err := f.svc.History(context.Background(), record.DisplayName())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, f.svc.Remove(context.Background(), record.DisplayName()))

	entries, err = f.svc.History(context.Background(), record.DisplayName())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListUsesCacheWithoutRefresh(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, os.WriteFile(filepath.Join(f.store.Dir(), "1.jpg"), []byte("x"), 0644))

	cached, err := f.svc.List(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, cached)

	fresh, err := f.svc.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "1.jpg", fresh[0].DisplayName())
}

func TestCreateServiceRequiresStore(t *testing.T) {
	_, err := images.CreateService(nil, nil, nil)
	assert.Error(t, err)
}
