package downloader_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/bustime/downloader"
)

func countingServer(t *testing.T, body string) (*httptest.Server, *int32) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestHTTPGet(t *testing.T) {
	server, _ := countingServer(t, "0123456789")
	headers := map[string]string{"x-api-key": "secret"}

	body, err := downloader.HTTPGet(context.Background(), server.URL, headers, downloader.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(body))

	body, err = downloader.HTTPGet(context.Background(), server.URL, headers, downloader.GetOptions{MaxSize: 4})
	require.NoError(t, err)
	assert.Equal(t, "0123", string(body))

	_, err = downloader.HTTPGet(context.Background(), server.URL+"/missing", headers, downloader.GetOptions{})
	var statusErr *downloader.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestMemoryDownloaderCache(t *testing.T) {
	server, hits := countingServer(t, "hello")
	headers := map[string]string{"x-api-key": "secret"}

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	d := downloader.NewMemoryDownloader()
	d.TimeNow = func() time.Time { return now }

	opts := downloader.GetOptions{Cache: true, CacheTTL: time.Minute}

	for i := 0; i < 3; i++ {
		body, err := d.Get(context.Background(), server.URL, headers, opts)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(body))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))

	// Expired
	now = now.Add(2 * time.Minute)
	_, err := d.Get(context.Background(), server.URL, headers, opts)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))

	// No caching requested
	_, err = d.Get(context.Background(), server.URL, headers, downloader.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))
}

func TestMemoryDownloaderRateLimited(t *testing.T) {
	server, hits := countingServer(t, "hello")
	headers := map[string]string{"x-api-key": "secret"}

	// One token, refilled far too slowly for a second request
	d := downloader.NewRateLimitedDownloader(0.001, 1)

	_, err := d.Get(context.Background(), server.URL, headers, downloader.GetOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = d.Get(ctx, server.URL, headers, downloader.GetOptions{})
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestFilesystemCache(t *testing.T) {
	server, hits := countingServer(t, "persisted")
	headers := map[string]string{"x-api-key": "secret"}
	path := filepath.Join(t.TempDir(), "cache.json")
	opts := downloader.GetOptions{Cache: true, CacheTTL: time.Hour}

	fs, err := downloader.NewFilesystem(path)
	require.NoError(t, err)
	body, err := fs.Get(context.Background(), server.URL, headers, opts)
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(body))

	// A fresh instance reads the cache from disk
	fs, err = downloader.NewFilesystem(path)
	require.NoError(t, err)
	body, err = fs.Get(context.Background(), server.URL, headers, opts)
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(body))
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestFilesystemCacheExpiry(t *testing.T) {
	server, hits := countingServer(t, "fresh")
	headers := map[string]string{"x-api-key": "secret"}
	path := filepath.Join(t.TempDir(), "cache.json")
	opts := downloader.GetOptions{Cache: true, CacheTTL: time.Minute}

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	fs, err := downloader.NewFilesystem(path)
	require.NoError(t, err)
	fs.TimeNow = func() time.Time { return now }

	_, err = fs.Get(context.Background(), server.URL, headers, opts)
	require.NoError(t, err)
	_, err = fs.Get(context.Background(), server.URL, headers, opts)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))

	now = now.Add(2 * time.Minute)
	_, err = fs.Get(context.Background(), server.URL, headers, opts)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))

	// Uncached requests always go upstream
	_, err = fs.Get(context.Background(), server.URL, headers, downloader.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))

	// Upstream errors are passed through
	_, err = fs.Get(context.Background(), server.URL+"/missing", headers, opts)
	var statusErr *downloader.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}
