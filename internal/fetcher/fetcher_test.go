package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHTTPFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		Timeout:           5 * time.Second,
		MaxRetries:        3,
		RequestsPerSecond: 1000,
	})
}

func TestHTTPFetcher_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "mca-insights/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("CIN,CompanyName\n"))
	}))
	defer srv.Close()

	body, err := newTestHTTPFetcher().Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "CIN,CompanyName\n", string(data))
}

func TestHTTPFetcher_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newTestHTTPFetcher().Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close()
	assert.EqualValues(t, 3, calls.Load())
}

func TestHTTPFetcher_NotFoundIsFatal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestHTTPFetcher().Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load(), "4xx must not be retried")
}

func TestHTTPFetcher_DownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "nested", "maharashtra.csv")
	n, err := newTestHTTPFetcher().DownloadToFile(context.Background(), srv.URL, path)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestSplitFTPURL(t *testing.T) {
	host, path, err := splitFTPURL("ftp://bulk.mca.gov.in/monthly/gujarat.csv")
	require.NoError(t, err)
	assert.Equal(t, "bulk.mca.gov.in:21", host)
	assert.Equal(t, "/monthly/gujarat.csv", path)

	host, _, err = splitFTPURL("ftp://bulk.mca.gov.in:2121/x.csv")
	require.NoError(t, err)
	assert.Equal(t, "bulk.mca.gov.in:2121", host)

	_, _, err = splitFTPURL("https://example.com/x.csv")
	assert.Error(t, err)

	_, _, err = splitFTPURL("ftp://example.com")
	assert.Error(t, err)
}

func TestAuto_RejectsUnknownScheme(t *testing.T) {
	f := NewAuto(HTTPOptions{}, FTPOptions{})
	_, err := f.Download(context.Background(), "gopher://example.com/x")
	assert.Error(t, err)
}
