package schema

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_RemoteAndLocal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write([]byte(testYAML))
	}))
	defer srv.Close()

	c, err := Open(context.Background(), srv.URL+"/devices.yaml")
	require.NoError(t, err)
	assert.Len(t, c.Devices(), 2)

	path := filepath.Join(t.TempDir(), "devices.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testYAML), 0o600))
	c, err = Open(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, c.Devices(), 2)
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(testYAML))
	}))
	defer srv.Close()

	c, err := Fetch(context.Background(), resty.New(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, c.Devices(), 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetch_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Fetch(context.Background(), resty.New(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestFetch_InvalidDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("devices: []\n"))
	}))
	defer srv.Close()

	_, err := Fetch(context.Background(), resty.New(), srv.URL)
	assert.Error(t, err)
}
