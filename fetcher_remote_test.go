package lrthrome

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemoteFetcherIterateCIDR(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("10.0.0.0/8\nnot-a-cidr\n172.16.0.0/12\n"))
	}))
	defer srv.Close()

	f := NewRemoteFetcher("test", []string{srv.URL}, "")
	require.True(t, f.HasUpdate())

	cidrs, err := f.IterateCIDR(context.Background())
	require.NoError(t, err)
	require.Len(t, cidrs, 2)
}

func TestRemoteFetcherFallsBackToDiskCache(t *testing.T) {
	dir := t.TempDir()

	var fail bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("192.0.2.0/24\n"))
	}))
	defer srv.Close()

	f := NewRemoteFetcher("test", []string{srv.URL}, dir)
	cidrs, err := f.IterateCIDR(context.Background())
	require.NoError(t, err)
	require.Len(t, cidrs, 1)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	fail = true
	cidrs, err = f.IterateCIDR(context.Background())
	require.NoError(t, err)
	require.Len(t, cidrs, 1)
}

func TestRemoteFetcherErrorsWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewRemoteFetcher("test", []string{srv.URL}, "")
	_, err := f.IterateCIDR(context.Background())
	require.Error(t, err)
	require.Equal(t, KindHTTPFetch, KindOf(err))
}
