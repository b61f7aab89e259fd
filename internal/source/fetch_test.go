package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

const sheet = "Course,Course Title,Instructor,Meeting Pattern,Meeting Time,Room Number(s)\n"

func TestFetchCachesAndHonorsETag(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Disposition", `attachment; filename="spring.csv"`)
		_, _ = w.Write([]byte(sheet))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "term", URL: srv.URL + "/export?token=secret"}

	first, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	require.False(t, first.FromCache)
	require.Equal(t, sheet, string(first.Body))
	require.Equal(t, "spring.csv", first.Filename)

	second, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	require.True(t, second.FromCache)
	require.Equal(t, first.Body, second.Body)
	require.Equal(t, "spring.csv", second.Filename)
	require.EqualValues(t, 2, hits.Load())
}

func TestFetchFallsBackToCacheOnServerError(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(sheet))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "term", URL: srv.URL + "/schedule.xlsx"}

	res, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, "schedule.xlsx", res.Filename)

	fail.Store(true)
	res, err = f.Fetch(context.Background(), src)
	require.NoError(t, err)
	require.True(t, res.FromCache)
	require.Equal(t, sheet, string(res.Body))
	require.Equal(t, "schedule.xlsx", res.Filename)
}

func TestFetchErrorsWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	_, err := f.Fetch(context.Background(), Source{URL: srv.URL + "/missing.csv"})
	require.ErrorContains(t, err, "404")

	_, err = f.Fetch(context.Background(), Source{})
	require.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	require.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/a/b.csv?token=x"))
	require.Equal(t, "(redacted)", redactURL("not a url"))
}
