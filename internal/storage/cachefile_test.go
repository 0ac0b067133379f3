package storage

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offlinecache/internal/common"
	"offlinecache/internal/web"
)

// testCacheFile creates a temporary cache file for testing.
func testCacheFile(t *testing.T) (*CacheFile, func()) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.cache")

	cf, err := Create(path)
	require.NoError(t, err, "failed to create cache file")

	return cf, func() {
		cf.Close()
	}
}

func testEntry(t *testing.T, path, body string) web.Entry {
	t.Helper()
	base, err := url.Parse("http://localhost:8080")
	require.NoError(t, err)
	req, err := web.NewRequest(base, path, web.ModeSameOrigin)
	require.NoError(t, err)
	return web.Entry{
		Request: req,
		Response: &web.Response{
			Status:     200,
			StatusText: "OK",
			Header:     http.Header{"Content-Type": {"text/plain"}},
			Body:       []byte(body),
			Type:       web.TypeBasic,
			URL:        req.URL.String(),
		},
	}
}

func TestCreate(t *testing.T) {
	t.Parallel()

	t.Run("creates new file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "new.cache")

		cf, err := Create(path)
		require.NoError(t, err)
		defer cf.Close()

		_, err = os.Stat(path)
		assert.NoError(t, err, "cache file should exist")
		assert.Equal(t, path, cf.Path())

		fileType, err := cf.BunDB().GetSchemaInfo(context.Background(), "type")
		require.NoError(t, err)
		assert.Equal(t, FileType, fileType)
	})

	t.Run("fails when file already exists", func(t *testing.T) {
		t.Parallel()
		cf, cleanup := testCacheFile(t)
		defer cleanup()

		_, err := Create(cf.Path())
		assert.Error(t, err)
	})
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("reopens existing file", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		cf, _ := testCacheFile(t)
		store, err := cf.Open(ctx, "v1")
		require.NoError(t, err)
			e := testEntry(t, "/a", "a")
		require.NoError(t, store.Put(ctx, e.Request, e.Response))
		require.NoError(t, cf.Close())

		reopened, err := Open(cf.Path())
		require.NoError(t, err)
		defer reopened.Close()

		has, err := reopened.Has(ctx, "v1")
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("fails for missing file", func(t *testing.T) {
		t.Parallel()
		_, err := Open(filepath.Join(t.TempDir(), "missing.cache"))
		assert.Error(t, err)
	})

	t.Run("open or create", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "either.cache")
		cf, err := OpenOrCreate(path)
		require.NoError(t, err)
		require.NoError(t, cf.Close())

		cf, err = OpenOrCreate(path)
		require.NoError(t, err)
		assert.NoError(t, cf.Close())
	})
}

func TestStorageNames(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cf, cleanup := testCacheFile(t)
	defer cleanup()

	has, err := cf.Has(ctx, "ai-blog-v1")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = cf.Open(ctx, "ai-blog-v0")
	require.NoError(t, err)
	_, err = cf.Open(ctx, "ai-blog-v1")
	require.NoError(t, err)
	// Opening twice does not create a second store.
	_, err = cf.Open(ctx, "ai-blog-v1")
	require.NoError(t, err)

	names, err := cf.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ai-blog-v0", "ai-blog-v1"}, names)

	deleted, err := cf.Delete(ctx, "ai-blog-v0")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = cf.Delete(ctx, "ai-blog-v0")
	require.NoError(t, err)
	assert.False(t, deleted)

	names, err = cf.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ai-blog-v1"}, names)
}

func TestStoreMatchPut(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cf, cleanup := testCacheFile(t)
	defer cleanup()

	store, err := cf.Open(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", store.Name())

	miss := testEntry(t, "/missing", "")
	resp, err := store.Match(ctx, miss.Request)
	require.NoError(t, err)
	assert.Nil(t, resp)

	e := testEntry(t, "/page", "first")
	require.NoError(t, store.Put(ctx, e.Request, e.Response))

	resp, err = store.Match(ctx, e.Request)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "first", string(resp.Body))
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))

	// Put replaces the entry with the same key.
	e2 := testEntry(t, "/page", "second")
	require.NoError(t, store.Put(ctx, e2.Request, e2.Response))
	resp, err = store.Match(ctx, e.Request)
	require.NoError(t, err)
	assert.Equal(t, "second", string(resp.Body))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{e.Request.Key()}, keys)
}

func TestStorePutAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cf, cleanup := testCacheFile(t)
	defer cleanup()

	store, err := cf.Open(ctx, "v1")
	require.NoError(t, err)

	entries := []web.Entry{
		testEntry(t, "/", "home"),
		testEntry(t, "/assets/css/main.css", "css"),
		testEntry(t, "/offline.html", "offline"),
	}
	require.NoError(t, store.PutAll(ctx, entries))
	// Idempotent.
	require.NoError(t, store.PutAll(ctx, entries))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	stats, err := cf.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "v1", stats[0].Name)
	assert.Equal(t, 3, stats[0].Entries)
	assert.Equal(t, int64(len("home")+len("css")+len("offline")), stats[0].Bytes)
}

func TestStoreDeletedUnderneath(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cf, cleanup := testCacheFile(t)
	defer cleanup()

	store, err := cf.Open(ctx, "old")
	require.NoError(t, err)
	e := testEntry(t, "/x", "x")
	require.NoError(t, store.Put(ctx, e.Request, e.Response))

	_, err = cf.Delete(ctx, "old")
	require.NoError(t, err)

	err = store.Put(ctx, e.Request, e.Response)
	assert.ErrorIs(t, err, common.ErrNotFound)

	// Recreating the name starts empty.
	fresh, err := cf.Open(ctx, "old")
	require.NoError(t, err)
	keys, err := fresh.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestClosedCacheFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cf, _ := testCacheFile(t)
	store, err := cf.Open(ctx, "v1")
	require.NoError(t, err)

	require.NoError(t, cf.Close())
	require.NoError(t, cf.Close(), "second close is a no-op")

	_, err = cf.Open(ctx, "v1")
	assert.ErrorIs(t, err, common.ErrClosed)
	_, err = cf.Keys(ctx)
	assert.ErrorIs(t, err, common.ErrClosed)
	_, err = store.Match(ctx, testEntry(t, "/x", "").Request)
	assert.ErrorIs(t, err, common.ErrClosed)
}
