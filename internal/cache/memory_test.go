package cache

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offlinecache/internal/web"
)

func testRequest(t *testing.T, path string) *web.Request {
	t.Helper()
	base, _ := url.Parse("https://blog.example.com")
	req, err := web.NewRequest(base, path, web.ModeSameOrigin)
	require.NoError(t, err)
	return req
}

func testResponse(body string) *web.Response {
	return &web.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"text/plain"}},
		Body:   []byte(body),
		Type:   web.TypeBasic,
	}
}

func TestMemory_OpenKeysDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Open(ctx, "ai-blog-v1")
	require.NoError(t, err)
	_, err = m.Open(ctx, "ai-blog-v2")
	require.NoError(t, err)
	_, err = m.Open(ctx, "ai-blog-v1")
	require.NoError(t, err)

	keys, err := m.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ai-blog-v1", "ai-blog-v2"}, keys)

	has, err := m.Has(ctx, "ai-blog-v2")
	require.NoError(t, err)
	assert.True(t, has)

	deleted, err := m.Delete(ctx, "ai-blog-v1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = m.Delete(ctx, "ai-blog-v1")
	require.NoError(t, err)
	assert.False(t, deleted)

	assert.Equal(t, 1, m.Size())
}

func TestMemoryStore_PutMatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, err := NewMemory().Open(ctx, "v1")
	require.NoError(t, err)

	req := testRequest(t, "/assets/css/main.css")

	miss, err := store.Match(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, miss)

	resp := testResponse("body{}")
	require.NoError(t, store.Put(ctx, req, resp))

	// Mutating the caller's response must not reach the stored snapshot.
	resp.Body[0] = 'B'

	hit, err := store.Match(ctx, testRequest(t, "/assets/css/main.css"))
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "body{}", string(hit.Body))

	require.NoError(t, store.Put(ctx, req, testResponse("newer")))
	hit, _ = store.Match(ctx, req)
	assert.Equal(t, "newer", string(hit.Body))
}

func TestMemoryStore_PutAllIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, _ := NewMemory().Open(ctx, "v1")

	entries := []web.Entry{
		{Request: testRequest(t, "/"), Response: testResponse("home")},
		{Request: testRequest(t, "/offline.html"), Response: testResponse("offline")},
	}
	require.NoError(t, store.PutAll(ctx, entries))
	require.NoError(t, store.PutAll(ctx, entries))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"GET https://blog.example.com/",
		"GET https://blog.example.com/offline.html",
	}, keys)
}

func TestMemoryStore_ConcurrentPuts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, _ := NewMemory().Open(ctx, "v1")
	req := testRequest(t, "/")

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Put(ctx, req, testResponse(fmt.Sprintf("v%d", i)))
		}(i)
	}
	wg.Wait()

	keys, _ := store.Keys(ctx)
	assert.Len(t, keys, 1)
	hit, _ := store.Match(ctx, req)
	require.NotNil(t, hit)
	assert.Contains(t, string(hit.Body), "v")
}
