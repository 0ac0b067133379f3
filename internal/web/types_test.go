package web

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestRequestKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		raw    string
		want   string
	}{
		{"get", http.MethodGet, "https://blog.example.com/", "GET https://blog.example.com/"},
		{"empty method defaults to get", "", "https://blog.example.com/a", "GET https://blog.example.com/a"},
		{"lowercase method", "post", "https://blog.example.com/a", "POST https://blog.example.com/a"},
		{"fragment ignored", http.MethodGet, "https://blog.example.com/post#comments", "GET https://blog.example.com/post"},
		{"query kept", http.MethodGet, "https://blog.example.com/search?q=go", "GET https://blog.example.com/search?q=go"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, RequestKey(tt.method, mustURL(t, tt.raw)))
		})
	}
}

func TestNewRequest(t *testing.T) {
	t.Parallel()

	base := mustURL(t, "https://blog.example.com/")
	req, err := NewRequest(base, "/assets/css/main.css", ModeNoCORS)
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "https://blog.example.com/assets/css/main.css", req.URL.String())
	assert.False(t, req.IsNavigation())

	nav, err := NewRequest(base, "/", ModeNavigate)
	require.NoError(t, err)
	assert.True(t, nav.IsNavigation())
}

func TestRequestClone(t *testing.T) {
	t.Parallel()

	req, err := NewRequest(mustURL(t, "https://blog.example.com/"), "/a", ModeCORS)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/css")
	req.Body = []byte("x")

	c := req.Clone()
	c.URL.Path = "/b"
	c.Header.Set("Accept", "text/html")
	c.Body[0] = 'y'

	assert.Equal(t, "/a", req.URL.Path)
	assert.Equal(t, "text/css", req.Header.Get("Accept"))
	assert.Equal(t, []byte("x"), req.Body)
}

func TestResponseCacheable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		typ    ResponseType
		want   bool
	}{
		{"200 basic", http.StatusOK, TypeBasic, true},
		{"404 basic", http.StatusNotFound, TypeBasic, false},
		{"204 basic", http.StatusNoContent, TypeBasic, false},
		{"200 cors", http.StatusOK, TypeCORS, false},
		{"200 opaque", http.StatusOK, TypeOpaque, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := &Response{Status: tt.status, Type: tt.typ}
			assert.Equal(t, tt.want, resp.Cacheable())
		})
	}
}

func TestResponseClone(t *testing.T) {
	t.Parallel()

	resp := &Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"text/html"}},
		Body:   []byte("live"),
		Type:   TypeBasic,
	}
	c := resp.Clone()
	c.Body[0] = 'L'
	c.Header.Set("Content-Type", "text/plain")

	assert.Equal(t, "live", string(resp.Body))
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	assert.True(t, resp.OK())
}
