package common

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"root", "/", ""},
		{"double_root", "//", ""},
		{"simple", "/foo", "foo"},
		{"trailing_slash", "/foo/", "foo"},
		{"nested", "/assets/css/main.css", "assets/css/main.css"},
		{"dot_middle", "/foo/./bar", "foo/bar"},
		{"dotdot_middle", "/foo/../bar", "bar"},
		{"dotdot_escape", "/../../etc/passwd", "etc/passwd"},
		{"multiple_slashes", "/foo//bar//", "foo/bar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizePath(tt.input), "NormalizePath(%q)", tt.input)
		})
	}
}

func TestSitePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"/", "index.html"},
		{"", "index.html"},
		{"/posts/", "posts/index.html"},
		{"/offline.html", "offline.html"},
		{"/assets/js/main.js", "assets/js/main.js"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SitePath(tt.input), "SitePath(%q)", tt.input)
	}
}

func TestOrigin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
	}{
		{"https://Blog.Example.com/posts?x=1", "https://blog.example.com"},
		{"https://blog.example.com:443/", "https://blog.example.com"},
		{"http://localhost:80/", "http://localhost"},
		{"http://localhost:8080/a", "http://localhost:8080"},
	}

	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.want, Origin(u), "Origin(%q)", tt.raw)
	}
	assert.Equal(t, "", Origin(nil))
}

func TestSameOrigin(t *testing.T) {
	t.Parallel()

	site, _ := url.Parse("https://blog.example.com")
	same, _ := url.Parse("https://blog.example.com:443/assets/css/main.css")
	fonts, _ := url.Parse("https://fonts.googleapis.com/css2?family=Inter")
	plain, _ := url.Parse("http://blog.example.com/")

	assert.True(t, SameOrigin(site, same))
	assert.False(t, SameOrigin(site, fonts))
	assert.False(t, SameOrigin(site, plain), "scheme is part of the origin")
	assert.False(t, SameOrigin(site, nil))
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	base, _ := url.Parse("https://blog.example.com/")

	t.Run("relative against base", func(t *testing.T) {
		u, err := ResolveURL(base, "/assets/js/main.js")
		require.NoError(t, err)
		assert.Equal(t, "https://blog.example.com/assets/js/main.js", u.String())
	})

	t.Run("absolute stays absolute", func(t *testing.T) {
		u, err := ResolveURL(base, "https://fonts.googleapis.com/css2?family=Inter")
		require.NoError(t, err)
		assert.Equal(t, "fonts.googleapis.com", u.Host)
	})

	t.Run("relative without base fails", func(t *testing.T) {
		_, err := ResolveURL(nil, "/offline.html")
		assert.Error(t, err)
	})
}
