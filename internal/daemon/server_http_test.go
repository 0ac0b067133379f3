package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offlinecache/internal/cache"
	"offlinecache/internal/clients"
	"offlinecache/internal/controller"
	"offlinecache/internal/notify"
	"offlinecache/internal/web"
)

type frontFixture struct {
	origin  *url.URL
	front   *FrontServer
	reg     *controller.Registration
	clients *clients.Registry
	network *web.Switch
}

func newFrontFixture(t *testing.T) *frontFixture {
	t.Helper()
	origin, err := url.Parse("http://localhost:4000")
	require.NoError(t, err)

	network := web.NewSwitch(web.FetcherFunc(func(ctx context.Context, req *web.Request) (*web.Response, error) {
		return &web.Response{
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": {"text/plain"}},
			Body:   []byte("net:" + req.URL.Path),
			Type:   web.TypeBasic,
			URL:    req.URL.String(),
		}, nil
	}))
	cl := clients.NewRegistry(time.Minute)
	reg := controller.NewRegistration(cache.NewMemory(), network, cl, notify.NewCenter())
	return &frontFixture{
		origin:  origin,
		front:   NewFrontServer(origin, reg, cl, network),
		reg:     reg,
		clients: cl,
		network: network,
	}
}

func (f *frontFixture) serve(path, mode string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	if mode != "" {
		r.Header.Set("Sec-Fetch-Mode", mode)
	}
	for _, c := range cookies {
		r.AddCookie(c)
	}
	w := httptest.NewRecorder()
	f.front.ServeHTTP(w, r)
	return w
}

func clientCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == ClientCookie {
			return c
		}
	}
	return nil
}

func TestFrontServerPassthroughWithoutController(t *testing.T) {
	f := newFrontFixture(t)

	w := f.serve("/about/", "navigate")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "net:/about/", w.Body.String())
	require.NotNil(t, clientCookie(t, w))

	client := f.clients.List()
	require.Len(t, client, 1)
	assert.Equal(t, "http://localhost:4000/about/", client[0].URL)
	assert.Empty(t, client[0].Controller)
}

func TestFrontServerClientCookie(t *testing.T) {
	f := newFrontFixture(t)

	w := f.serve("/main.css", "no-cors")
	assert.Nil(t, clientCookie(t, w), "subresources do not open clients")
	assert.Equal(t, 0, f.clients.Len())

	cookie := clientCookie(t, f.serve("/", "navigate"))
	require.NotNil(t, cookie)

	w = f.serve("/posts/", "navigate", cookie)
	assert.Nil(t, clientCookie(t, w), "known client keeps its cookie")
	list := f.clients.List()
	require.Len(t, list, 1)
	assert.Equal(t, "http://localhost:4000/posts/", list[0].URL)

	stale := &http.Cookie{Name: ClientCookie, Value: "gone"}
	assert.NotNil(t, clientCookie(t, f.serve("/", "navigate", stale)))
	assert.Equal(t, 2, f.clients.Len())
}

func TestFrontServerControlledByActive(t *testing.T) {
	f := newFrontFixture(t)
	cfg := controller.DefaultConfig(f.origin)
	cfg.Precache = []string{"/", "/offline.html"}

	ctx := context.Background()
	c, err := f.reg.Update(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, c, f.reg.Active())

	f.serve("/", "navigate")
	list := f.clients.List()
	require.Len(t, list, 1)
	assert.Equal(t, c.ID(), list[0].Controller)
	assert.Equal(t, cfg.Generation, list[0].Generation)

	f.network.SetOffline(true)
	w := f.serve("/never-seen/", "navigate")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "net:/offline.html", w.Body.String())

	w = f.serve("/image.png", "no-cors")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestFrontServerNetworkErrorWithoutController(t *testing.T) {
	f := newFrontFixture(t)
	f.network.SetOffline(true)

	w := f.serve("/", "navigate")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestFrontServerStartShutdown(t *testing.T) {
	f := newFrontFixture(t)
	assert.Empty(t, f.front.Addr())

	require.NoError(t, f.front.Start("127.0.0.1:0"))
	addr := f.front.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/hello")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.front.Shutdown(ctx))

	_, err = http.Get("http://" + addr + "/hello")
	assert.Error(t, err)
}
