package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"offlinecache/internal/cache"
	"offlinecache/internal/clients"
	"offlinecache/internal/common"
	"offlinecache/internal/notify"
	"offlinecache/internal/web"
)

const testOrigin = "http://localhost:8080"

// fakeNetwork serves canned responses and can be switched offline or made
// to fail for single URLs.
type fakeNetwork struct {
	mu      sync.Mutex
	origin  *url.URL
	pages   map[string]*web.Response
	failing map[string]bool
	offline bool
	calls   map[string]int
}

func newFakeNetwork(t *testing.T) *fakeNetwork {
	t.Helper()
	origin, err := url.Parse(testOrigin)
	require.NoError(t, err)
	n := &fakeNetwork{
		origin:  origin,
		pages:   make(map[string]*web.Response),
		failing: make(map[string]bool),
		calls:   make(map[string]int),
	}
	for _, p := range DefaultPrecache() {
		n.set(p, http.StatusOK, "v1 "+p)
	}
	return n
}

func (n *fakeNetwork) abs(raw string) string {
	u, err := n.origin.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u.String()
}

// set registers a response. Same-origin URLs are basic, others cors.
func (n *fakeNetwork) set(raw string, status int, body string) {
	u := n.abs(raw)
	typ := web.TypeBasic
	if parsed, _ := url.Parse(u); !common.SameOrigin(parsed, n.origin) {
		typ = web.TypeCORS
	}
	n.setResponse(raw, &web.Response{
		Status:     status,
		StatusText: http.StatusText(status),
		Header:     http.Header{"Content-Type": {"text/html"}},
		Body:       []byte(body),
		Type:       typ,
		URL:        u,
	})
}

func (n *fakeNetwork) setResponse(raw string, resp *web.Response) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pages[n.abs(raw)] = resp
}

func (n *fakeNetwork) fail(raw string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failing[n.abs(raw)] = true
}

func (n *fakeNetwork) setOffline(offline bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = offline
}

func (n *fakeNetwork) count(raw string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[n.abs(raw)]
}

func (n *fakeNetwork) Fetch(ctx context.Context, req *web.Request) (*web.Response, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	u := req.URL.String()
	n.calls[u]++
	if n.offline || n.failing[u] {
		return nil, fmt.Errorf("%s: %w", u, common.ErrNetworkFailed)
	}
	if resp, ok := n.pages[u]; ok {
		return resp.Clone(), nil
	}
	return &web.Response{Status: http.StatusNotFound, StatusText: "Not Found", Header: http.Header{}, Type: web.TypeBasic, URL: u}, nil
}

// failingStorage wraps a storage whose stores reject single puts.
type failingStorage struct {
	*cache.Memory
}

func (s failingStorage) Open(ctx context.Context, name string) (web.CacheStore, error) {
	store, err := s.Memory.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return failingStore{store}, nil
}

type failingStore struct {
	web.CacheStore
}

func (failingStore) Put(context.Context, *web.Request, *web.Response) error {
	return errors.New("disk full")
}

type harness struct {
	net     *fakeNetwork
	storage *cache.Memory
	clients *clients.Registry
	notes   *notify.Center
	origin  *url.URL
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	n := newFakeNetwork(t)
	return &harness{
		net:     n,
		storage: cache.NewMemory(),
		clients: clients.NewRegistry(0),
		notes:   notify.NewCenter(),
		origin:  n.origin,
	}
}

func (h *harness) config(generation string) Config {
	cfg := DefaultConfig(h.origin)
	cfg.Generation = generation
	return cfg
}

func (h *harness) controller(t *testing.T, cfg Config) *Controller {
	t.Helper()
	c, err := New(cfg, h.storage, h.net, h.clients, h.notes)
	require.NoError(t, err)
	return c
}

func (h *harness) registration() *Registration {
	return NewRegistration(h.storage, h.net, h.clients, h.notes)
}

func (h *harness) request(t *testing.T, raw string, mode web.Mode) *web.Request {
	t.Helper()
	req, err := web.NewRequest(h.origin, raw, mode)
	require.NoError(t, err)
	return req
}

func (h *harness) storeKeys(t *testing.T, generation string) []string {
	t.Helper()
	ctx := context.Background()
	ok, err := h.storage.Has(ctx, generation)
	require.NoError(t, err)
	if !ok {
		return nil
	}
	store, err := h.storage.Open(ctx, generation)
	require.NoError(t, err)
	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	return keys
}

func (h *harness) cached(t *testing.T, generation, raw string) *web.Response {
	t.Helper()
	ctx := context.Background()
	store, err := h.storage.Open(ctx, generation)
	require.NoError(t, err)
	resp, err := store.Match(ctx, h.request(t, raw, web.ModeSameOrigin))
	require.NoError(t, err)
	return resp
}

// gatedStorage blocks Open of one generation, once armed, until release
// is called.
type gatedStorage struct {
	*cache.Memory
	mu      sync.Mutex
	name    string
	entered chan struct{}
	gate    chan struct{}
}

func newGatedStorage(m *cache.Memory) *gatedStorage {
	return &gatedStorage{Memory: m, entered: make(chan struct{}), gate: make(chan struct{})}
}

func (s *gatedStorage) arm(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

func (s *gatedStorage) release() {
	close(s.gate)
}

func (s *gatedStorage) Open(ctx context.Context, name string) (web.CacheStore, error) {
	s.mu.Lock()
	hold := s.name != "" && s.name == name
	if hold {
		s.name = ""
	}
	s.mu.Unlock()
	if hold {
		close(s.entered)
		<-s.gate
	}
	return s.Memory.Open(ctx, name)
}
