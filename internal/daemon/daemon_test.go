package daemon

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offlinecache/internal/controller"
)

var testSite = map[string]string{
	"index.html":             "<h1>home</h1>",
	"assets/css/main.css":    "body{}",
	"assets/js/main.js":      "console.log(1)",
	"manifest.json":          `{"name":"blog"}`,
	"offline.html":           "<h1>offline</h1>",
	"posts/hello/index.html": "<h1>hello</h1>",
}

type testDaemon struct {
	*Daemon
	settings *GlobalSettings
	client   *http.Client
	base     string
}

func writeSite(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

// startTestDaemon runs the serving stack in-process on a loopback port
// with memory storage and a site directory.
func startTestDaemon(t *testing.T, mutate func(s *GlobalSettings)) *testDaemon {
	t.Helper()
	t.Setenv("OFFLINECACHE_CONFIG_DIR", t.TempDir())

	site := t.TempDir()
	writeSite(t, site, testSite)

	settings, err := LoadGlobalSettings()
	require.NoError(t, err)
	settings.SiteDir = site
	settings.Storage = StorageMemory
	settings.Listen = "127.0.0.1:0"
	settings.Precache = []string{"/", "/assets/css/main.css", "/assets/js/main.js", "/manifest.json", "/offline.html"}
	if mutate != nil {
		mutate(settings)
	}
	require.NoError(t, SaveGlobalSettings(settings))

	d := New()
	require.NoError(t, d.Start(context.Background(), settings))
	t.Cleanup(d.Shutdown)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testDaemon{
		Daemon:   d,
		settings: settings,
		client:   &http.Client{Jar: jar, Timeout: 5 * time.Second},
		base:     "http://" + d.front.Addr(),
	}
}

func (td *testDaemon) get(t *testing.T, path, mode string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, td.base+path, nil)
	require.NoError(t, err)
	req.Header.Set("Sec-Fetch-Mode", mode)
	resp, err := td.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func (td *testDaemon) request(t *testing.T, req *Request) *Response {
	t.Helper()
	resp := td.handleRequest(req)
	require.NotNil(t, resp)
	return resp
}

func (td *testDaemon) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, td.reg.Wait(ctx))
}

func TestDaemonServesThroughController(t *testing.T) {
	td := startTestDaemon(t, nil)

	status, body := td.get(t, "/", "navigate")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, testSite["index.html"], body)

	resp := td.request(t, &Request{Type: RequestStatus})
	require.True(t, resp.Success)
	require.NotNil(t, resp.Active)
	assert.Equal(t, "ai-blog-v1", resp.Active.Generation)
	assert.Equal(t, controller.StateActive, resp.Active.State)
	assert.Nil(t, resp.Waiting)
	assert.Equal(t, int64(1), resp.Active.Stats.Network)
	require.Len(t, resp.Clients, 1)
	assert.Equal(t, resp.Active.ID, resp.Clients[0].Controller)

	// Subresources reuse the client cookie.
	status, _ = td.get(t, "/assets/css/main.css", "no-cors")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, td.request(t, &Request{Type: RequestStatus}).Clients, 1)
}

func TestDaemonOffline(t *testing.T) {
	td := startTestDaemon(t, nil)

	status, _ := td.get(t, "/posts/hello/", "navigate")
	require.Equal(t, http.StatusOK, status)
	td.drain(t)

	resp := td.request(t, &Request{Type: RequestNetwork, Offline: true})
	require.True(t, resp.Success)
	assert.True(t, td.request(t, &Request{Type: RequestStatus}).Offline)

	status, body := td.get(t, "/posts/hello/", "navigate")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, testSite["posts/hello/index.html"], body, "visited page served from cache")

	status, body = td.get(t, "/posts/unvisited/", "navigate")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, testSite["offline.html"], body)

	status, _ = td.get(t, "/assets/images/logo.png", "no-cors")
	assert.Equal(t, http.StatusBadGateway, status)

	status, body = td.get(t, "/assets/css/main.css", "no-cors")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, testSite["assets/css/main.css"], body)

	td.request(t, &Request{Type: RequestNetwork, Offline: false})
	status, _ = td.get(t, "/assets/images/logo.png", "no-cors")
	assert.Equal(t, http.StatusNotFound, status, "online misses come from the network untouched")
}

func TestDaemonPushAndClick(t *testing.T) {
	td := startTestDaemon(t, nil)

	resp := td.request(t, &Request{Type: RequestPush})
	require.True(t, resp.Success, resp.Error)
	require.Len(t, resp.Notifications, 1)
	n := resp.Notifications[0]
	assert.Equal(t, "AI Tech Blog", n.Title)
	assert.Equal(t, "New update available", n.Body)

	text := "New post"
	resp = td.request(t, &Request{Type: RequestPush, Payload: &text})
	require.True(t, resp.Success)
	list := td.request(t, &Request{Type: RequestNotifications}).Notifications
	require.Len(t, list, 1)
	assert.Equal(t, "New post", list[0].Body)

	resp = td.request(t, &Request{Type: RequestNotificationClick, NotificationID: list[0].ID})
	require.True(t, resp.Success, resp.Error)
	assert.Empty(t, td.request(t, &Request{Type: RequestNotifications}).Notifications)

	clients := td.request(t, &Request{Type: RequestStatus}).Clients
	require.Len(t, clients, 1)
	assert.Equal(t, td.origin.String()+"/", clients[0].URL)
	assert.True(t, clients[0].Focused)

	resp = td.request(t, &Request{Type: RequestNotificationClick, NotificationID: "missing"})
	assert.False(t, resp.Success)
}

func TestDaemonUpdateSkipWaitingOnInstall(t *testing.T) {
	td := startTestDaemon(t, nil)
	td.get(t, "/", "navigate")
	td.drain(t)

	td.settings.Generation = "ai-blog-v2"
	require.NoError(t, SaveGlobalSettings(td.settings))

	resp := td.request(t, &Request{Type: RequestUpdate})
	require.True(t, resp.Success, resp.Error)
	require.NotNil(t, resp.Active)
	assert.Equal(t, "ai-blog-v2", resp.Active.Generation)

	gens := td.request(t, &Request{Type: RequestGenerations}).Generations
	require.Len(t, gens, 1)
	assert.Equal(t, "ai-blog-v2", gens[0].Name)
	assert.True(t, gens[0].Current)
	assert.Equal(t, 5, gens[0].Entries)
}

func TestDaemonUpdateWaitsForSkipWaitingMessage(t *testing.T) {
	off := false
	td := startTestDaemon(t, func(s *GlobalSettings) { s.SkipWaitingOnInstall = &off })
	td.get(t, "/", "navigate")
	td.drain(t)

	td.settings.Generation = "ai-blog-v2"
	require.NoError(t, SaveGlobalSettings(td.settings))

	resp := td.request(t, &Request{Type: RequestUpdate})
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "ai-blog-v1", resp.Active.Generation)
	require.NotNil(t, resp.Waiting)
	assert.Equal(t, "ai-blog-v2", resp.Waiting.Generation)
	assert.Len(t, td.request(t, &Request{Type: RequestGenerations}).Generations, 2)

	resp = td.request(t, &Request{Type: RequestMessage, MessageType: controller.MessageSkipWaiting})
	require.True(t, resp.Success, resp.Error)

	status := td.request(t, &Request{Type: RequestStatus})
	assert.Equal(t, "ai-blog-v2", status.Active.Generation)
	assert.Nil(t, status.Waiting)
	gens := td.request(t, &Request{Type: RequestGenerations}).Generations
	require.Len(t, gens, 1)
	assert.Equal(t, "ai-blog-v2", gens[0].Name)

	assert.False(t, td.request(t, &Request{Type: RequestMessage}).Success, "message type is required")
}

func TestDaemonFailedInstallPassesThrough(t *testing.T) {
	td := startTestDaemon(t, func(s *GlobalSettings) {
		s.Precache = append(s.Precache, "/assets/missing.css")
	})

	status := td.request(t, &Request{Type: RequestStatus})
	assert.Nil(t, status.Active)

	code, body := td.get(t, "/", "navigate")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, testSite["index.html"], body)

	assert.False(t, td.request(t, &Request{Type: RequestPush}).Success)
	assert.False(t, td.request(t, &Request{Type: RequestSync}).Success)
	assert.Empty(t, td.request(t, &Request{Type: RequestGenerations}).Generations)
}

func TestDaemonSync(t *testing.T) {
	td := startTestDaemon(t, nil)
	writeSite(t, td.settings.SiteDir, map[string]string{"index.html": "<h1>new home</h1>"})

	resp := td.request(t, &Request{Type: RequestSync})
	require.True(t, resp.Success, resp.Error)
	assert.Contains(t, resp.Message, controller.SyncPosts)

	td.request(t, &Request{Type: RequestNetwork, Offline: true})
	_, body := td.get(t, "/", "navigate")
	assert.Equal(t, "<h1>new home</h1>", body)
}

func TestDaemonUnknownRequest(t *testing.T) {
	td := startTestDaemon(t, nil)
	resp := td.request(t, &Request{Type: "mount"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unknown request type")
}

func TestDaemonFrontURL(t *testing.T) {
	td := startTestDaemon(t, nil)
	assert.Equal(t, td.base+"/posts/", td.frontURL(td.origin.String()+"/posts/"))
	assert.Equal(t, "https://fonts.googleapis.com/css2", td.frontURL("https://fonts.googleapis.com/css2"))
}

func TestDaemonSQLiteStorage(t *testing.T) {
	td := startTestDaemon(t, func(s *GlobalSettings) { s.Storage = StorageSQLite })
	require.NotNil(t, td.cacheFile)

	gens := td.request(t, &Request{Type: RequestGenerations}).Generations
	require.Len(t, gens, 1)
	assert.Equal(t, 5, gens[0].Entries)
	assert.Positive(t, gens[0].Bytes)

	_, err := os.Stat(CacheFilePath())
	assert.NoError(t, err)
}
