package daemon

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"offlinecache/internal/cache"
	"offlinecache/internal/clients"
	"offlinecache/internal/controller"
	"offlinecache/internal/notify"
	"offlinecache/internal/storage"
	"offlinecache/internal/util"
	"offlinecache/internal/web"
)

func init() {
	// Discard logging until the daemon enables it from settings.
	log.SetOutput(io.Discard)
}

// maxLogSize is the size above which the log file is halved on start.
const maxLogSize = 50 * 1024 * 1024

// Daemon hosts the cache controller: it owns the storage, the
// registration, the front server and the IPC server.
type Daemon struct {
	ipcServer *Server
	logFile   *os.File
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	lock      *flock.Flock

	// LogLevel overrides the settings log level when non-empty:
	// trace, debug, info, warn, off.
	LogLevel string

	// Listen overrides the settings front server address when non-empty.
	Listen string

	instanceID string
	settings   *GlobalSettings
	origin     *url.URL
	storage    web.CacheStorage
	cacheFile  *storage.CacheFile // nil in memory mode
	network    *web.Switch
	clients    *clients.Registry
	notes      *notify.Center
	reg        *controller.Registration
	front      *FrontServer
}

// New creates a new daemon instance
func New() *Daemon {
	return &Daemon{
		stopCh:     make(chan struct{}),
		instanceID: uuid.NewString(),
	}
}

// Run starts the daemon and blocks until stopped
func (d *Daemon) Run() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	settings, err := LoadGlobalSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	storage.SetConfigBusyTimeouts(settings.DaemonBusyTimeout, settings.CLIBusyTimeout)

	d.lock = flock.New(LockPath())
	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another daemon instance is already running")
	}
	defer d.lock.Unlock()

	level := settings.LogLevel
	if d.LogLevel != "" {
		level = d.LogLevel
	}
	if err := d.configureLogging(level); err != nil {
		return err
	}
	defer d.closeLog()

	if err := d.writePidFile(); err != nil {
		return err
	}
	defer d.removePidFile()

	log.Infof("Daemon started (PID %d, instance %s)", os.Getpid(), d.instanceID)

	if err := d.Start(context.Background(), settings); err != nil {
		return err
	}

	log.Infof("Starting IPC server at %s", SocketPath())
	d.ipcServer = NewServer(d.handleRequest)
	if err := d.ipcServer.Start(); err != nil {
		log.Errorf("IPC server failed to start: %v", err)
		d.Shutdown()
		return err
	}
	defer d.ipcServer.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infof("Received signal %v, shutting down...", sig)
	case <-d.stopCh:
		log.Infof("Stop requested, shutting down...")
	}

	d.Shutdown()
	log.Infof("Daemon stopped")
	return nil
}

// Start builds the serving stack from settings: storage, fetcher chain,
// registration with an installed controller, and the front server.
// A failed install is logged; the front server then passes requests
// straight to the network until an update succeeds.
func (d *Daemon) Start(ctx context.Context, settings *GlobalSettings) error {
	origin, err := settings.OriginURL()
	if err != nil {
		return err
	}
	cfg, err := settings.ControllerConfig()
	if err != nil {
		return err
	}
	d.settings = settings
	d.origin = origin

	if err := d.openStorage(settings.Storage); err != nil {
		return err
	}

	var network web.Fetcher = web.NewHTTPFetcher(origin, nil)
	if settings.SiteDir != "" {
		network = web.NewSiteFetcher(osfs.New(settings.SiteDir), origin, network)
		log.Infof("Serving site from %s", settings.SiteDir)
	}
	d.network = web.NewSwitch(network)

	var opts []clients.Option
	if settings.OpenCommand != "" {
		command := settings.OpenCommand
		opts = append(opts, clients.WithOpener(func(rawURL string) error {
			return util.OpenCommand(command, d.frontURL(rawURL))
		}))
	}
	d.clients = clients.NewRegistry(settings.EffectiveClientTTL(), opts...)
	d.notes = notify.NewCenter()
	d.reg = controller.NewRegistration(d.storage, d.network, d.clients, d.notes)

	if _, err := d.reg.Update(ctx, cfg); err != nil {
		log.Warnf("Initial install of %s failed: %v", cfg.Generation, err)
	}

	listen := settings.Listen
	if d.Listen != "" {
		listen = d.Listen
	}
	d.front = NewFrontServer(origin, d.reg, d.clients, d.network)
	if err := d.front.Start(listen); err != nil {
		d.closeStorage()
		return fmt.Errorf("failed to start front server on %s: %w", listen, err)
	}
	log.Infof("Front server listening on %s for %s", d.front.Addr(), origin)

	d.wg.Add(1)
	go d.pruneClients()
	return nil
}

// Shutdown stops the front server, drains pending cache writes and
// closes storage. Safe to call more than once.
func (d *Daemon) Shutdown() {
	d.requestStop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if d.front != nil {
		if err := d.front.Shutdown(ctx); err != nil {
			log.Warnf("Front server shutdown: %v", err)
		}
	}
	if d.reg != nil {
		if err := d.reg.Wait(ctx); err != nil {
			log.Warnf("Pending cache writes not drained: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		log.Warnf("Timeout waiting for background goroutines")
	}

	d.closeStorage()
}

func (d *Daemon) requestStop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

func (d *Daemon) openStorage(mode string) error {
	switch strings.ToLower(mode) {
	case StorageMemory:
		d.storage = cache.NewMemory()
		return nil
	case StorageSQLite, "":
		cf, err := storage.OpenOrCreateWithContext(CacheFilePath(), storage.DBContextDaemon)
		if err != nil {
			return fmt.Errorf("failed to open cache storage: %w", err)
		}
		d.cacheFile = cf
		d.storage = cf
		return nil
	default:
		return fmt.Errorf("unknown storage mode %q", mode)
	}
}

func (d *Daemon) closeStorage() {
	if d.cacheFile != nil {
		if err := d.cacheFile.Close(); err != nil {
			log.Warnf("Closing cache storage: %v", err)
		}
	}
}

// pruneClients drops idle clients and retries promotion of a waiting
// controller whose predecessor lost its last client.
func (d *Daemon) pruneClients() {
	defer d.wg.Done()

	interval := d.settings.EffectiveClientTTL() / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case now := <-ticker.C:
			if d.clients.Prune(now) == 0 {
				continue
			}
			if err := d.reg.TryActivate(context.Background()); err != nil {
				log.Warnf("Activation after prune failed: %v", err)
			}
		}
	}
}

// frontURL rewrites an origin URL to the same path on the front server.
func (d *Daemon) frontURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || d.front == nil || d.front.Addr() == "" {
		return rawURL
	}
	if u.Scheme != d.origin.Scheme || u.Host != d.origin.Host {
		return rawURL
	}
	u.Scheme = "http"
	u.Host = d.front.Addr()
	return u.String()
}

// configureLogging points logrus at the log file with the given level,
// or discards output for "", none and off.
func (d *Daemon) configureLogging(level string) error {
	level = strings.ToLower(level)
	if level == "" || level == "none" || level == "off" {
		log.SetOutput(io.Discard)
		d.closeLog()
		return nil
	}

	if d.logFile == nil {
		if err := truncateLogFile(LogPath(), maxLogSize); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to truncate log file: %v\n", err)
		}
		logFile, err := os.OpenFile(LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		d.logFile = logFile
		log.SetOutput(logFile)
	}

	switch level {
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	default:
		log.SetLevel(log.DebugLevel)
	}
	return nil
}

func (d *Daemon) closeLog() {
	if d.logFile != nil {
		log.SetOutput(io.Discard)
		d.logFile.Close()
		d.logFile = nil
	}
}

func (d *Daemon) writePidFile() error {
	data := []byte(strconv.Itoa(os.Getpid()))
	return os.WriteFile(PidPath(), data, 0600)
}

func (d *Daemon) removePidFile() {
	os.Remove(PidPath())
}

// GetPID reads the daemon PID from file
func GetPID() (int, error) {
	data, err := os.ReadFile(PidPath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}

// truncateLogFile halves the log file when it exceeds maxSize bytes,
// keeping the most recent lines.
func truncateLogFile(logPath string, maxSize int64) error {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() <= maxSize {
		return nil
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		return err
	}

	startIdx := len(data) - len(data)/2
	for i := startIdx; i < len(data); i++ {
		if data[i] == '\n' {
			startIdx = i + 1
			break
		}
	}

	kept := data[startIdx:]
	header := []byte(fmt.Sprintf("--- Log truncated at %s (kept last %d bytes) ---\n",
		time.Now().Format(time.RFC3339), len(kept)))
	return os.WriteFile(logPath, append(header, kept...), 0600)
}
