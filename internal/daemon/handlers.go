package daemon

import (
	"context"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"offlinecache/internal/controller"
	"offlinecache/internal/notify"
	"offlinecache/internal/storage"
)

// requestTimeout bounds a single IPC request. Update precaches over the
// network and gets the longest budget.
const (
	requestTimeout = 30 * time.Second
	updateTimeout  = 2 * time.Minute
)

// handleRequest processes an IPC request
func (d *Daemon) handleRequest(req *Request) *Response {
	timeout := requestTimeout
	if req.Type == RequestUpdate {
		timeout = updateTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	switch req.Type {
	case RequestStatus:
		return d.handleStatus()
	case RequestStop:
		return d.handleStop()
	case RequestMessage:
		return d.handleMessage(ctx, req)
	case RequestPush:
		return d.handlePush(ctx, req)
	case RequestNotifications:
		return &Response{Success: true, Notifications: d.notes.List()}
	case RequestNotificationClick:
		return d.handleNotificationClick(ctx, req)
	case RequestGenerations:
		return d.handleGenerations(ctx)
	case RequestSync:
		return d.handleSync(ctx, req)
	case RequestNetwork:
		return d.handleNetwork(req)
	case RequestUpdate:
		return d.handleUpdate(ctx)
	case RequestReloadConfig:
		return d.handleReloadConfig()
	default:
		return errorResponse(fmt.Errorf("unknown request type %q", req.Type))
	}
}

func errorResponse(err error) *Response {
	return &Response{Success: false, Error: err.Error()}
}

func controllerStatus(c *controller.Controller) *ControllerStatus {
	if c == nil {
		return nil
	}
	return &ControllerStatus{
		ID:          c.ID(),
		Generation:  c.Generation(),
		State:       c.State(),
		SkipWaiting: c.SkipWaitingRequested(),
		Stats:       c.Stats(),
	}
}

// activeController returns the serving controller or an error response.
func (d *Daemon) activeController() (*controller.Controller, *Response) {
	c := d.reg.Active()
	if c == nil {
		return nil, errorResponse(fmt.Errorf("no active controller"))
	}
	return c, nil
}

func (d *Daemon) handleStatus() *Response {
	return &Response{
		Success:    true,
		PID:        os.Getpid(),
		InstanceID: d.instanceID,
		Listen:     d.front.Addr(),
		Origin:     d.origin.String(),
		Storage:    d.settings.Storage,
		Offline:    d.network.Offline(),
		Active:     controllerStatus(d.reg.Active()),
		Waiting:    controllerStatus(d.reg.Waiting()),
		Clients:    d.clients.List(),
	}
}

func (d *Daemon) handleStop() *Response {
	d.requestStop()
	return &Response{Success: true, Message: "Daemon stopping"}
}

func (d *Daemon) handleMessage(ctx context.Context, req *Request) *Response {
	if req.MessageType == "" {
		return errorResponse(fmt.Errorf("message type is required"))
	}
	if err := d.reg.PostMessage(ctx, controller.Message{Type: req.MessageType}); err != nil {
		return errorResponse(err)
	}
	log.Infof("handleMessage: delivered %s", req.MessageType)
	return &Response{Success: true, Message: fmt.Sprintf("Delivered %s", req.MessageType)}
}

func (d *Daemon) handlePush(ctx context.Context, req *Request) *Response {
	c, errResp := d.activeController()
	if errResp != nil {
		return errResp
	}
	n, err := c.HandlePush(ctx, req.Payload)
	if err != nil {
		return errorResponse(err)
	}
	return &Response{Success: true, Message: "Notification shown", Notifications: []notify.Notification{n}}
}

func (d *Daemon) handleNotificationClick(ctx context.Context, req *Request) *Response {
	n, ok := d.notes.Get(req.NotificationID)
	if !ok {
		return errorResponse(fmt.Errorf("notification %q not found", req.NotificationID))
	}
	c, errResp := d.activeController()
	if errResp != nil {
		return errResp
	}
	if _, err := c.Dispatch(ctx, controller.Event{Kind: controller.EventNotificationClick, Notification: n}); err != nil {
		return errorResponse(err)
	}
	return &Response{Success: true, Message: fmt.Sprintf("Opened %s", d.frontURL(d.origin.JoinPath("/").String()))}
}

func (d *Daemon) handleGenerations(ctx context.Context) *Response {
	current := ""
	if c := d.reg.Active(); c != nil {
		current = c.Generation()
	}
	stats, err := d.generationStats(ctx)
	if err != nil {
		return errorResponse(err)
	}
	return &Response{Success: true, Generations: GenerationInfos(stats, current)}
}

// generationStats reads per-generation statistics. SQLite storage
// reports them in one query; other storages are walked.
func (d *Daemon) generationStats(ctx context.Context) ([]storage.StoreStat, error) {
	if d.cacheFile != nil {
		return d.cacheFile.Stats(ctx)
	}
	names, err := d.storage.Keys(ctx)
	if err != nil {
		return nil, err
	}
	stats := make([]storage.StoreStat, 0, len(names))
	for _, name := range names {
		store, err := d.storage.Open(ctx, name)
		if err != nil {
			return nil, err
		}
		keys, err := store.Keys(ctx)
		if err != nil {
			return nil, err
		}
		stats = append(stats, storage.StoreStat{Name: name, Entries: len(keys)})
	}
	return stats, nil
}

func (d *Daemon) handleSync(ctx context.Context, req *Request) *Response {
	c, errResp := d.activeController()
	if errResp != nil {
		return errResp
	}
	tag := req.Tag
	if tag == "" {
		tag = controller.SyncPosts
	}
	before := c.Stats().SyncFailures
	if _, err := c.Dispatch(ctx, controller.Event{Kind: controller.EventSync, Tag: tag}); err != nil {
		return errorResponse(err)
	}
	failed := c.Stats().SyncFailures - before
	return &Response{Success: true, Message: fmt.Sprintf("Sync %s finished (%d failures)", tag, failed)}
}

func (d *Daemon) handleNetwork(req *Request) *Response {
	d.network.SetOffline(req.Offline)
	state := "online"
	if req.Offline {
		state = "offline"
	}
	log.Infof("handleNetwork: network %s", state)
	return &Response{Success: true, Offline: req.Offline, Message: "Network " + state}
}

// handleUpdate reloads the settings file and installs a new controller
// version from it. Front server and storage settings need a restart.
func (d *Daemon) handleUpdate(ctx context.Context) *Response {
	settings, err := LoadGlobalSettings()
	if err != nil {
		return errorResponse(fmt.Errorf("failed to load settings: %w", err))
	}
	cfg, err := settings.ControllerConfig()
	if err != nil {
		return errorResponse(err)
	}
	if cfg.Origin.String() != d.origin.String() {
		return errorResponse(fmt.Errorf("origin changed to %s: restart the daemon", cfg.Origin))
	}

	c, err := d.reg.Update(ctx, cfg)
	if err != nil && c == nil {
		return errorResponse(err)
	}
	resp := &Response{
		Success: err == nil,
		Active:  controllerStatus(d.reg.Active()),
		Waiting: controllerStatus(d.reg.Waiting()),
		Message: fmt.Sprintf("Installed %s (%s)", c.Generation(), c.State()),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func (d *Daemon) handleReloadConfig() *Response {
	settings, err := LoadGlobalSettings()
	if err != nil {
		return errorResponse(fmt.Errorf("failed to load settings: %w", err))
	}
	if err := d.configureLogging(settings.LogLevel); err != nil {
		return errorResponse(err)
	}
	return &Response{Success: true, Message: fmt.Sprintf("Config reloaded, log level: %s", settings.LogLevel)}
}
