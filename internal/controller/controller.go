// Copyright 2026 OfflineCache Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package controller implements the offline cache controller: the
// network-first request mediator with a versioned cache, its
// install/activate lifecycle and its control, push and sync events.
package controller

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	ignore "github.com/sabhiram/go-gitignore"
	log "github.com/sirupsen/logrus"

	"offlinecache/internal/clients"
	"offlinecache/internal/notify"
	"offlinecache/internal/web"
)

// Clients is the window registry the controller claims and opens.
type Clients interface {
	Claim(controllerID, generation string) int
	ControlledBy(controllerID string) int
	OpenWindow(ctx context.Context, rawURL string) (clients.Client, error)
}

// Notifier displays and dismisses notifications.
type Notifier interface {
	Show(ctx context.Context, n notify.Notification) (notify.Notification, error)
	Close(id string) error
}

// Stats counts how fetch and background events were resolved.
type Stats struct {
	Network            int64 `json:"network"`
	CacheHits          int64 `json:"cache_hits"`
	OfflineFallbacks   int64 `json:"offline_fallbacks"`
	Unresolved         int64 `json:"unresolved"`
	CacheWrites        int64 `json:"cache_writes"`
	CacheWriteFailures int64 `json:"cache_write_failures"`
	SyncFailures       int64 `json:"sync_failures"`
}

type counters struct {
	network            atomic.Int64
	cacheHits          atomic.Int64
	offlineFallbacks   atomic.Int64
	unresolved         atomic.Int64
	cacheWrites        atomic.Int64
	cacheWriteFailures atomic.Int64
	syncFailures       atomic.Int64
}

// Controller is one installed version of the offline cache controller.
type Controller struct {
	id       string
	cfg      Config
	storage  web.CacheStorage
	fetcher  web.Fetcher
	clients  Clients
	notifier Notifier
	noCache  *ignore.GitIgnore
	handlers map[EventKind]handler

	mu          sync.Mutex
	state       State
	skipWaiting bool
	onSkip      func(ctx context.Context) error

	// writeMu is held shared by cache writes and exclusively by
	// markRedundant, so no write lands after retirement.
	writeMu sync.RWMutex
	pending sync.WaitGroup
	stats   counters
}

// New creates a controller in the installing state. cfg is validated
// and copied.
func New(cfg Config, storage web.CacheStorage, fetcher web.Fetcher, cl Clients, notifier Notifier) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		id:       uuid.NewString(),
		cfg:      cfg,
		storage:  storage,
		fetcher:  fetcher,
		clients:  cl,
		notifier: notifier,
		state:    StateInstalling,
	}
	if len(cfg.NoCache) > 0 {
		c.noCache = ignore.CompileIgnoreLines(cfg.NoCache...)
	}
	c.handlers = c.dispatchTable()
	return c, nil
}

// ID uniquely identifies this controller instance.
func (c *Controller) ID() string {
	return c.id
}

// Generation returns the cache generation this controller owns.
func (c *Controller) Generation() string {
	return c.cfg.Generation
}

// Config returns the controller configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		log.Infof("[Controller] %s (%s): %s -> %s", c.cfg.Generation, shortID(c.id), prev, s)
	}
}

// SkipWaitingRequested reports whether the controller asked to bypass
// the waiting period.
func (c *Controller) SkipWaitingRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skipWaiting
}

// Stats returns a snapshot of the resolution counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Network:            c.stats.network.Load(),
		CacheHits:          c.stats.cacheHits.Load(),
		OfflineFallbacks:   c.stats.offlineFallbacks.Load(),
		Unresolved:         c.stats.unresolved.Load(),
		CacheWrites:        c.stats.cacheWrites.Load(),
		CacheWriteFailures: c.stats.cacheWriteFailures.Load(),
		SyncFailures:       c.stats.syncFailures.Load(),
	}
}

// Wait blocks until every detached cache write has settled or ctx ends.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// track runs fn detached from the triggering event, counted by Wait.
func (c *Controller) track(ctx context.Context, fn func(ctx context.Context)) {
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		fn(context.WithoutCancel(ctx))
	}()
}

// excluded reports whether a same-origin URL matches a no_cache pattern.
func (c *Controller) excluded(req *web.Request) bool {
	if c.noCache == nil || req.URL == nil {
		return false
	}
	return c.noCache.MatchesPath(strings.TrimPrefix(req.URL.Path, "/"))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
