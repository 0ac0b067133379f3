package controller

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"offlinecache/internal/common"
	"offlinecache/internal/web"
)

// Registration owns the controller versions of one site: at most one
// active controller serving fetches and at most one waiting to replace
// it.
type Registration struct {
	storage  web.CacheStorage
	fetcher  web.Fetcher
	clients  Clients
	notifier Notifier

	promoteMu sync.Mutex // serializes promotion and activation
	mu        sync.Mutex
	active    *Controller
	waiting   *Controller
}

// NewRegistration creates an empty registration.
func NewRegistration(storage web.CacheStorage, fetcher web.Fetcher, cl Clients, notifier Notifier) *Registration {
	return &Registration{
		storage:  storage,
		fetcher:  fetcher,
		clients:  cl,
		notifier: notifier,
	}
}

// Update installs a new controller built from cfg and promotes it when
// allowed. When installation fails the current active controller keeps
// serving and the error is returned.
func (r *Registration) Update(ctx context.Context, cfg Config) (*Controller, error) {
	c, err := New(cfg, r.storage, r.fetcher, r.clients, r.notifier)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.onSkip = r.TryActivate
	c.mu.Unlock()

	if _, err := c.Dispatch(ctx, Event{Kind: EventInstall}); err != nil {
		return nil, err
	}

	r.mu.Lock()
	prev := r.waiting
	r.waiting = c
	r.mu.Unlock()
	if prev != nil {
		prev.markRedundant()
	}

	if err := r.TryActivate(ctx); err != nil {
		return c, err
	}
	return c, nil
}

// TryActivate promotes the waiting controller when there is no active
// controller, when it asked to skip waiting, or when no client is still
// controlled by the active one.
func (r *Registration) TryActivate(ctx context.Context) error {
	r.promoteMu.Lock()
	defer r.promoteMu.Unlock()

	r.mu.Lock()
	w, old := r.waiting, r.active
	if w == nil {
		r.mu.Unlock()
		return nil
	}
	promote := old == nil || w.SkipWaitingRequested() || r.clients.ControlledBy(old.ID()) == 0
	if !promote {
		r.mu.Unlock()
		log.Debugf("[Registration] %s waiting: active %s still controls clients", w.Generation(), old.Generation())
		return nil
	}
	r.active = w
	r.waiting = nil
	r.mu.Unlock()

	// Retiring old waits out its in-flight writes before eviction.
	if old != nil {
		old.markRedundant()
	}
	if _, err := w.Dispatch(ctx, Event{Kind: EventActivate}); err != nil {
		return fmt.Errorf("activate %s: %w", w.Generation(), err)
	}
	return nil
}

// PostMessage delivers a control message to the waiting controller, or
// to the active one when nothing is waiting.
func (r *Registration) PostMessage(ctx context.Context, msg Message) error {
	r.mu.Lock()
	target := r.waiting
	if target == nil {
		target = r.active
	}
	r.mu.Unlock()
	if target == nil {
		return fmt.Errorf("no controller: %w", common.ErrNotFound)
	}
	_, err := target.Dispatch(ctx, Event{Kind: EventMessage, Message: &msg})
	return err
}

// Active returns the controller serving fetches, or nil.
func (r *Registration) Active() *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Waiting returns the installed controller awaiting activation, or nil.
func (r *Registration) Waiting() *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting
}

// Wait drains the pending cache writes of the active and waiting
// controllers.
func (r *Registration) Wait(ctx context.Context) error {
	r.mu.Lock()
	ctrls := []*Controller{r.active, r.waiting}
	r.mu.Unlock()
	for _, c := range ctrls {
		if c == nil {
			continue
		}
		if err := c.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
