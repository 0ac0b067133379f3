package controller

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"offlinecache/internal/common"
	"offlinecache/internal/util"
	"offlinecache/internal/web"
)

// precacheConcurrency bounds parallel manifest fetches.
const precacheConcurrency = 8

// Install precaches the manifest into the controller's generation.
// Every URL must yield an ok, non-opaque response before anything is
// written; the writes then land in one PutAll. On failure the
// controller is terminated and no store is left behind.
func (c *Controller) Install(ctx context.Context) error {
	switch st := c.State(); st {
	case StateInstalling, StateWaiting:
	default:
		return fmt.Errorf("install in state %s: %w", st, common.ErrInvalidState)
	}
	c.setState(StateInstalling)

	entries, err := c.fetchManifest(ctx)
	if err != nil {
		c.setState(StateTerminated)
		log.Errorf("[Controller] Install: %s: %v", c.cfg.Generation, err)
		return fmt.Errorf("%w: %w", common.ErrInstallationFailed, err)
	}

	if err := c.writeGeneration(ctx, entries); err != nil {
		c.setState(StateTerminated)
		log.Errorf("[Controller] Install: %s: %v", c.cfg.Generation, err)
		return fmt.Errorf("%w: %w", common.ErrInstallationFailed, err)
	}

	c.mu.Lock()
	if c.cfg.SkipWaitingOnInstall {
		c.skipWaiting = true
	}
	c.mu.Unlock()
	c.setState(StateWaiting)
	log.Infof("[Controller] Install: %s precached %d entries", c.cfg.Generation, len(entries))
	return nil
}

// manifestRequests resolves the manifest against the origin. Same-origin
// URLs use same-origin mode, the rest cors.
func (c *Controller) manifestRequests() ([]*web.Request, error) {
	reqs := make([]*web.Request, 0, len(c.cfg.Precache))
	for _, raw := range c.cfg.Precache {
		req, err := web.NewRequest(c.cfg.Origin, raw, web.ModeSameOrigin)
		if err != nil {
			return nil, fmt.Errorf("manifest entry %q: %w", raw, err)
		}
		if !common.SameOrigin(req.URL, c.cfg.Origin) {
			req.Mode = web.ModeCORS
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func (c *Controller) fetchManifest(ctx context.Context) ([]web.Entry, error) {
	reqs, err := c.manifestRequests()
	if err != nil {
		return nil, err
	}

	entries := make([]web.Entry, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(precacheConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			resp, err := util.RetryWithResult(gctx, func() (*web.Response, error) {
				return c.fetcher.Fetch(gctx, req)
			}, util.NetworkRetryOptions(gctx, c.cfg.FetchAttempts)...)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", req.URL, err)
			}
			if !resp.OK() || resp.Type == web.TypeOpaque {
				return fmt.Errorf("fetch %s: unusable response (status %d, type %s)", req.URL, resp.Status, resp.Type)
			}
			entries[i] = web.Entry{Request: req, Response: resp}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// writeGeneration stores entries in the generation store, removing the
// store again if this call created it and the write failed.
func (c *Controller) writeGeneration(ctx context.Context, entries []web.Entry) error {
	existed, err := c.storage.Has(ctx, c.cfg.Generation)
	if err != nil {
		return err
	}
	store, err := c.storage.Open(ctx, c.cfg.Generation)
	if err != nil {
		return err
	}
	if err := store.PutAll(ctx, entries); err != nil {
		if !existed {
			if _, derr := c.storage.Delete(context.WithoutCancel(ctx), c.cfg.Generation); derr != nil {
				log.Warnf("[Controller] Install: cleanup of %s failed: %v", c.cfg.Generation, derr)
			}
		}
		return err
	}
	return nil
}

// Activate deletes every cache generation other than the controller's
// own and claims all clients. The controller is active afterwards even
// when eviction failed; the error is returned.
func (c *Controller) Activate(ctx context.Context) error {
	switch st := c.State(); st {
	case StateWaiting, StateActive:
	default:
		return fmt.Errorf("activate in state %s: %w", st, common.ErrInvalidState)
	}

	evictErr := c.evictStale(ctx)
	claimed := c.clients.Claim(c.id, c.cfg.Generation)
	c.setState(StateActive)
	log.Infof("[Controller] Activate: %s claimed %d clients", c.cfg.Generation, claimed)
	return evictErr
}

func (c *Controller) evictStale(ctx context.Context) error {
	names, err := c.storage.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list generations: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		if name == c.cfg.Generation {
			continue
		}
		g.Go(func() error {
			if _, err := c.storage.Delete(gctx, name); err != nil {
				return fmt.Errorf("delete generation %s: %w", name, err)
			}
			log.Infof("[Controller] Activate: deleted stale generation %s", name)
			return nil
		})
	}
	return g.Wait()
}

// SkipWaiting flags the controller to bypass the waiting period and asks
// its registration, if any, to promote it.
func (c *Controller) SkipWaiting(ctx context.Context) error {
	c.mu.Lock()
	c.skipWaiting = true
	hook := c.onSkip
	c.mu.Unlock()
	if hook == nil {
		return nil
	}
	return hook(ctx)
}

// markRedundant retires a controller replaced by a newer one. It blocks
// until in-flight cache writes have finished.
func (c *Controller) markRedundant() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.setState(StateRedundant)
}
