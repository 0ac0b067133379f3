package controller

import (
	"context"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"offlinecache/internal/common"
	"offlinecache/internal/web"
)

// HandleFetch resolves req network-first.
//
// A network response is returned as-is; when it is a 200 basic GET
// response outside the no_cache patterns a clone is written to the
// current generation in the background. On network failure the cached
// entry is returned, then the offline document for navigations, and
// otherwise nil: the request is left to fail.
func (c *Controller) HandleFetch(ctx context.Context, req *web.Request) (*web.Response, error) {
	if req == nil || req.URL == nil {
		return nil, fmt.Errorf("fetch without request URL")
	}

	resp, err := c.fetcher.Fetch(ctx, req)
	if err == nil {
		c.stats.network.Add(1)
		if c.shouldStore(req, resp) {
			c.storeDetached(ctx, req.Clone(), resp.Clone())
		}
		return resp, nil
	}
	log.Debugf("[Controller] Fetch: %s %s: network failed: %v", req.Method, req.URL, err)

	if cached := c.match(ctx, req); cached != nil {
		c.stats.cacheHits.Add(1)
		return cached, nil
	}

	if req.IsNavigation() {
		offline, oerr := web.NewRequest(c.cfg.Origin, c.cfg.OfflinePath, web.ModeSameOrigin)
		if oerr == nil {
			if doc := c.match(ctx, offline); doc != nil {
				c.stats.offlineFallbacks.Add(1)
				return doc, nil
			}
		}
	}

	c.stats.unresolved.Add(1)
	return nil, nil
}

func (c *Controller) shouldStore(req *web.Request, resp *web.Response) bool {
	if resp == nil || !resp.Cacheable() {
		return false
	}
	if req.Method != "" && req.Method != http.MethodGet {
		return false
	}
	return !c.excluded(req)
}

// match looks req up in the current generation. Read errors count as
// misses.
func (c *Controller) match(ctx context.Context, req *web.Request) *web.Response {
	if ok, err := c.storage.Has(ctx, c.cfg.Generation); err != nil || !ok {
		if err != nil {
			log.Warnf("[Controller] Fetch: lookup %s: %v", c.cfg.Generation, err)
		}
		return nil
	}
	store, err := c.storage.Open(ctx, c.cfg.Generation)
	if err != nil {
		log.Warnf("[Controller] Fetch: open %s: %v", c.cfg.Generation, err)
		return nil
	}
	resp, err := store.Match(ctx, req)
	if err != nil {
		log.Warnf("[Controller] Fetch: match %s: %v", req.URL, err)
		return nil
	}
	return resp
}

func (c *Controller) storeDetached(ctx context.Context, req *web.Request, resp *web.Response) {
	c.track(ctx, func(ctx context.Context) {
		if err := c.put(ctx, req, resp); err != nil {
			err = fmt.Errorf("%w: %s: %w", common.ErrCacheWriteFailed, req.URL, err)
			c.stats.cacheWriteFailures.Add(1)
			log.Warnf("[Controller] %v", err)
			return
		}
		c.stats.cacheWrites.Add(1)
	})
}

func (c *Controller) put(ctx context.Context, req *web.Request, resp *web.Response) error {
	c.writeMu.RLock()
	defer c.writeMu.RUnlock()
	// A retired controller must not resurrect its evicted generation.
	if c.State() == StateRedundant {
		return fmt.Errorf("controller is redundant")
	}
	store, err := c.storage.Open(ctx, c.cfg.Generation)
	if err != nil {
		return err
	}
	return store.Put(ctx, req, resp)
}
