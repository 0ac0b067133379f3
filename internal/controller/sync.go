package controller

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"offlinecache/internal/web"
)

// SyncPosts is the background sync tag that refreshes the precache.
const SyncPosts = "sync-posts"

// HandleSync runs a background sync. For SyncPosts every manifest URL is
// re-fetched into the current generation; individual failures are
// logged and counted. Other tags are ignored.
func (c *Controller) HandleSync(ctx context.Context, tag string) error {
	if tag != SyncPosts {
		log.Debugf("[Controller] Sync: ignoring tag %q", tag)
		return nil
	}

	reqs, err := c.manifestRequests()
	if err != nil {
		return err
	}
	refreshed := 0
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.refresh(ctx, req); err != nil {
			c.stats.syncFailures.Add(1)
			log.Warnf("[Controller] Sync: %s not refreshed: %v", req.URL, err)
			continue
		}
		refreshed++
	}
	log.Infof("[Controller] Sync: %s refreshed %d/%d entries", tag, refreshed, len(reqs))
	return nil
}

func (c *Controller) refresh(ctx context.Context, req *web.Request) error {
	resp, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		return err
	}
	if !resp.OK() || resp.Type == web.TypeOpaque {
		return fmt.Errorf("unusable response (status %d, type %s)", resp.Status, resp.Type)
	}
	return c.put(ctx, req, resp)
}
