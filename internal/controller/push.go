package controller

import (
	"context"
	"fmt"
	"net/url"

	log "github.com/sirupsen/logrus"

	"offlinecache/internal/notify"
)

var rootRef = &url.URL{Path: "/"}

// HandlePush shows the push notification. payload is the push text, nil
// when the push carried no data. Returns once the notification is shown.
func (c *Controller) HandlePush(ctx context.Context, payload *string) (notify.Notification, error) {
	nc := c.cfg.Notification
	body := nc.DefaultBody
	if payload != nil {
		body = *payload
	}
	n, err := c.notifier.Show(ctx, notify.Notification{
		Title:              nc.Title,
		Body:               body,
		Icon:               nc.Icon,
		Badge:              nc.Badge,
		Vibrate:            nc.Vibrate,
		Tag:                nc.Tag,
		RequireInteraction: false,
	})
	if err != nil {
		return notify.Notification{}, fmt.Errorf("show notification: %w", err)
	}
	return n, nil
}

// HandleNotificationClick closes the clicked notification and opens or
// focuses the site root.
func (c *Controller) HandleNotificationClick(ctx context.Context, n notify.Notification) error {
	if err := c.notifier.Close(n.ID); err != nil {
		log.Debugf("[Controller] NotificationClick: close %s: %v", n.ID, err)
	}
	root := c.cfg.Origin.ResolveReference(rootRef).String()
	if _, err := c.clients.OpenWindow(ctx, root); err != nil {
		return fmt.Errorf("open window %s: %w", root, err)
	}
	return nil
}
