package controller

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"offlinecache/internal/common"
	"offlinecache/internal/notify"
	"offlinecache/internal/web"
)

// EventKind names a controller event.
type EventKind string

const (
	EventInstall           EventKind = "install"
	EventActivate          EventKind = "activate"
	EventFetch             EventKind = "fetch"
	EventMessage           EventKind = "message"
	EventPush              EventKind = "push"
	EventNotificationClick EventKind = "notificationclick"
	EventSync              EventKind = "sync"
)

// MessageSkipWaiting asks a waiting controller to activate immediately.
const MessageSkipWaiting = "SKIP_WAITING"

// Message is a control message posted by a page.
type Message struct {
	Type string `json:"type"`
}

// Event is one dispatched event. Only the field matching Kind is read.
type Event struct {
	Kind         EventKind
	Request      *web.Request        // fetch
	Message      *Message            // message
	Payload      *string             // push; nil when the push carried no data
	Notification notify.Notification // notificationclick
	Tag          string              // sync
}

type handler func(ctx context.Context, ev Event) (*web.Response, error)

func (c *Controller) dispatchTable() map[EventKind]handler {
	return map[EventKind]handler{
		EventInstall: func(ctx context.Context, _ Event) (*web.Response, error) {
			return nil, c.Install(ctx)
		},
		EventActivate: func(ctx context.Context, _ Event) (*web.Response, error) {
			return nil, c.Activate(ctx)
		},
		EventFetch: func(ctx context.Context, ev Event) (*web.Response, error) {
			return c.HandleFetch(ctx, ev.Request)
		},
		EventMessage: func(ctx context.Context, ev Event) (*web.Response, error) {
			return nil, c.HandleMessage(ctx, ev.Message)
		},
		EventPush: func(ctx context.Context, ev Event) (*web.Response, error) {
			_, err := c.HandlePush(ctx, ev.Payload)
			return nil, err
		},
		EventNotificationClick: func(ctx context.Context, ev Event) (*web.Response, error) {
			return nil, c.HandleNotificationClick(ctx, ev.Notification)
		},
		EventSync: func(ctx context.Context, ev Event) (*web.Response, error) {
			return nil, c.HandleSync(ctx, ev.Tag)
		},
	}
}

// Dispatch routes ev to its handler. Only fetch events produce a
// response.
func (c *Controller) Dispatch(ctx context.Context, ev Event) (*web.Response, error) {
	h, ok := c.handlers[ev.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownEvent, ev.Kind)
	}
	log.Tracef("[Controller] Dispatch: %s", ev.Kind)
	return h(ctx, ev)
}

// HandleMessage processes a control message. Messages other than
// SKIP_WAITING, and nil messages, are ignored.
func (c *Controller) HandleMessage(ctx context.Context, msg *Message) error {
	if msg == nil || msg.Type != MessageSkipWaiting {
		if msg != nil {
			log.Debugf("[Controller] Message: ignoring %q", msg.Type)
		}
		return nil
	}
	log.Infof("[Controller] Message: %s for %s", MessageSkipWaiting, c.cfg.Generation)
	return c.SkipWaiting(ctx)
}
