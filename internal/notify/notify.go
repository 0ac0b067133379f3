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

// Package notify keeps the notifications shown on behalf of the cache
// controller.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"offlinecache/internal/common"
)

// Notification is a displayed system notification.
type Notification struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Body               string    `json:"body"`
	Icon               string    `json:"icon,omitempty"`
	Badge              string    `json:"badge,omitempty"`
	Vibrate            []int     `json:"vibrate,omitempty"`
	Tag                string    `json:"tag,omitempty"`
	RequireInteraction bool      `json:"require_interaction"`
	ShownAt            time.Time `json:"shown_at"`
}

// Center is an in-memory notification tray. A notification with a
// non-empty tag replaces any shown notification carrying the same tag.
type Center struct {
	mu    sync.Mutex
	items map[string]Notification
	order []string
	now   func() time.Time
}

// NewCenter creates an empty notification center.
func NewCenter() *Center {
	return &Center{
		items: make(map[string]Notification),
		now:   time.Now,
	}
}

// Show displays n and returns it with its assigned ID.
func (c *Center) Show(ctx context.Context, n Notification) (Notification, error) {
	if err := ctx.Err(); err != nil {
		return Notification{}, err
	}
	if n.Title == "" {
		return Notification{}, fmt.Errorf("notification without title")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if n.Tag != "" {
		for id, existing := range c.items {
			if existing.Tag == n.Tag {
				c.removeLocked(id)
				log.Debugf("[Notify] Show: replaced %s (tag=%s)", id, n.Tag)
			}
		}
	}

	n.ID = uuid.NewString()
	n.ShownAt = c.now()
	n.Vibrate = append([]int(nil), n.Vibrate...)
	c.items[n.ID] = n
	c.order = append(c.order, n.ID)

	log.Infof("[Notify] Show: id=%s title=%q body=%q", n.ID, n.Title, n.Body)
	return n, nil
}

// Close removes a notification. Closing an unknown ID returns ErrNotFound.
func (c *Center) Close(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		return fmt.Errorf("notification %s: %w", id, common.ErrNotFound)
	}
	c.removeLocked(id)
	log.Debugf("[Notify] Close: id=%s", id)
	return nil
}

// Get returns the notification with the given ID.
func (c *Center) Get(id string) (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.items[id]
	return n, ok
}

// List returns shown notifications, oldest first.
func (c *Center) List() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

func (c *Center) removeLocked(id string) {
	delete(c.items, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
