// Package clients tracks the page windows served through the cache
// controller.
package clients

import (
	"context"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DefaultTTL is how long a client may stay silent before it is treated
// as a closed page.
const DefaultTTL = 30 * time.Minute

// Client is one page window.
type Client struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Controller string    `json:"controller,omitempty"` // controlling controller ID
	Generation string    `json:"generation,omitempty"`
	Focused    bool      `json:"focused"`
	Opened     time.Time `json:"opened"`
	LastSeen   time.Time `json:"last_seen"`
}

// Opener launches a window for an absolute URL.
type Opener func(rawURL string) error

// Option configures a Registry.
type Option func(*Registry)

// WithOpener sets the command used by OpenWindow for new windows.
func WithOpener(fn Opener) Option {
	return func(r *Registry) { r.opener = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry is a concurrency-safe set of clients.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*Client
	ttl     time.Duration
	opener  Opener
	now     func() time.Time
}

// NewRegistry creates a registry. A non-positive ttl uses DefaultTTL.
func NewRegistry(ttl time.Duration, opts ...Option) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Registry{
		clients: make(map[string]*Client),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a new uncontrolled client showing rawURL.
func (r *Registry) Register(rawURL string) Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.registerLocked(rawURL)
}

func (r *Registry) registerLocked(rawURL string) *Client {
	now := r.now()
	c := &Client{
		ID:       uuid.NewString(),
		URL:      canonical(rawURL),
		Opened:   now,
		LastSeen: now,
	}
	r.clients[c.ID] = c
	log.Debugf("[Clients] Register: id=%s url=%s", c.ID, c.URL)
	return c
}

// Touch records activity for a client and, when rawURL is non-empty,
// its new location. Returns false for unknown IDs.
func (r *Registry) Touch(id, rawURL string) (Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return Client{}, false
	}
	c.LastSeen = r.now()
	if rawURL != "" {
		c.URL = canonical(rawURL)
	}
	return *c, true
}

// Get returns the client with the given ID.
func (r *Registry) Get(id string) (Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return Client{}, false
	}
	return *c, true
}

// Control marks one client as controlled by a controller.
func (r *Registry) Control(id, controllerID, generation string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return false
	}
	c.Controller = controllerID
	c.Generation = generation
	return true
}

// Claim makes controllerID the controller of every client and returns
// how many clients changed hands.
func (r *Registry) Claim(controllerID, generation string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.clients {
		if c.Controller != controllerID {
			n++
		}
		c.Controller = controllerID
		c.Generation = generation
	}
	log.Debugf("[Clients] Claim: controller=%s generation=%s claimed=%d", controllerID, generation, n)
	return n
}

// ControlledBy counts the clients controlled by controllerID.
func (r *Registry) ControlledBy(controllerID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.clients {
		if c.Controller == controllerID {
			n++
		}
	}
	return n
}

// OpenWindow focuses a client already showing rawURL or opens a new one.
// Opener failures are logged; the client is registered regardless.
func (r *Registry) OpenWindow(ctx context.Context, rawURL string) (Client, error) {
	if err := ctx.Err(); err != nil {
		return Client{}, err
	}
	target := canonical(rawURL)

	r.mu.Lock()
	var found *Client
	for _, c := range r.clients {
		if c.URL == target && (found == nil || c.LastSeen.After(found.LastSeen)) {
			found = c
		}
	}
	created := found == nil
	if created {
		found = r.registerLocked(target)
	}
	for _, c := range r.clients {
		c.Focused = c == found
	}
	found.LastSeen = r.now()
	out := *found
	opener := r.opener
	r.mu.Unlock()

	if created && opener != nil {
		if err := opener(target); err != nil {
			log.Warnf("[Clients] OpenWindow: opener failed for %s: %v", target, err)
		}
	}
	log.Debugf("[Clients] OpenWindow: id=%s url=%s new=%v", out.ID, out.URL, created)
	return out, nil
}

// List returns all clients, oldest first.
func (r *Registry) List() []Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Opened.Equal(out[j].Opened) {
			return out[i].ID < out[j].ID
		}
		return out[i].Opened.Before(out[j].Opened)
	})
	return out
}

// Len returns the number of clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Prune removes clients idle for longer than the TTL at now.
func (r *Registry) Prune(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, c := range r.clients {
		if now.Sub(c.LastSeen) > r.ttl {
			delete(r.clients, id)
			n++
		}
	}
	if n > 0 {
		log.Debugf("[Clients] Prune: removed=%d remaining=%d", n, len(r.clients))
	}
	return n
}

func canonical(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
