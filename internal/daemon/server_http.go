package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"offlinecache/internal/clients"
	"offlinecache/internal/controller"
	"offlinecache/internal/web"
)

// ClientCookie identifies the page window a request belongs to.
const ClientCookie = "offlinecache_client"

// FrontServer is the HTTP entry point for pages. Every request becomes a
// fetch event on the active controller.
type FrontServer struct {
	origin  *url.URL
	reg     *controller.Registration
	clients *clients.Registry
	network web.Fetcher // used when no controller is active

	srv      *http.Server
	listener net.Listener
}

// NewFrontServer creates a front server for origin.
func NewFrontServer(origin *url.URL, reg *controller.Registration, cl *clients.Registry, network web.Fetcher) *FrontServer {
	return &FrontServer{
		origin:  origin,
		reg:     reg,
		clients: cl,
		network: network,
	}
}

// Start listens on addr and serves in the background.
func (f *FrontServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	f.listener = ln
	f.srv = &http.Server{
		Handler:           f,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := f.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("[Front] serve: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (f *FrontServer) Addr() string {
	if f.listener == nil {
		return ""
	}
	return f.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (f *FrontServer) Shutdown(ctx context.Context) error {
	if f.srv == nil {
		return nil
	}
	return f.srv.Shutdown(ctx)
}

func (f *FrontServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := web.FromHTTP(r, f.origin)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctrl := f.reg.Active()
	f.identify(w, r, req, ctrl)

	var resp *web.Response
	if ctrl == nil {
		resp, err = f.network.Fetch(r.Context(), req)
	} else {
		resp, err = ctrl.Dispatch(r.Context(), controller.Event{Kind: controller.EventFetch, Request: req})
	}
	if err != nil {
		log.Debugf("[Front] %s %s: %v", req.Method, req.URL, err)
	}
	if resp == nil {
		// Neither network nor cache produced anything: the request fails.
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	web.WriteResponse(w, resp)
	log.Tracef("[Front] %s %s -> %d (%s)", req.Method, req.URL, resp.Status, resp.Type)
}

// identify keeps the client registry in step with page navigations. A
// navigation without a known client cookie opens a new client, which
// the active controller then controls.
func (f *FrontServer) identify(w http.ResponseWriter, r *http.Request, req *web.Request, ctrl *controller.Controller) {
	var id string
	if c, err := r.Cookie(ClientCookie); err == nil {
		id = c.Value
	}

	if id != "" {
		location := ""
		if req.IsNavigation() {
			location = req.URL.String()
		}
		if _, ok := f.clients.Touch(id, location); ok {
			return
		}
	}
	if !req.IsNavigation() {
		return
	}

	client := f.clients.Register(req.URL.String())
	if ctrl != nil {
		f.clients.Control(client.ID, ctrl.ID(), ctrl.Generation())
	}
	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookie,
		Value:    client.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
