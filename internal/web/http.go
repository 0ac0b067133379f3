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

package web

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"offlinecache/internal/common"
)

// DefaultClientTimeout bounds a single upstream round trip.
const DefaultClientTimeout = 30 * time.Second

var hopByHopHeaders = []string{
	"Connection", "Proxy-Connection", "Keep-Alive",
	"Proxy-Authenticate", "Proxy-Authorization", "TE",
	"Trailer", "Transfer-Encoding", "Upgrade",
}

// StripHopByHop returns a copy of header without hop-by-hop fields,
// including the ones named by the Connection header.
func StripHopByHop(header http.Header) http.Header {
	clean := header.Clone()
	if clean == nil {
		clean = make(http.Header)
	}
	for _, k := range hopByHopHeaders {
		clean.Del(k)
	}
	if conn := header.Get("Connection"); conn != "" {
		for _, token := range strings.Split(conn, ",") {
			if token = strings.TrimSpace(token); token != "" {
				clean.Del(token)
			}
		}
	}
	return clean
}

// HTTPFetcher fetches requests over the network with net/http.
type HTTPFetcher struct {
	client *http.Client
	origin *url.URL
}

// NewHTTPFetcher creates a fetcher for pages served from origin. A nil
// client gets a default one with DefaultClientTimeout.
func NewHTTPFetcher(origin *url.URL, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultClientTimeout}
	}
	return &HTTPFetcher{client: client, origin: origin}
}

// Fetch implements Fetcher. The body is read completely so the response
// can be stored as a whole snapshot.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", common.ErrNetworkFailed, req.Method, req.URL, err)
	}
	hreq.Header = StripHopByHop(req.Header)

	hresp, err := f.client.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", common.ErrNetworkFailed, req.Method, req.URL, err)
	}
	defer hresp.Body.Close()

	data, err := io.ReadAll(hresp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", common.ErrNetworkFailed, req.URL, err)
	}

	finalURL := req.URL
	if hresp.Request != nil && hresp.Request.URL != nil {
		finalURL = hresp.Request.URL
	}

	return &Response{
		Status:     hresp.StatusCode,
		StatusText: http.StatusText(hresp.StatusCode),
		Header:     StripHopByHop(hresp.Header),
		Body:       data,
		Type:       f.classify(finalURL, hresp.Header),
		URL:        finalURL.String(),
	}, nil
}

func (f *HTTPFetcher) classify(u *url.URL, header http.Header) ResponseType {
	if common.SameOrigin(f.origin, u) {
		return TypeBasic
	}
	if header.Get("Access-Control-Allow-Origin") != "" {
		return TypeCORS
	}
	return TypeOpaque
}

// FromHTTP converts an inbound request of the front server into a
// Request. Absolute-form request targets (forward proxying) keep their
// URL; everything else is resolved against origin.
func FromHTTP(r *http.Request, origin *url.URL) (*Request, error) {
	var target *url.URL
	if r.URL.IsAbs() {
		u := *r.URL
		target = &u
	} else {
		u, err := common.ResolveURL(origin, r.URL.RequestURI())
		if err != nil {
			return nil, err
		}
		target = u
	}

	var body []byte
	if r.Body != nil {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		body = data
	}

	header := StripHopByHop(r.Header)
	header.Del("Cookie")

	return &Request{
		Method:      r.Method,
		URL:         target,
		Header:      header,
		Mode:        detectMode(r, origin, target),
		Destination: r.Header.Get("Sec-Fetch-Dest"),
		Body:        body,
	}, nil
}

func detectMode(r *http.Request, origin, target *url.URL) Mode {
	switch Mode(r.Header.Get("Sec-Fetch-Mode")) {
	case ModeNavigate:
		return ModeNavigate
	case ModeSameOrigin:
		return ModeSameOrigin
	case ModeNoCORS:
		return ModeNoCORS
	case ModeCORS:
		return ModeCORS
	}
	if r.Header.Get("Sec-Fetch-Mode") == "" && r.Method == http.MethodGet &&
		strings.Contains(r.Header.Get("Accept"), "text/html") {
		return ModeNavigate
	}
	if common.SameOrigin(origin, target) {
		return ModeSameOrigin
	}
	return ModeNoCORS
}

// WriteResponse writes resp to w.
func WriteResponse(w http.ResponseWriter, resp *Response) {
	for k, values := range StripHopByHop(resp.Header) {
		if strings.EqualFold(k, "Content-Length") {
			continue
		}
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}
