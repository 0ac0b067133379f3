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

// Package web defines the request/response model the offline cache
// controller works on, the cache storage contract, and the fetchers that
// reach the network.
package web

import (
	"net/http"
	"net/url"
	"strings"
)

// Mode is the request mode as seen by the controller.
type Mode string

const (
	ModeNavigate   Mode = "navigate"
	ModeSameOrigin Mode = "same-origin"
	ModeNoCORS     Mode = "no-cors"
	ModeCORS       Mode = "cors"
)

// ResponseType classifies a response by how much of it may be inspected.
type ResponseType string

const (
	TypeBasic  ResponseType = "basic"  // same-origin
	TypeCORS   ResponseType = "cors"   // cross-origin, shared via CORS
	TypeOpaque ResponseType = "opaque" // cross-origin, not inspectable
	TypeError  ResponseType = "error"
)

// Request is one intercepted outgoing request.
type Request struct {
	Method      string
	URL         *url.URL
	Header      http.Header
	Mode        Mode
	Destination string // "document", "style", "script", ... (may be empty)
	Body        []byte
}

// NewRequest builds a GET request for rawURL resolved against base.
func NewRequest(base *url.URL, rawURL string, mode Mode) (*Request, error) {
	u, err := resolve(base, rawURL)
	if err != nil {
		return nil, err
	}
	return &Request{
		Method: http.MethodGet,
		URL:    u,
		Header: make(http.Header),
		Mode:   mode,
	}, nil
}

// Key returns the cache identity of the request.
func (r *Request) Key() string {
	return RequestKey(r.Method, r.URL)
}

// RequestKey builds the cache identity for method and u. The fragment
// never takes part in matching.
func RequestKey(method string, u *url.URL) string {
	if method == "" {
		method = http.MethodGet
	}
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return strings.ToUpper(method) + " " + c.String()
}

// IsNavigation reports whether the request loads a top-level document.
func (r *Request) IsNavigation() bool {
	return r.Mode == ModeNavigate
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	c := *r
	if r.URL != nil {
		u := *r.URL
		c.URL = &u
	}
	c.Header = r.Header.Clone()
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}

// Response is a complete response snapshot.
type Response struct {
	Status     int
	StatusText string
	Header     http.Header
	Body       []byte
	Type       ResponseType
	URL        string // final URL after redirects
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Cacheable reports whether a network response may populate the cache:
// status exactly 200 and same-origin.
func (r *Response) Cacheable() bool {
	return r.Status == http.StatusOK && r.Type == TypeBasic
}

// Clone returns a deep copy so the stored snapshot and the live
// response never share a body buffer.
func (r *Response) Clone() *Response {
	c := *r
	c.Header = r.Header.Clone()
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}

// Entry pairs a request with the response stored for it.
type Entry struct {
	Request  *Request
	Response *Response
}
