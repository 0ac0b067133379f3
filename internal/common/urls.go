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

package common

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// NormalizePath cleans a URL path and strips leading/trailing slashes.
// The root path normalizes to "".
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, "/")
	return p
}

// SitePath maps a URL path onto a file path inside a built site.
// Directory-style paths resolve to their index.html.
func SitePath(urlPath string) string {
	trailing := strings.HasSuffix(urlPath, "/")
	p := NormalizePath(urlPath)
	if p == "" {
		return "index.html"
	}
	if trailing {
		return p + "/index.html"
	}
	return p
}

// Origin returns the scheme://host[:port] form of u with default ports
// removed and host lowercased.
func Origin(u *url.URL) string {
	if u == nil {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		return fmt.Sprintf("%s://%s:%s", scheme, host, port)
	}
	return fmt.Sprintf("%s://%s", scheme, host)
}

// SameOrigin reports whether a and b share scheme, host and port.
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return Origin(a) == Origin(b)
}

// ResolveURL resolves ref against base. Absolute refs are returned as-is.
func ResolveURL(base *url.URL, ref string) (*url.URL, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", ref, err)
	}
	if base == nil {
		if !r.IsAbs() {
			return nil, fmt.Errorf("relative url %q without base", ref)
		}
		return r, nil
	}
	return base.ResolveReference(r), nil
}
