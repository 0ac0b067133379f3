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
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"offlinecache/internal/common"
)

// notFoundPage is served with a 404 status when the site has one.
const notFoundPage = "404.html"

// SiteFetcher answers same-origin requests from a built static site and
// hands cross-origin requests to a fallback fetcher.
type SiteFetcher struct {
	fs       billy.Filesystem
	origin   *url.URL
	fallback Fetcher
}

// NewSiteFetcher creates a fetcher over fs. fallback may be nil, in which
// case cross-origin fetches fail as network errors.
func NewSiteFetcher(fs billy.Filesystem, origin *url.URL, fallback Fetcher) *SiteFetcher {
	return &SiteFetcher{fs: fs, origin: origin, fallback: fallback}
}

// Fetch implements Fetcher.
func (f *SiteFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrNetworkFailed, err)
	}
	if !common.SameOrigin(f.origin, req.URL) {
		if f.fallback == nil {
			return nil, fmt.Errorf("%w: no route to %s", common.ErrNetworkFailed, common.Origin(req.URL))
		}
		return f.fallback.Fetch(ctx, req)
	}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return f.plain(req, http.StatusMethodNotAllowed), nil
	}

	name := common.SitePath(req.URL.Path)
	if fi, err := f.fs.Stat(name); err == nil && fi.IsDir() {
		name = path.Join(name, "index.html")
	}

	data, err := util.ReadFile(f.fs, name)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: reading %s: %v", common.ErrNetworkFailed, name, err)
		}
		if page, perr := util.ReadFile(f.fs, notFoundPage); perr == nil {
			return f.file(req, http.StatusNotFound, notFoundPage, page), nil
		}
		return f.plain(req, http.StatusNotFound), nil
	}
	return f.file(req, http.StatusOK, name, data), nil
}

func (f *SiteFetcher) file(req *Request, status int, name string, data []byte) *Response {
	header := make(http.Header)
	ctype := mime.TypeByExtension(path.Ext(name))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	header.Set("Content-Type", ctype)
	header.Set("Content-Length", strconv.Itoa(len(data)))
	if req.Method == http.MethodHead {
		data = nil
	}
	return &Response{
		Status:     status,
		StatusText: http.StatusText(status),
		Header:     header,
		Body:       data,
		Type:       TypeBasic,
		URL:        req.URL.String(),
	}
}

func (f *SiteFetcher) plain(req *Request, status int) *Response {
	body := []byte(http.StatusText(status) + "\n")
	header := make(http.Header)
	header.Set("Content-Type", "text/plain; charset=utf-8")
	return &Response{
		Status:     status,
		StatusText: http.StatusText(status),
		Header:     header,
		Body:       body,
		Type:       TypeBasic,
		URL:        req.URL.String(),
	}
}
