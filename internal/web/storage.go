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
	"net/url"

	"offlinecache/internal/common"
)

// Fetcher performs network fetches. Any returned error means the network
// request failed and wraps common.ErrNetworkFailed; HTTP error statuses
// are successful fetches.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req *Request) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// CacheStorage holds the named cache stores of an origin.
// Implementations must be safe for concurrent use.
type CacheStorage interface {
	// Open returns the store called name, creating it if absent.
	Open(ctx context.Context, name string) (CacheStore, error)
	// Has reports whether a store called name exists.
	Has(ctx context.Context, name string) (bool, error)
	// Keys lists store names in creation order.
	Keys(ctx context.Context) ([]string, error)
	// Delete removes the store and all its entries. Returns false if it
	// did not exist.
	Delete(ctx context.Context, name string) (bool, error)
}

// CacheStore maps request identities to response snapshots.
type CacheStore interface {
	Name() string
	// Match returns the stored response for req, or nil on a miss.
	Match(ctx context.Context, req *Request) (*Response, error)
	// Put stores a complete snapshot of resp under req (last write wins).
	Put(ctx context.Context, req *Request, resp *Response) error
	// PutAll stores every entry or none of them.
	PutAll(ctx context.Context, entries []Entry) error
	// Keys lists the request identities held by the store.
	Keys(ctx context.Context) ([]string, error)
}

func resolve(base *url.URL, raw string) (*url.URL, error) {
	return common.ResolveURL(base, raw)
}
