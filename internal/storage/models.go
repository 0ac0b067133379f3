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

package storage

import (
	"net/http"
	"net/url"
	"time"

	"github.com/uptrace/bun"

	"offlinecache/internal/web"
)

// Bun ORM models for cache file tables.

// SchemaInfoModel represents the schema_info table
type SchemaInfoModel struct {
	bun.BaseModel `bun:"table:schema_info"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// CacheStoreModel represents one cache generation
type CacheStoreModel struct {
	bun.BaseModel `bun:"table:cache_stores"`

	ID        int64  `bun:"id,pk,autoincrement"`
	Name      string `bun:"name,notnull,unique"`
	CreatedAt int64  `bun:"created_at,notnull"` // Unix timestamp
}

// CacheEntryModel represents one stored response snapshot
type CacheEntryModel struct {
	bun.BaseModel `bun:"table:cache_entries"`

	StoreID     int64               `bun:"store_id,pk"`
	Key         string              `bun:"key,pk"`
	Method      string              `bun:"method,notnull"`
	URL         string              `bun:"url,notnull"`
	Mode        string              `bun:"mode,notnull"`
	Status      int                 `bun:"status,notnull"`
	StatusText  string              `bun:"status_text,notnull"`
	Headers     map[string][]string `bun:"headers,type:text"` // JSON
	Body        []byte              `bun:"body"`
	Type        string              `bun:"type,notnull"`
	ResponseURL string              `bun:"response_url,notnull"`
	StoredAt    int64               `bun:"stored_at,notnull"` // Unix timestamp
}

// EntryModelFrom builds the row for resp stored under req.
func EntryModelFrom(storeID int64, req *web.Request, resp *web.Response) *CacheEntryModel {
	headers := map[string][]string(resp.Header.Clone())
	if headers == nil {
		headers = map[string][]string{}
	}
	return &CacheEntryModel{
		StoreID:     storeID,
		Key:         req.Key(),
		Method:      req.Method,
		URL:         req.URL.String(),
		Mode:        string(req.Mode),
		Status:      resp.Status,
		StatusText:  resp.StatusText,
		Headers:     headers,
		Body:        append([]byte(nil), resp.Body...),
		Type:        string(resp.Type),
		ResponseURL: resp.URL,
		StoredAt:    time.Now().Unix(),
	}
}

// ToResponse converts the row back into a response snapshot.
func (m *CacheEntryModel) ToResponse() *web.Response {
	return &web.Response{
		Status:     m.Status,
		StatusText: m.StatusText,
		Header:     http.Header(m.Headers).Clone(),
		Body:       m.Body,
		Type:       web.ResponseType(m.Type),
		URL:        m.ResponseURL,
	}
}

// ToRequest rebuilds the request the row is keyed by.
func (m *CacheEntryModel) ToRequest() (*web.Request, error) {
	u, err := url.Parse(m.URL)
	if err != nil {
		return nil, err
	}
	return &web.Request{
		Method: m.Method,
		URL:    u,
		Header: make(http.Header),
		Mode:   web.Mode(m.Mode),
	}, nil
}
