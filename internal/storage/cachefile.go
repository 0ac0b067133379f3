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
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	_ "github.com/tursodatabase/go-libsql"

	"offlinecache/internal/common"
	"offlinecache/internal/web"
)

// CacheFile is a SQLite-backed web.CacheStorage holding every cache
// generation of one origin.
type CacheFile struct {
	path  string
	db    *sql.DB
	bunDB *BunDB

	mu     sync.RWMutex
	closed bool
}

// Create creates a new cache file with default context
func Create(path string) (*CacheFile, error) {
	return CreateWithContext(path, DBContextDefault)
}

// CreateWithContext creates a new cache file with the specified context.
func CreateWithContext(path string, ctx DBContext) (*CacheFile, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("file already exists: %s", path)
	}

	db, err := sql.Open("libsql", BuildDSN(path, ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	// Must be explicit: libsql ignores DSN-based _pragma=value parameters.
	if err := applyPragmas(db, ctx); err != nil {
		db.Close()
		os.Remove(path)
		return nil, err
	}

	if err := execStatements(db, cacheFileSchema); err != nil {
		db.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if err := execStatements(db, initCacheFile, SchemaVersion); err != nil {
		db.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to initialize cache file: %w", err)
	}

	return &CacheFile{
		path:  path,
		db:    db,
		bunDB: NewBunDB(db),
	}, nil
}

// Open opens an existing cache file with default context
func Open(path string) (*CacheFile, error) {
	return OpenWithContext(path, DBContextDefault)
}

// OpenWithContext opens an existing cache file with the specified context.
func OpenWithContext(path string, ctx DBContext) (*CacheFile, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("file not found: %s", path)
	}

	db, err := sql.Open("libsql", BuildDSN(path, ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := applyPragmas(db, ctx); err != nil {
		db.Close()
		return nil, err
	}

	bunDB := NewBunDB(db)
	fileType, err := bunDB.GetSchemaInfo(context.Background(), "type")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read schema info: %w", err)
	}
	if fileType != FileType {
		db.Close()
		return nil, fmt.Errorf("not a cache file (type=%s)", fileType)
	}

	return &CacheFile{
		path:  path,
		db:    db,
		bunDB: bunDB,
	}, nil
}

// OpenOrCreate opens an existing cache file or creates a new one with default context
func OpenOrCreate(path string) (*CacheFile, error) {
	return OpenOrCreateWithContext(path, DBContextDefault)
}

// OpenOrCreateWithContext opens an existing cache file or creates a new one with the specified context
func OpenOrCreateWithContext(path string, ctx DBContext) (*CacheFile, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return CreateWithContext(path, ctx)
	}
	return OpenWithContext(path, ctx)
}

// Close closes the database connection
func (cf *CacheFile) Close() error {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	if cf.closed {
		return nil
	}
	cf.closed = true
	return cf.db.Close()
}

// Path returns the file path
func (cf *CacheFile) Path() string {
	return cf.path
}

// DB returns the underlying *sql.DB.
func (cf *CacheFile) DB() *sql.DB {
	return cf.db
}

// BunDB returns the Bun database wrapper.
func (cf *CacheFile) BunDB() *BunDB {
	return cf.bunDB
}

// guard holds the read lock for the duration of an operation so Close
// waits for in-flight queries.
func (cf *CacheFile) guard() (func(), error) {
	cf.mu.RLock()
	if cf.closed {
		cf.mu.RUnlock()
		return nil, common.ErrClosed
	}
	return cf.mu.RUnlock, nil
}

// Open implements web.CacheStorage.
func (cf *CacheFile) Open(ctx context.Context, name string) (web.CacheStore, error) {
	release, err := cf.guard()
	if err != nil {
		return nil, err
	}
	defer release()

	model, err := cf.bunDB.EnsureStore(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", name, err)
	}
	log.Debugf("[Storage] Open: store=%s id=%d", name, model.ID)
	return &Store{file: cf, id: model.ID, name: name}, nil
}

// Has implements web.CacheStorage.
func (cf *CacheFile) Has(ctx context.Context, name string) (bool, error) {
	release, err := cf.guard()
	if err != nil {
		return false, err
	}
	defer release()

	model, err := cf.bunDB.GetStore(ctx, name)
	if err != nil {
		return false, err
	}
	return model != nil, nil
}

// Keys implements web.CacheStorage.
func (cf *CacheFile) Keys(ctx context.Context) ([]string, error) {
	release, err := cf.guard()
	if err != nil {
		return nil, err
	}
	defer release()

	stores, err := cf.bunDB.ListStores(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(stores))
	for _, s := range stores {
		names = append(names, s.Name)
	}
	return names, nil
}

// Delete implements web.CacheStorage.
func (cf *CacheFile) Delete(ctx context.Context, name string) (bool, error) {
	release, err := cf.guard()
	if err != nil {
		return false, err
	}
	defer release()

	deleted, err := cf.bunDB.DeleteStore(ctx, name)
	if err != nil {
		return false, fmt.Errorf("delete store %q: %w", name, err)
	}
	if deleted {
		log.Debugf("[Storage] Delete: store=%s", name)
	}
	return deleted, nil
}

// Stats returns a summary of every store.
func (cf *CacheFile) Stats(ctx context.Context) ([]StoreStat, error) {
	release, err := cf.guard()
	if err != nil {
		return nil, err
	}
	defer release()
	return cf.bunDB.ListStoreStats(ctx)
}

// Store is one cache generation inside a CacheFile.
type Store struct {
	file *CacheFile
	id   int64
	name string
}

// Name implements web.CacheStore.
func (s *Store) Name() string {
	return s.name
}

// Match implements web.CacheStore.
func (s *Store) Match(ctx context.Context, req *web.Request) (*web.Response, error) {
	release, err := s.file.guard()
	if err != nil {
		return nil, err
	}
	defer release()

	entry, err := s.file.bunDB.GetEntry(ctx, s.id, req.Key())
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}
	return entry.ToResponse(), nil
}

// Put implements web.CacheStore.
func (s *Store) Put(ctx context.Context, req *web.Request, resp *web.Response) error {
	return s.PutAll(ctx, []web.Entry{{Request: req, Response: resp}})
}

// PutAll implements web.CacheStore. All rows are written in one
// transaction.
func (s *Store) PutAll(ctx context.Context, entries []web.Entry) error {
	release, err := s.file.guard()
	if err != nil {
		return err
	}
	defer release()

	models := make([]*CacheEntryModel, 0, len(entries))
	for _, e := range entries {
		models = append(models, EntryModelFrom(s.id, e.Request, e.Response))
	}
	if err := s.file.bunDB.UpsertEntries(ctx, s.id, models); err != nil {
		return fmt.Errorf("store %q: %w", s.name, err)
	}
	log.Tracef("[Storage] PutAll: store=%s entries=%d", s.name, len(models))
	return nil
}

// Keys implements web.CacheStore.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	release, err := s.file.guard()
	if err != nil {
		return nil, err
	}
	defer release()
	return s.file.bunDB.ListEntryKeys(ctx, s.id)
}
