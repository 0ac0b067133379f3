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
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"offlinecache/internal/common"
	"offlinecache/internal/util"
)

// BunDB wraps a Bun database instance for type-safe queries.
type BunDB struct {
	*bun.DB
}

// NewBunDB wraps an existing *sql.DB with Bun's type-safe query builder.
func NewBunDB(sqlDB *sql.DB) *BunDB {
	bunDB := bun.NewDB(sqlDB, sqlitedialect.New())
	return &BunDB{DB: bunDB}
}

// --- Schema Info ---

// GetSchemaInfo retrieves a schema_info value by key.
func (db *BunDB) GetSchemaInfo(ctx context.Context, key string) (string, error) {
	var info SchemaInfoModel
	err := db.NewSelect().
		Model(&info).
		Where("key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return info.Value, nil
}

// --- Store Operations ---

// GetStore returns the store called name, or nil if it does not exist.
func (db *BunDB) GetStore(ctx context.Context, name string) (*CacheStoreModel, error) {
	return getStoreWith(ctx, db.DB, name)
}

func getStoreWith(ctx context.Context, idb bun.IDB, name string) (*CacheStoreModel, error) {
	var store CacheStoreModel
	err := idb.NewSelect().
		Model(&store).
		Where("name = ?", name).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &store, nil
}

// EnsureStore returns the store called name, creating it if absent.
// Uses retry logic for transient "database is locked" errors.
func (db *BunDB) EnsureStore(ctx context.Context, name string) (*CacheStoreModel, error) {
	return util.RetryWithResult(ctx, func() (*CacheStoreModel, error) {
		_, err := db.NewInsert().
			Model(&CacheStoreModel{Name: name, CreatedAt: time.Now().Unix()}).
			On("CONFLICT (name) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return nil, err
		}
		store, err := db.GetStore(ctx, name)
		if err != nil {
			return nil, err
		}
		if store == nil {
			return nil, fmt.Errorf("store %q vanished after insert", name)
		}
		return store, nil
	}, util.DatabaseRetryOptions(ctx)...)
}

// ListStores returns all stores in creation order.
func (db *BunDB) ListStores(ctx context.Context) ([]CacheStoreModel, error) {
	var stores []CacheStoreModel
	err := db.NewSelect().
		Model(&stores).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return stores, nil
}

// DeleteStore removes a store and its entries in one transaction.
// Returns false if the store did not exist.
func (db *BunDB) DeleteStore(ctx context.Context, name string) (bool, error) {
	var deleted bool
	err := util.Retry(ctx, func() error {
		deleted = false
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			store, err := getStoreWith(ctx, tx, name)
			if err != nil || store == nil {
				return err
			}
			// Entries are removed explicitly: foreign_keys is a per-connection
			// PRAGMA and pooled connections may not have it set.
			if _, err := tx.NewDelete().Model((*CacheEntryModel)(nil)).Where("store_id = ?", store.ID).Exec(ctx); err != nil {
				return err
			}
			if _, err := tx.NewDelete().Model((*CacheStoreModel)(nil)).Where("id = ?", store.ID).Exec(ctx); err != nil {
				return err
			}
			deleted = true
			return nil
		})
	}, util.DatabaseRetryOptions(ctx)...)
	return deleted, err
}

// --- Entry Operations ---

// GetEntry returns the entry for key in a store, or nil on a miss.
func (db *BunDB) GetEntry(ctx context.Context, storeID int64, key string) (*CacheEntryModel, error) {
	var entry CacheEntryModel
	err := db.NewSelect().
		Model(&entry).
		Where("store_id = ?", storeID).
		Where("key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpsertEntriesWith writes entries inside tx, replacing existing rows
// with the same key. The store must still exist.
func (db *BunDB) UpsertEntriesWith(ctx context.Context, tx bun.Tx, storeID int64, entries []*CacheEntryModel) error {
	exists, err := tx.NewSelect().
		Model((*CacheStoreModel)(nil)).
		Where("id = ?", storeID).
		Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("store %d: %w", storeID, common.ErrNotFound)
	}

	for _, e := range entries {
		_, err := tx.NewInsert().
			Model(e).
			On("CONFLICT (store_id, key) DO UPDATE").
			Set("method = EXCLUDED.method").
			Set("url = EXCLUDED.url").
			Set("mode = EXCLUDED.mode").
			Set("status = EXCLUDED.status").
			Set("status_text = EXCLUDED.status_text").
			Set("headers = EXCLUDED.headers").
			Set("body = EXCLUDED.body").
			Set("type = EXCLUDED.type").
			Set("response_url = EXCLUDED.response_url").
			Set("stored_at = EXCLUDED.stored_at").
			Exec(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

// UpsertEntries writes all entries atomically.
// Uses retry logic for transient "database is locked" errors.
func (db *BunDB) UpsertEntries(ctx context.Context, storeID int64, entries []*CacheEntryModel) error {
	return util.Retry(ctx, func() error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return db.UpsertEntriesWith(ctx, tx, storeID, entries)
		})
	}, util.DatabaseRetryOptions(ctx)...)
}

// ListEntryKeys returns the request keys of a store, sorted.
func (db *BunDB) ListEntryKeys(ctx context.Context, storeID int64) ([]string, error) {
	var keys []string
	err := db.NewSelect().
		Model((*CacheEntryModel)(nil)).
		Column("key").
		Where("store_id = ?", storeID).
		Order("key ASC").
		Scan(ctx, &keys)
	if err != nil {
		return nil, err
	}
	log.Tracef("[Storage] ListEntryKeys: store=%d keys=%d", storeID, len(keys))
	return keys, nil
}

// StoreStat summarizes one store.
type StoreStat struct {
	Name      string
	Entries   int
	Bytes     int64
	CreatedAt time.Time
}

type storeStatRow struct {
	Name      string `bun:"name"`
	CreatedAt int64  `bun:"created_at"`
	Entries   int    `bun:"entries"`
	Bytes     int64  `bun:"bytes"`
}

// ListStoreStats returns per-store entry counts and body sizes.
func (db *BunDB) ListStoreStats(ctx context.Context) ([]StoreStat, error) {
	var rows []storeStatRow
	err := db.NewRaw(`
		SELECT s.name, s.created_at,
		       COUNT(e.key) AS entries,
		       COALESCE(SUM(LENGTH(e.body)), 0) AS bytes
		FROM cache_stores s
		LEFT JOIN cache_entries e ON e.store_id = s.id
		GROUP BY s.id
		ORDER BY s.id ASC`).Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	stats := make([]StoreStat, 0, len(rows))
	for _, r := range rows {
		stats = append(stats, StoreStat{
			Name:      r.Name,
			Entries:   r.Entries,
			Bytes:     r.Bytes,
			CreatedAt: time.Unix(r.CreatedAt, 0),
		})
	}
	return stats, nil
}
