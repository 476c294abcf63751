// Copyright 2025 Poiesic Systems
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


package fetch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Cache stores raw API responses in BadgerDB, keyed by request URL. Entries
// written with Set expire after the configured TTL; historical meeting pages
// never change upstream and can be stored with SetPermanent instead.
type Cache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// NewCache opens a response cache at the given directory, creating it if
// needed. An empty dir opens an in-memory cache, used in tests.
func NewCache(dir string, ttl time.Duration) (*Cache, error) {
	var opts badger.Options

	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return nil, err
				}
				info, err = os.Stat(dir)
				if err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", dir)
		}
		opts = badger.DefaultOptions(dir)
	}

	opts.Logger = &badgerLoggerAdapter{logger: slog.Default()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Cache{
		db:     db,
		ttl:    ttl,
		logger: slog.Default(),
	}, nil
}

// Get retrieves a cached response.
// Returns ErrCacheMiss when the key is absent or expired.
func (c *Cache) Get(key string) ([]byte, error) {
	var data []byte
	err := c.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set stores a response with the cache's TTL. A zero TTL stores permanently.
func (c *Cache) Set(key string, data []byte) error {
	return c.db.Update(func(tx *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), data)
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return tx.SetEntry(entry)
	})
}

// SetPermanent stores a response without expiry.
func (c *Cache) SetPermanent(key string, data []byte) error {
	return c.db.Update(func(tx *badger.Txn) error {
		return tx.Set([]byte(key), data)
	})
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
