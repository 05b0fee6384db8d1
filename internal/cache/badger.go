// Package cache stores photo API responses in badger so repeated detail
// lookups skip the network and the rate limit.
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"
	"github.com/quantmind-br/photofeed/internal/domain"
)

// entryPrefix namespaces response entries within the database
var entryPrefix = []byte("resp:")

// BadgerCache keeps zstd-compressed response bodies keyed by request URL.
// API responses are verbose JSON and shrink several times over.
type BadgerCache struct {
	db      *badger.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	stopGC  chan struct{}
}

// NewBadgerCache opens the cache database
func NewBadgerCache(opts Options) (*BadgerCache, error) {
	badgerOpts, err := badgerOptions(opts)
	if err != nil {
		return nil, err
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		encoder.Close()
		decoder.Close()
		return nil, fmt.Errorf("open cache: %w", err)
	}

	c := &BadgerCache{db: db, encoder: encoder, decoder: decoder, stopGC: make(chan struct{})}
	if !opts.InMemory {
		interval := opts.GCInterval
		if interval <= 0 {
			interval = DefaultGCInterval
		}
		go c.collectGarbage(interval)
	}
	return c, nil
}

func badgerOptions(opts Options) (badger.Options, error) {
	var bo badger.Options
	if opts.InMemory {
		bo = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dir := opts.Directory
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return bo, err
			}
			dir = filepath.Join(home, ".photofeed", "cache")
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return bo, err
		}
		bo = badger.DefaultOptions(dir)
	}
	if opts.Logger != nil {
		return bo.WithLogger(opts.Logger.ForStorage()), nil
	}
	return bo.WithLogger(nil), nil
}

func (c *BadgerCache) collectGarbage(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite just means nothing was worth compacting
			_ = c.db.RunValueLogGC(0.5)
		}
	}
}

func entryKey(rawURL string) []byte {
	return append(append([]byte{}, entryPrefix...), GenerateKey(rawURL)...)
}

// Get returns the body cached for url, or domain.ErrCacheMiss
func (c *BadgerCache) Get(_ context.Context, url string) ([]byte, error) {
	var stored []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(url))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrCacheMiss
		}
		if err != nil {
			return err
		}
		stored, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	body, err := c.decoder.DecodeAll(stored, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress cache entry: %w", err)
	}
	return body, nil
}

// Set stores body for url. A ttl of zero keeps it until cleared.
func (c *BadgerCache) Set(_ context.Context, url string, body []byte, ttl time.Duration) error {
	compressed := c.encoder.EncodeAll(body, make([]byte, 0, len(body)/2))
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(entryKey(url), compressed)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// Has reports whether a live entry exists for url
func (c *BadgerCache) Has(_ context.Context, url string) bool {
	err := c.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(entryKey(url))
		return err
	})
	return err == nil
}

// Delete removes the entry for url
func (c *BadgerCache) Delete(_ context.Context, url string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey(url))
	})
}

// Clear drops every cached response
func (c *BadgerCache) Clear() error {
	return c.db.DropPrefix(entryPrefix)
}

// Size counts live entries
func (c *BadgerCache) Size() int64 {
	var n int64
	_ = c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: entryPrefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n
}

// Stats reports entry count and on-disk footprint
func (c *BadgerCache) Stats() Stats {
	lsm, vlog := c.db.Size()
	return Stats{Entries: c.Size(), LSMBytes: lsm, VlogBytes: vlog}
}

// Close stops garbage collection and closes the database
func (c *BadgerCache) Close() error {
	close(c.stopGC)
	c.encoder.Close()
	c.decoder.Close()
	return c.db.Close()
}
