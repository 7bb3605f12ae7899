// Package store holds the persistence around a scoring run: the score
// cache, run history, report sinks and remote input fetching.
package store

import (
	"context"
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/maastricht-university/audioscore/metrics"
)

const cachePrefix = "score/"

// CacheOptions configures a ScoreCache.
type CacheOptions struct {
	// Dir holds the badger files. Required unless InMemory is set.
	Dir string
	// InMemory keeps everything in memory; used by tests.
	InMemory bool
	// TTL expires entries; zero keeps them forever.
	TTL time.Duration
	Log logrus.FieldLogger
}

// ScoreCache keeps finished scores keyed by input digest, metric settings
// and checkpoint, so repeated runs over the same files skip the backend.
type ScoreCache struct {
	db  *badger.DB
	ttl time.Duration
	log logrus.FieldLogger
}

// OpenCache opens (or creates) the cache.
func OpenCache(opts CacheOptions) (*ScoreCache, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("store: cache dir is required for on-disk mode")
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	db, err := badger.Open(dbOpts.WithLogger(badgerLogger{log.WithField("component", "badger")}))
	if err != nil {
		return nil, err
	}
	return &ScoreCache{db: db, ttl: opts.TTL, log: log}, nil
}

// Get returns the cached value for key. Read or decode errors count as a
// miss.
func (c *ScoreCache) Get(_ context.Context, key string) (metrics.Value, bool) {
	var v metrics.Value
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cachePrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(b []byte) error {
			return msgpack.Unmarshal(b, &v)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.log.WithError(err).WithField("key", key).Warn("score cache read failed")
		}
		return metrics.Value{}, false
	}
	return v, true
}

// Put stores v under key. Failures are logged and otherwise ignored.
func (c *ScoreCache) Put(_ context.Context, key string, v metrics.Value) {
	b, err := msgpack.Marshal(v)
	if err == nil {
		err = c.db.Update(func(txn *badger.Txn) error {
			e := badger.NewEntry([]byte(cachePrefix+key), b)
			if c.ttl > 0 {
				e = e.WithTTL(c.ttl)
			}
			return txn.SetEntry(e)
		})
	}
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("score cache write failed")
	}
}

// Len counts cached scores.
func (c *ScoreCache) Len() (int, error) {
	n := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(cachePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Purge drops every cached score.
func (c *ScoreCache) Purge() error {
	return c.db.DropPrefix([]byte(cachePrefix))
}

func (c *ScoreCache) Close() error {
	return c.db.Close()
}

// badgerLogger routes badger output through logrus, dropping its info and
// debug chatter.
type badgerLogger struct{ l logrus.FieldLogger }

func (b badgerLogger) Errorf(f string, v ...any)   { b.l.Errorf(f, v...) }
func (b badgerLogger) Warningf(f string, v ...any) { b.l.Warnf(f, v...) }
func (badgerLogger) Infof(string, ...any)          {}
func (badgerLogger) Debugf(string, ...any)         {}
