package dedup

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/newswire-bots/newsrelay/internal/logger"
	bolt "go.etcd.io/bbolt"
)

const (
	fingerprintBucket = "fingerprints"
	expiryValueBytes  = 8
)

// boltStore implements a Store backed by BoltDB, for deployments that keep
// dedup state local instead of in Redis. Expiry is emulated with a stored
// deadline per key and a periodic sweep.
type boltStore struct {
	db              *bolt.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	cleanupInterval time.Duration
	log             logger.Logger
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string, opts Options, log logger.Logger) (Store, error) {
	if log == nil {
		log = &logger.NopLogger{}
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dedup directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(fingerprintBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	store := &boltStore{
		db:              db,
		cleanupInterval: opts.CleanupInterval,
		log:             log,
	}
	store.lastCleanup.Store(time.Now().Unix())
	return store, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Seen checks whether the fingerprint is flagged and still unexpired.
// Failures fail open.
func (b *boltStore) Seen(_ context.Context, fingerprint string) bool {
	if b == nil || b.db == nil {
		return false
	}

	b.maybeCleanupExpired(time.Now())

	var exists bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(fingerprintBucket))
		if bucket == nil {
			return fmt.Errorf("fingerprint bucket missing")
		}

		key := []byte(fingerprint)
		value := bucket.Get(key)
		if value == nil {
			exists = false
			return nil
		}

		expiry, ok := decodeExpiry(value)
		if !ok || !expiry.After(time.Now()) {
			exists = false
			return bucket.Delete(key)
		}

		exists = true
		return nil
	})
	if err != nil {
		b.log.WarnObj("dedup lookup failed, treating as not seen", "dedup_error", map[string]any{
			"fingerprint": fingerprint,
			"error":       err.Error(),
		})
		return false
	}
	return exists
}

// Mark flags the fingerprint with a deadline of now+ttl.
func (b *boltStore) Mark(_ context.Context, fingerprint string, ttl time.Duration) {
	if b == nil || b.db == nil {
		return
	}

	now := time.Now()
	b.maybeCleanupExpired(now)

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(fingerprintBucket))
		if bucket == nil {
			return fmt.Errorf("fingerprint bucket missing")
		}
		buf := make([]byte, expiryValueBytes)
		binary.BigEndian.PutUint64(buf, uint64(now.Add(ttl).Unix()))
		return bucket.Put([]byte(fingerprint), buf)
	})
	if err != nil {
		b.log.WarnObj("dedup mark failed", "dedup_error", map[string]any{
			"fingerprint": fingerprint,
			"error":       err.Error(),
		})
	}
}

// maybeCleanupExpired removes expired fingerprints on a fixed cadence to avoid unbounded growth.
func (b *boltStore) maybeCleanupExpired(now time.Time) {
	last := time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(fingerprintBucket))
		if bucket == nil {
			return fmt.Errorf("fingerprint bucket missing")
		}

		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			expiry, ok := decodeExpiry(v)
			if !ok || !expiry.After(now) {
				if err := cursor.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		b.lastCleanup.Store(now.Unix())
	} else {
		b.log.WarnObj("dedup cleanup failed", "dedup_error", map[string]any{"error": err.Error()})
	}
}

// decodeExpiry decodes the expiry time from the stored byte slice.
func decodeExpiry(value []byte) (time.Time, bool) {
	if len(value) != expiryValueBytes {
		return time.Time{}, false
	}
	unix := int64(binary.BigEndian.Uint64(value))
	if unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}
