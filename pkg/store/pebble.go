package store

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"skiff/pkg/logger"
)

var (
	db     *pebble.DB
	dbPath string
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = pebble.ErrNotFound

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package. All services share a
// single DB; namespaces are byte-prefixed composite keys.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

// Get returns the value for key. The returned slice is a copy safe to
// retain. Returns ErrNotFound when the key is absent.
func Get(key []byte) ([]byte, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get(key)
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	return out, nil
}

// Has reports whether key exists.
func Has(key []byte) (bool, error) {
	_, err := Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Set writes a key/value pair with a synced write.
func Set(key, value []byte) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	return db.Set(key, value, pebble.Sync)
}

// Delete removes a key with a synced write. Deleting an absent key is not
// an error.
func Delete(key []byte) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	return db.Delete(key, pebble.Sync)
}

// Batch returns a new write batch. Commit with Apply; the batch is the
// transaction boundary for multi-row writes (chunk replacement, log row +
// trigram postings).
func Batch() (*pebble.Batch, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	return db.NewBatch(), nil
}

// Apply commits a batch with a synced write and closes it.
func Apply(b *pebble.Batch) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	defer b.Close()
	return db.Apply(b, pebble.Sync)
}

// NewIter returns a raw Pebble iterator for low-level scans. Caller must
// close the iterator when done.
func NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	return db.NewIter(opts)
}

// PrefixScan iterates all keys starting with prefix in ascending order,
// invoking fn with the key and value. Iteration stops when fn returns
// false. Key and value slices passed to fn are only valid for the call.
func PrefixScan(prefix []byte, fn func(key, value []byte) bool) error {
	iter, err := NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Error()
}

// DeletePrefix removes every key under prefix in a single batch.
func DeletePrefix(prefix []byte) error {
	b, err := Batch()
	if err != nil {
		return err
	}
	if err := PrefixScan(prefix, func(k, _ []byte) bool {
		_ = b.Delete(append([]byte(nil), k...), nil)
		return true
	}); err != nil {
		b.Close()
		return err
	}
	return Apply(b)
}
