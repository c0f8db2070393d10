// Package kv implements the relayer database on top of BoltDB, a single
// embedded file created on first open.
package kv

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	prombbolt "github.com/prysmaticlabs/prombbolt"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var log = logrus.WithField("prefix", "db")

// ErrNotFound is returned when no row exists for the requested nonce.
var ErrNotFound = errors.New("message not found")

// ErrTerminalState is returned when a state update targets a row already in
// a terminal state (settled, failed, rolled_back).
var ErrTerminalState = errors.New("message is in a terminal state")

// Store implements iface.Database using BoltDB as the underlying
// persistent kv-store.
type Store struct {
	db           *bolt.DB
	databasePath string
}

// NewKVStore opens (creating if missing) the bolt database at the given
// file path, creates the kv-buckets based on the schema, and registers the
// bolt stats collector with prometheus.
func NewKVStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
	}
	boltDB, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		if err == bolt.ErrTimeout {
			return nil, errors.New("cannot obtain database lock, database may be in use by another process")
		}
		return nil, err
	}
	kv := &Store{db: boltDB, databasePath: path}
	if err := kv.db.Update(func(tx *bolt.Tx) error {
		return createBuckets(tx, messagesBucket, messageStateIndex, eventsBucket)
	}); err != nil {
		return nil, err
	}
	if err := prometheus.Register(prombbolt.New("relayer_db", boltDB)); err != nil {
		// Already-registered collectors happen when tests open several
		// stores in one process; not fatal.
		log.WithError(err).Debug("Could not register bolt prometheus collector")
	}
	return kv, nil
}

func createBuckets(tx *bolt.Tx, buckets ...[]byte) error {
	for _, bucket := range buckets {
		if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying boltdb database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DatabasePath at which this database writes files.
func (s *Store) DatabasePath() string {
	return s.databasePath
}

// ClearDB removes any previously stored data at the configured path.
func (s *Store) ClearDB() error {
	if _, err := os.Stat(s.databasePath); os.IsNotExist(err) {
		return nil
	}
	return os.Remove(s.databasePath)
}

func (s *Store) update(fn func(*bolt.Tx) error) error {
	return s.db.Update(fn)
}

func (s *Store) view(fn func(*bolt.Tx) error) error {
	return s.db.View(fn)
}
