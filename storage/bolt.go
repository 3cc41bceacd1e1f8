package storage

import (
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"
)

var stateBucket = []byte("state")

// BoltDB stores key-value pairs in a single bucket of a bbolt file.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB opens (or creates) a bbolt database at path.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltDB{db: db}, nil
}

func (b *BoltDB) Put(key []byte, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).Put(key, value)
	})
}

func (b *BoltDB) Get(key []byte) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(stateBucket).Get(key)
		if raw == nil {
			return ErrNotFound
		}
		// bbolt values are only valid for the lifetime of the transaction.
		out = append([]byte(nil), raw...)
		return nil
	})
	return out, err
}

func (b *BoltDB) NewBatch() Batch {
	return &memBatch{}
}

// Write applies every batched write inside one bbolt update transaction.
func (b *BoltDB) Write(batch Batch) error {
	mb, ok := batch.(*memBatch)
	if !ok {
		return errors.New("storage: foreign batch")
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(stateBucket)
		for _, w := range mb.writes {
			if err := bucket.Put(w.key, w.value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltDB) Close() error {
	return b.db.Close()
}
