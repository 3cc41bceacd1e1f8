package storage

import (
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// ErrNotFound is returned by Get when the key is absent from the store.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store.
// This allows the settlement state to use any database backend (in-memory or persistent).
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	// NewBatch returns a write batch that is applied atomically by Write.
	NewBatch() Batch
	Write(batch Batch) error
	Close() error
}

// Batch accumulates writes that are applied in a single step.
type Batch interface {
	Put(key []byte, value []byte)
	Len() int
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Len reports the number of stored keys.
func (db *MemDB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.data)
}

func (db *MemDB) NewBatch() Batch {
	return &memBatch{}
}

func (db *MemDB) Write(batch Batch) error {
	b, ok := batch.(*memBatch)
	if !ok {
		return errors.New("storage: foreign batch")
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, w := range b.writes {
		db.data[string(w.key)] = w.value
	}
	return nil
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() error {
	// Nothing to close for an in-memory database.
	return nil
}

type memWrite struct {
	key   []byte
	value []byte
}

type memBatch struct {
	writes []memWrite
}

func (b *memBatch) Put(key []byte, value []byte) {
	b.writes = append(b.writes, memWrite{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
}

func (b *memBatch) Len() int { return len(b.writes) }

// --- Persistent DB (for deployments) ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (ldb *LevelDB) NewBatch() Batch {
	return &levelBatch{batch: new(leveldb.Batch)}
}

// Write applies the batch through LevelDB's own atomic batch write.
func (ldb *LevelDB) Write(batch Batch) error {
	b, ok := batch.(*levelBatch)
	if !ok {
		return errors.New("storage: foreign batch")
	}
	return ldb.db.Write(b.batch, nil)
}

// Close closes the database connection.
func (ldb *LevelDB) Close() error {
	return ldb.db.Close()
}

type levelBatch struct {
	batch *leveldb.Batch
}

func (b *levelBatch) Put(key []byte, value []byte) { b.batch.Put(key, value) }

func (b *levelBatch) Len() int { return b.batch.Len() }
