package backbone

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// Cache stores embeddings keyed by trunk name and image content hash, so
// that repeated training and evaluation runs skip the trunk.
type Cache struct {
	db *leveldb.DB
}

// OpenCache opens or creates a LevelDB feature cache in dir.
func OpenCache(dir string) (*Cache, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{
		OpenFilesCacheCapacity: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open feature cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// NewMemCache returns a cache backed by memory only.
func NewMemCache() (*Cache, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Get returns the cached embedding for key. ok is false on a miss.
func (c *Cache) Get(key string) ([]float64, bool, error) {
	val, err := c.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(val)%8 != 0 {
		// Corrupt entry, treat as a miss and let Put overwrite it.
		return nil, false, nil
	}
	return decodeVector(val), true, nil
}

// Put stores emb under key.
func (c *Cache) Put(key string, emb []float64) error {
	return c.db.Put([]byte(key), encodeVector(emb), nil)
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float64 {
	v := make([]float64, len(buf)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return v
}
