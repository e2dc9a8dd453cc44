package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names, one per blob family
	bucketRoots   = []byte("roots")
	bucketNodes   = []byte("nodes")
	bucketBlocks  = []byte("blocks")
	bucketGarbage = []byte("garbage")
	bucketMisc    = []byte("misc")
)

// BoltStore implements Store using BoltDB, keeping every blob of every
// ledger in one database file. Blob families map to buckets by key shape;
// within a bucket the blob key is the full composed key so List can scan
// by prefix with a cursor.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the database file under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "strata.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketRoots,
			bucketNodes,
			bucketBlocks,
			bucketGarbage,
			bucketMisc,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// bucketFor routes a key to its blob-family bucket by the key schema's
// family segment.
func bucketFor(key string) []byte {
	switch {
	case strings.Contains(key, "_root_"):
		return bucketRoots
	case strings.Contains(key, "_block_"):
		return bucketBlocks
	case strings.Contains(key, "_garbage_"):
		return bucketGarbage
	case strings.HasSuffix(key, "-l") || strings.HasSuffix(key, "-b"):
		return bucketNodes
	default:
		return bucketMisc
	}
}

func (s *BoltStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(bucketFor(key)).Get([]byte(key)) != nil
		return nil
	})
	return ok, err
}

func (s *BoltStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketFor(key)).Get([]byte(key))
		if v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	return data, err
}

func (s *BoltStore) Write(ctx context.Context, key string, value []byte) (WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return WriteResult{}, err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFor(key)).Put([]byte(key), value)
	})
	if err != nil {
		return WriteResult{}, fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	return WriteResult{Address: key}, nil
}

func (s *BoltStore) Rename(ctx context.Context, old, new string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		ob := tx.Bucket(bucketFor(old))
		data := ob.Get([]byte(old))
		if data == nil {
			return nil
		}
		if err := tx.Bucket(bucketFor(new)).Put([]byte(new), data); err != nil {
			return err
		}
		return ob.Delete([]byte(old))
	})
}

func (s *BoltStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFor(key)).Delete([]byte(key))
	})
}

func (s *BoltStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		buckets := [][]byte{bucketRoots, bucketNodes, bucketBlocks, bucketGarbage, bucketMisc}
		for _, name := range buckets {
			c := tx.Bucket(name).Cursor()
			p := []byte(prefix)
			for k, _ := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
				keys = append(keys, string(k))
			}
		}
		return nil
	})
	sort.Strings(keys)
	return keys, err
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}
