package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var bucketVectors = []byte("vectors")

type boltRecord struct {
	Seq    uint64         `json:"seq"`
	Vector []float32      `json:"vector"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// BoltStore persists vectors in a bbolt file and serves queries from an in-memory copy.
type BoltStore struct {
	db     *bbolt.DB
	mem    *MemoryStore
	logger *zap.Logger
	// writes serializes the check-then-write in UpsertIfAbsent.
	writes sync.Mutex
}

// NewBoltStore opens (or creates) the bbolt file at path and loads every stored vector.
func NewBoltStore(path string, dimensions int, logger *zap.Logger) (*BoltStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mem, err := NewMemoryStore(dimensions)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create vector dir: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketVectors)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			var rec boltRecord
			if err := decodeJSON(v, &rec); err != nil {
				return fmt.Errorf("decode vector %s: %w", k, err)
			}
			rec.Meta = restoreNumbers(rec.Meta)
			if len(rec.Vector) != dimensions {
				return fmt.Errorf("vector %s has dimension %d, expected %d", k, len(rec.Vector), dimensions)
			}
			mem.put(string(k), rec.Seq, rec.Vector, rec.Meta)
			return nil
		})
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("bolt vector store opened", zap.String("path", path), zap.Int("vectors", mem.Size()))
	return &BoltStore{db: db, mem: mem, logger: logger}, nil
}

// Type returns the store type identifier.
func (s *BoltStore) Type() string {
	return string(TypeBolt)
}

// UpsertIfAbsent writes vec to disk and memory unless id is already stored.
func (s *BoltStore) UpsertIfAbsent(ctx context.Context, id string, vec []float32, meta map[string]any) (bool, error) {
	if len(vec) != s.mem.dimensions {
		return false, fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), s.mem.dimensions)
	}
	s.writes.Lock()
	defer s.writes.Unlock()
	if s.mem.has(id) {
		return false, nil
	}

	var seq uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		if b.Get([]byte(id)) != nil {
			return nil
		}
		next, err := b.NextSequence()
		if err != nil {
			return err
		}
		seq = next
		data, err := json.Marshal(boltRecord{Seq: seq, Vector: vec, Meta: meta})
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
	if err != nil {
		return false, fmt.Errorf("write vector %s: %w", id, err)
	}

	s.mem.mu.Lock()
	s.mem.put(id, seq, vec, meta)
	s.mem.mu.Unlock()
	return true, nil
}

// DeleteByIDs removes ids from disk and memory.
func (s *BoltStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.writes.Lock()
	defer s.writes.Unlock()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return s.mem.DeleteByIDs(ctx, ids)
}

// Query ranks stored vectors by cosine similarity to vec.
func (s *BoltStore) Query(ctx context.Context, vec []float32, k int) ([]*Match, error) {
	return s.mem.Query(ctx, vec, k)
}

// Size returns the number of stored vectors.
func (s *BoltStore) Size() int {
	return s.mem.Size()
}

// Close closes the underlying bbolt file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
