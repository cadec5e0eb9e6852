package vector

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// MemoryStore is an in-memory vector store using brute-force cosine search.
// Suitable for tests and small libraries. When opened with a path it is loaded from
// and saved to that file.
type MemoryStore struct {
	dimensions int
	entries    map[string]*memEntry
	nextSeq    uint64
	path       string
	mu         sync.RWMutex
}

type memEntry struct {
	seq  uint64
	vec  []float32
	norm float64
	meta map[string]any
}

// NewMemoryStore creates an empty in-memory store with the given dimension.
func NewMemoryStore(dimensions int) (*MemoryStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryStore{
		dimensions: dimensions,
		entries:    make(map[string]*memEntry),
	}, nil
}

// OpenMemoryStore creates a store backed by the snapshot at path. The snapshot is
// loaded now (a missing file is fine) and written back on Close.
func OpenMemoryStore(dimensions int, path string) (*MemoryStore, error) {
	m, err := NewMemoryStore(dimensions)
	if err != nil {
		return nil, err
	}
	if err := m.Load(path); err != nil {
		return nil, err
	}
	m.path = path
	return m, nil
}

// Type returns the store type identifier.
func (m *MemoryStore) Type() string {
	return string(TypeMemory)
}

// UpsertIfAbsent stores vec under id unless id is already present.
func (m *MemoryStore) UpsertIfAbsent(ctx context.Context, id string, vec []float32, meta map[string]any) (bool, error) {
	if len(vec) != m.dimensions {
		return false, fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), m.dimensions)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; ok {
		return false, nil
	}
	m.put(id, m.nextSeq, vec, meta)
	return true, nil
}

// put inserts or replaces id. Callers hold the write lock.
func (m *MemoryStore) put(id string, seq uint64, vec []float32, meta map[string]any) {
	cp := make([]float32, len(vec))
	copy(cp, vec)
	m.entries[id] = &memEntry{seq: seq, vec: cp, norm: norm(cp), meta: copyMeta(meta)}
	if seq >= m.nextSeq {
		m.nextSeq = seq + 1
	}
}

func (m *MemoryStore) has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[id]
	return ok
}

// DeleteByIDs removes vectors by ID.
func (m *MemoryStore) DeleteByIDs(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

// Query returns the top-k entries by cosine similarity. Equal similarities are ordered by insertion.
func (m *MemoryStore) Query(ctx context.Context, vec []float32, k int) ([]*Match, error) {
	if len(vec) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(vec), m.dimensions)
	}
	qnorm := norm(vec)

	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.entries) == 0 {
		return nil, nil
	}

	type scored struct {
		id  string
		sim float64
		e   *memEntry
	}
	scores := make([]scored, 0, len(m.entries))
	for id, e := range m.entries {
		scores = append(scores, scored{id: id, sim: cosineWithNorms(vec, e.vec, qnorm, e.norm), e: e})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].sim != scores[j].sim {
			return scores[i].sim > scores[j].sim
		}
		return scores[i].e.seq < scores[j].e.seq
	})
	if k > len(scores) {
		k = len(scores)
	}
	result := make([]*Match, k)
	for i := 0; i < k; i++ {
		s := scores[i]
		result[i] = &Match{
			ID:         s.id,
			Similarity: s.sim,
			Score:      ScoreFromSimilarity(s.sim),
			Meta:       copyMeta(s.e.meta),
		}
	}
	return result, nil
}

// Size returns the number of vectors in the store.
func (m *MemoryStore) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close writes the snapshot when the store was opened with a path.
func (m *MemoryStore) Close() error {
	if m.path == "" {
		return nil
	}
	return m.Save(m.path)
}

// Save persists the store to path. Directory is created if needed. Format: dimension (4), n (4),
// then per entry in insertion order: idLen (4), id bytes, seq (8), vector (dimension*4 bytes),
// metaLen (4), JSON metadata.
func (m *MemoryStore) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := m.writeSnapshot(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

func (m *MemoryStore) writeSnapshot(w io.Writer) error {
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return m.entries[ids[i]].seq < m.entries[ids[j]].seq })

	if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(ids))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, id := range ids {
		e := m.entries[id]
		metaJSON, err := json.Marshal(e.meta)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", id, err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(id))); err != nil {
			return fmt.Errorf("write id len: %w", err)
		}
		if _, err := io.WriteString(w, id); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, e.seq); err != nil {
			return fmt.Errorf("write seq: %w", err)
		}
		if _, err := w.Write(float32SliceToBytes(e.vec)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(metaJSON))); err != nil {
			return fmt.Errorf("write meta len: %w", err)
		}
		if _, err := w.Write(metaJSON); err != nil {
			return fmt.Errorf("write meta: %w", err)
		}
	}
	return nil
}

// Load reads the store from path and replaces the in-memory contents. Dimensions must match.
// If the file does not exist, no error is returned and the store is unchanged.
func (m *MemoryStore) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open snapshot file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, store expects %d", dim, m.dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*memEntry, n)
	m.nextSeq = 0
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var idLen uint32
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return fmt.Errorf("read id len: %w", err)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBytes); err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		var seq uint64
		if err := binary.Read(r, binary.LittleEndian, &seq); err != nil {
			return fmt.Errorf("read seq: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		var metaLen uint32
		if err := binary.Read(r, binary.LittleEndian, &metaLen); err != nil {
			return fmt.Errorf("read meta len: %w", err)
		}
		metaJSON := make([]byte, metaLen)
		if _, err := io.ReadFull(r, metaJSON); err != nil {
			return fmt.Errorf("read meta: %w", err)
		}
		var meta map[string]any
		if err := decodeJSON(metaJSON, &meta); err != nil {
			return fmt.Errorf("decode meta: %w", err)
		}
		meta = restoreNumbers(meta)
		m.put(string(idBytes), seq, bytesToFloat32Slice(buf), meta)
	}
	return nil
}

// decodeJSON unmarshals data keeping numbers as json.Number so int64 ids survive intact.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// restoreNumbers replaces json.Number values in meta with int64 when they are integers and
// float64 otherwise.
func restoreNumbers(meta map[string]any) map[string]any {
	for k, v := range meta {
		meta[k] = restoreNumber(v)
	}
	return meta
}

func restoreNumber(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		return restoreNumbers(x)
	case []any:
		for i := range x {
			x[i] = restoreNumber(x[i])
		}
		return x
	default:
		return v
	}
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
