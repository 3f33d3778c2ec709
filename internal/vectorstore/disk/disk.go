package disk

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"transcript-parser/internal/domain"
)

const indexFile = "index.json"

// ErrNoIndex reports that no persisted index exists at the store's path.
var ErrNoIndex = errors.New("no persisted index")

// Store is a brute-force cosine similarity store persisted as a single file
// under a fixed directory. Each Replace rebuilds the index wholesale; the
// file is written to a temp name and renamed so a failed build can never
// leave a truncated index behind.
type Store struct {
	dir string

	mu        sync.RWMutex
	dimension int
	chunks    []domain.Chunk
	vectors   [][]float64
}

type entry struct {
	Chunk  domain.Chunk `json:"chunk"`
	Vector []float64    `json:"vector"`
}

type envelope struct {
	Dimension int       `json:"dimension"`
	BuiltAt   time.Time `json:"built_at"`
	Entries   []entry   `json:"entries"`
}

// New creates a store rooted at dir. Nothing is read until Load.
func New(dir string) *Store { return &Store{dir: dir} }

// Replace rebuilds the index from the given chunks and vectors and persists
// it, unconditionally overwriting any prior index at the store's path.
func (s *Store) Replace(chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	if len(chunks) == 0 {
		return errors.New("refusing to persist an empty index")
	}
	dim := len(vectors[0])
	for _, v := range vectors {
		if len(v) != dim {
			return errors.New("vector dimension mismatch")
		}
	}

	env := envelope{Dimension: dim, BuiltAt: time.Now().UTC(), Entries: make([]entry, len(chunks))}
	for i := range chunks {
		env.Entries[i] = entry{Chunk: chunks[i], Vector: vectors[i]}
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, indexFile+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, indexFile)); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	s.mu.Lock()
	s.dimension = dim
	s.chunks = chunks
	s.vectors = vectors
	s.mu.Unlock()
	return nil
}

// Load reads the persisted index into memory, replacing whatever is loaded.
func (s *Store) Load() error {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNoIndex
		}
		return fmt.Errorf("load index: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	chunks := make([]domain.Chunk, len(env.Entries))
	vectors := make([][]float64, len(env.Entries))
	for i, e := range env.Entries {
		chunks[i] = e.Chunk
		vectors[i] = e.Vector
	}
	s.mu.Lock()
	s.dimension = env.Dimension
	s.chunks = chunks
	s.vectors = vectors
	s.mu.Unlock()
	return nil
}

// Search returns up to topK chunks ranked by decreasing cosine similarity.
func (s *Store) Search(vector []float64, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 3
	}
	scores := make([]float64, len(s.vectors))
	for i := range s.vectors {
		scores[i] = cosine(s.vectors[i], vector)
	}
	idxs := argsortDesc(scores)
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.SearchResult, 0, topK)
	for i := 0; i < topK; i++ {
		j := idxs[i]
		results = append(results, domain.SearchResult{Chunk: s.chunks[j], Score: scores[j]})
	}
	return results, nil
}

// Len reports how many chunks are currently loaded.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func argsortDesc(vals []float64) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	quicksort(idxs, vals, 0, len(idxs)-1)
	return idxs
}

func quicksort(idxs []int, vals []float64, lo, hi int) {
	if lo >= hi {
		return
	}
	i, j := lo, hi
	pivot := vals[idxs[(lo+hi)/2]]
	for i <= j {
		for vals[idxs[i]] > pivot { // desc order
			i++
		}
		for vals[idxs[j]] < pivot {
			j--
		}
		if i <= j {
			idxs[i], idxs[j] = idxs[j], idxs[i]
			i++
			j--
		}
	}
	if lo < j {
		quicksort(idxs, vals, lo, j)
	}
	if i < hi {
		quicksort(idxs, vals, i, hi)
	}
}
