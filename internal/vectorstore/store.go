// Package vectorstore pairs a flat vector index with a metadata log and keeps
// both on disk as one unit.
package vectorstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"docrag/internal/domain"
	"docrag/internal/vectorstore/flat"
)

const (
	IndexFile    = "vectors.idx"
	MetadataFile = "metadata.json"
)

// Store is an append-only vector index with positionally aligned metadata.
// Entry i always describes vector i. Readers may run concurrently with each
// other; mutations are serialized.
type Store struct {
	mu      sync.RWMutex
	dir     string
	index   *flat.Index
	entries []domain.Entry
}

// New returns an empty store persisting to dir. An empty dir keeps the store
// in memory only.
func New(dir string) *Store {
	return &Store{dir: dir, index: flat.New(0)}
}

// Open returns a store for dir and loads any previously persisted state.
func Open(dir string) (*Store, error) {
	s := New(dir)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Insert appends vectors and their entries, assigning IDs that continue the
// current sequence. Nothing is appended if any input is rejected. The new
// state is persisted before Insert returns; on a persistence failure the
// in-memory append is undone.
func (s *Store) Insert(vectors [][]float32, entries []domain.Entry) ([]uint64, error) {
	const op = "vectorstore.insert"
	if len(vectors) != len(entries) {
		return nil, domain.E(domain.KindLengthMismatch, op, "%d vectors for %d entries", len(vectors), len(entries))
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prevLen := len(s.entries)
	prevDim := s.index.Dim()
	if err := s.index.Add(vectors); err != nil {
		var dimErr *flat.DimensionError
		if errors.As(err, &dimErr) {
			return nil, domain.Wrap(domain.KindDimensionMismatch, op, err)
		}
		return nil, domain.Wrap(domain.KindInvalidInput, op, err)
	}

	ids := make([]uint64, len(entries))
	for i, e := range entries {
		e.ID = uint64(prevLen + i)
		ids[i] = e.ID
		s.entries = append(s.entries, e)
	}

	if err := s.persistLocked(); err != nil {
		s.index.Truncate(prevLen)
		if prevDim == 0 {
			s.index.Reset()
		}
		s.entries = s.entries[:prevLen]
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ids, nil
}

// Search returns up to k entries nearest to query, nearest first.
func (s *Store) Search(query []float32, k int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits, err := s.index.Search(query, k)
	if err != nil {
		return nil, domain.Wrap(domain.KindDimensionMismatch, "vectorstore.search", err)
	}
	results := make([]domain.SearchResult, len(hits))
	for i, h := range hits {
		results[i] = domain.SearchResult{Entry: s.entries[h.ID], Distance: h.Distance}
	}
	return results, nil
}

// Clear drops all vectors and entries, removes the persisted files and
// unlocks the dimension. An empty pair is persisted before memory is reset,
// so a failure leaves both the files and the store unchanged, and a crash
// while removing the files leaves at most one file describing an empty
// store, which Load accepts.
func (s *Store) Clear() error {
	const op = "vectorstore.clear"
	s.mu.Lock()
	defer s.mu.Unlock()

	prevIndex, prevEntries := s.index, s.entries
	s.index, s.entries = flat.New(0), nil
	if err := s.persistLocked(); err != nil {
		s.index, s.entries = prevIndex, prevEntries
		return fmt.Errorf("%s: %w", op, err)
	}
	if s.dir == "" {
		return nil
	}
	for _, name := range []string{MetadataFile, IndexFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	log.Printf("vectorstore: cleared %s", s.dir)
	return nil
}

// Len returns the number of stored vectors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Dimension returns the locked vector dimension, or 0 for an empty store.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Dim()
}

// Entries returns a copy of the metadata log.
func (s *Store) Entries() []domain.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Entry(nil), s.entries...)
}

// Stats counts vectors, distinct documents and chunks.
func (s *Store) Stats() domain.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make(map[string]struct{})
	for _, e := range s.entries {
		docs[e.Filename] = struct{}{}
	}
	return domain.Stats{
		TotalVectors:   s.index.Len(),
		TotalDocuments: len(docs),
		TotalChunks:    len(s.entries),
		Dimension:      s.index.Dim(),
	}
}

// Persist writes the index and metadata to disk.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// Load replaces the in-memory state with the persisted one. Missing files
// yield an empty store. A store whose index and metadata disagree is
// reported as KindCorruptIndex and left untouched.
func (s *Store) Load() error {
	const op = "vectorstore.load"
	if s.dir == "" {
		return nil
	}

	indexData, indexErr := os.ReadFile(filepath.Join(s.dir, IndexFile))
	metaData, metaErr := os.ReadFile(filepath.Join(s.dir, MetadataFile))
	indexMissing := errors.Is(indexErr, os.ErrNotExist)
	metaMissing := errors.Is(metaErr, os.ErrNotExist)
	switch {
	case indexMissing && metaMissing:
		s.mu.Lock()
		s.index.Reset()
		s.entries = nil
		s.mu.Unlock()
		return nil
	case indexMissing != metaMissing:
		if !loneFileEmpty(indexData, indexErr, metaData, metaErr) {
			return domain.E(domain.KindCorruptIndex, op, "only one of %s and %s exists in %s", IndexFile, MetadataFile, s.dir)
		}
		log.Printf("vectorstore: lone empty file in %s, starting empty", s.dir)
		s.mu.Lock()
		s.index.Reset()
		s.entries = nil
		s.mu.Unlock()
		return nil
	case indexErr != nil:
		return fmt.Errorf("%s: %w", op, indexErr)
	case metaErr != nil:
		return fmt.Errorf("%s: %w", op, metaErr)
	}

	index := flat.New(0)
	if err := index.UnmarshalBinary(indexData); err != nil {
		return domain.Wrap(domain.KindCorruptIndex, op, err)
	}
	var entries []domain.Entry
	if err := json.Unmarshal(metaData, &entries); err != nil {
		return domain.E(domain.KindCorruptIndex, op, "decode %s: %w", MetadataFile, err)
	}
	if index.Len() != len(entries) {
		return domain.E(domain.KindCorruptIndex, op, "index holds %d vectors but metadata has %d entries", index.Len(), len(entries))
	}
	for i, e := range entries {
		if e.ID != uint64(i) {
			return domain.E(domain.KindCorruptIndex, op, "entry %d has id %d", i, e.ID)
		}
	}

	s.mu.Lock()
	s.index = index
	s.entries = entries
	s.mu.Unlock()
	log.Printf("vectorstore: loaded %d vectors (dim %d) from %s", len(entries), index.Dim(), s.dir)
	return nil
}

// loneFileEmpty reports whether the single file present describes an empty
// store, as left behind by an interrupted Clear.
func loneFileEmpty(indexData []byte, indexErr error, metaData []byte, metaErr error) bool {
	if indexErr == nil {
		index := flat.New(0)
		return index.UnmarshalBinary(indexData) == nil && index.Len() == 0
	}
	if metaErr == nil {
		var entries []domain.Entry
		return json.Unmarshal(metaData, &entries) == nil && len(entries) == 0
	}
	return false
}

// persistLocked writes both files to temporaries and renames them into place.
// The index header carries the vector count, so a crash between the two
// renames is detected by Load as a length mismatch.
func (s *Store) persistLocked() error {
	if s.dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	indexData, err := s.index.MarshalBinary()
	if err != nil {
		return err
	}
	entries := s.entries
	if entries == nil {
		entries = []domain.Entry{}
	}
	metaData, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	indexPath := filepath.Join(s.dir, IndexFile)
	metaPath := filepath.Join(s.dir, MetadataFile)
	indexTmp, err := writeTemp(s.dir, IndexFile, indexData)
	if err != nil {
		return err
	}
	metaTmp, err := writeTemp(s.dir, MetadataFile, metaData)
	if err != nil {
		_ = os.Remove(indexTmp)
		return err
	}
	if err := os.Rename(indexTmp, indexPath); err != nil {
		_ = os.Remove(indexTmp)
		_ = os.Remove(metaTmp)
		return err
	}
	if err := os.Rename(metaTmp, metaPath); err != nil {
		_ = os.Remove(metaTmp)
		return err
	}
	return nil
}

func writeTemp(dir, name string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
