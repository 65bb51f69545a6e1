// Package flat is an exact nearest-neighbour index over squared L2 distance.
// Vectors are addressed by their insertion position.
package flat

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// File header (v1):
	//   0..7   magic "DRAGFLT1"
	//   8..11  dim (uint32)
	//   12..19 count (uint64)
	// followed by count*dim little-endian float32 values.
	HeaderSize = 20
)

var fileMagic = [8]byte{'D', 'R', 'A', 'G', 'F', 'L', 'T', '1'}

// ErrCorrupt is returned when serialized data cannot be decoded.
var ErrCorrupt = errors.New("flat: corrupt index data")

// Hit is one search result.
type Hit struct {
	ID       uint64
	Distance float32
}

// Index stores vectors contiguously. It is not safe for concurrent use.
type Index struct {
	dim  int
	data []float32
}

// New returns an empty index. A zero dim is locked by the first Add.
func New(dim int) *Index { return &Index{dim: dim} }

// Dim returns the vector dimension, or 0 when not yet known.
func (x *Index) Dim() int { return x.dim }

// Len returns the number of stored vectors.
func (x *Index) Len() int {
	if x.dim == 0 {
		return 0
	}
	return len(x.data) / x.dim
}

// Add appends vectors. All of them are checked before anything is stored.
func (x *Index) Add(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	dim := x.dim
	if dim == 0 {
		dim = len(vectors[0])
		if dim == 0 {
			return fmt.Errorf("flat: empty vector")
		}
	}
	for i, v := range vectors {
		if len(v) != dim {
			return &DimensionError{Want: dim, Got: len(v), Pos: i}
		}
	}
	x.dim = dim
	for _, v := range vectors {
		x.data = append(x.data, v...)
	}
	return nil
}

// Truncate drops every vector at position n or later.
func (x *Index) Truncate(n int) {
	if n < x.Len() {
		x.data = x.data[:n*x.dim]
	}
}

// Reset empties the index and forgets its dimension.
func (x *Index) Reset() {
	x.dim = 0
	x.data = nil
}

// Search returns the k nearest vectors by squared L2 distance, nearest first.
// Equal distances are ordered by ascending id.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	n := x.Len()
	if n == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != x.dim {
		return nil, &DimensionError{Want: x.dim, Got: len(query), Pos: -1}
	}
	dists := make([]float32, n)
	for i := 0; i < n; i++ {
		d := SquaredL2(query, x.data[i*x.dim:(i+1)*x.dim])
		if d != d {
			d = float32(math.Inf(1))
		}
		dists[i] = d
	}
	idxs := argsortAsc(dists)
	if k > n {
		k = n
	}
	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		hits[i] = Hit{ID: uint64(idxs[i]), Distance: dists[idxs[i]]}
	}
	return hits, nil
}

// DimensionError reports a vector whose length differs from the index.
type DimensionError struct {
	Want, Got int
	// Pos is the offending position in the input batch, -1 for queries.
	Pos int
}

func (e *DimensionError) Error() string {
	if e.Pos < 0 {
		return fmt.Sprintf("flat: query dim %d != index dim %d", e.Got, e.Want)
	}
	return fmt.Sprintf("flat: vector %d has dim %d, index dim %d", e.Pos, e.Got, e.Want)
}

// SquaredL2 returns the squared Euclidean distance between a and b.
func SquaredL2(a, b []float32) float32 {
	var s float32
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

// MarshalBinary encodes the header followed by the raw vectors.
func (x *Index) MarshalBinary() ([]byte, error) {
	out := make([]byte, HeaderSize+4*len(x.data))
	copy(out[0:8], fileMagic[:])
	binary.LittleEndian.PutUint32(out[8:12], uint32(x.dim))
	binary.LittleEndian.PutUint64(out[12:20], uint64(x.Len()))
	off := HeaderSize
	for _, v := range x.data {
		binary.LittleEndian.PutUint32(out[off:off+4], math.Float32bits(v))
		off += 4
	}
	return out, nil
}

// UnmarshalBinary restores an index produced by MarshalBinary.
func (x *Index) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: short header", ErrCorrupt)
	}
	if [8]byte(data[0:8]) != fileMagic {
		return fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	dim := int(binary.LittleEndian.Uint32(data[8:12]))
	count := binary.LittleEndian.Uint64(data[12:20])
	if count > 0 && dim == 0 {
		return fmt.Errorf("%w: %d vectors without dimension", ErrCorrupt, count)
	}
	if count > uint64(len(data)) {
		return fmt.Errorf("%w: count %d exceeds data size", ErrCorrupt, count)
	}
	want := uint64(HeaderSize) + count*uint64(dim)*4
	if uint64(len(data)) != want {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrCorrupt, want, len(data))
	}
	values := make([]float32, count*uint64(dim))
	off := HeaderSize
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
		off += 4
	}
	x.dim = dim
	x.data = values
	return nil
}

func argsortAsc(vals []float32) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	quicksort(idxs, vals, 0, len(idxs)-1)
	return idxs
}

func less(vals []float32, a, b int) bool {
	if vals[a] != vals[b] {
		return vals[a] < vals[b]
	}
	return a < b
}

func quicksort(idxs []int, vals []float32, lo, hi int) {
	if lo >= hi {
		return
	}
	i, j := lo, hi
	pivot := idxs[(lo+hi)/2]
	for i <= j {
		for less(vals, idxs[i], pivot) {
			i++
		}
		for less(vals, pivot, idxs[j]) {
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
