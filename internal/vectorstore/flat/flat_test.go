package flat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddLocksDimension(t *testing.T) {
	x := New(0)
	require.NoError(t, x.Add([][]float32{{1, 2}, {3, 4}}))
	assert.Equal(t, 2, x.Dim())
	assert.Equal(t, 2, x.Len())

	err := x.Add([][]float32{{1, 2}, {1, 2, 3}})
	var dimErr *DimensionError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 1, dimErr.Pos)
	assert.Equal(t, 2, x.Len(), "a rejected batch must not be partially stored")
}

func TestSearchOrdersByDistanceThenID(t *testing.T) {
	x := New(2)
	require.NoError(t, x.Add([][]float32{
		{5, 5},
		{1, 0},
		{0, 1},
		{0, 0},
		{-1, 0},
	}))

	hits, err := x.Search([]float32{0, 0}, 4)
	require.NoError(t, err)
	require.Len(t, hits, 4)
	assert.Equal(t, Hit{ID: 3, Distance: 0}, hits[0])
	assert.Equal(t, []uint64{1, 2, 4}, []uint64{hits[1].ID, hits[2].ID, hits[3].ID})
	for _, h := range hits[1:] {
		assert.Equal(t, float32(1), h.Distance)
	}
}

func TestSearchClampsK(t *testing.T) {
	x := New(1)
	require.NoError(t, x.Add([][]float32{{1}, {2}}))

	hits, err := x.Search([]float32{0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = x.Search([]float32{0}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchEmptyAndWrongDim(t *testing.T) {
	x := New(0)
	hits, err := x.Search([]float32{1, 2, 3}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, x.Add([][]float32{{1, 2}}))
	_, err = x.Search([]float32{1, 2, 3}, 3)
	assert.Error(t, err)
}

func TestTruncateAndReset(t *testing.T) {
	x := New(1)
	require.NoError(t, x.Add([][]float32{{1}, {2}, {3}}))
	x.Truncate(1)
	assert.Equal(t, 1, x.Len())
	assert.Equal(t, []float32{1}, x.data)

	x.Reset()
	assert.Equal(t, 0, x.Dim())
	require.NoError(t, x.Add([][]float32{{1, 2, 3}}))
	assert.Equal(t, 3, x.Dim())
}

func TestBinaryRoundTrip(t *testing.T) {
	x := New(3)
	require.NoError(t, x.Add([][]float32{{1, 2, 3}, {-4, 5.5, 0}}))
	data, err := x.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, HeaderSize+2*3*4)

	var y Index
	require.NoError(t, y.UnmarshalBinary(data))
	assert.Equal(t, 3, y.Dim())
	assert.Equal(t, 2, y.Len())
	assert.Equal(t, []float32{-4, 5.5, 0}, y.data[3:6])
}

func TestUnmarshalRejectsDamage(t *testing.T) {
	x := New(2)
	require.NoError(t, x.Add([][]float32{{1, 2}}))
	data, err := x.MarshalBinary()
	require.NoError(t, err)

	var y Index
	assert.ErrorIs(t, y.UnmarshalBinary(data[:HeaderSize-1]), ErrCorrupt)
	assert.ErrorIs(t, y.UnmarshalBinary(data[:len(data)-1]), ErrCorrupt)

	bad := append([]byte(nil), data...)
	bad[0] = 'X'
	assert.ErrorIs(t, y.UnmarshalBinary(bad), ErrCorrupt)
}
