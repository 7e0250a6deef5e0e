package chunk

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeDataFile creates a file of n random bytes and returns its path and
// contents.
func makeDataFile(t *testing.T, n int) (string, []byte) {
	t.Helper()
	data := make([]byte, n)
	_, err := rand.Read(data)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "stream.data")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path, data
}

func TestFileProviderChunking(t *testing.T) {
	path, data := makeDataFile(t, 1000)

	p, err := NewFileProvider(path, 300)
	require.NoError(t, err)
	assert.Equal(t, int32(4), p.ChunkCount())
	assert.Equal(t, int64(1000), p.Size())
	assert.Equal(t, path, p.Path())

	sizes := []int64{300, 300, 300, 100}
	for i, want := range sizes {
		b, err := p.Chunk(int32(i), RangeHint{})
		require.NoError(t, err)
		assert.Equal(t, want, b.Size())

		got, err := b.Bytes()
		require.NoError(t, err)
		assert.Equal(t, data[i*300:min((i+1)*300, 1000)], got)
		b.Release()
	}
}

func TestFileProviderChunkHint(t *testing.T) {
	path, data := makeDataFile(t, 1000)

	p, err := NewFileProvider(path, 300)
	require.NoError(t, err)

	b, err := p.Chunk(1, RangeHint{Offset: 50, Len: 100})
	require.NoError(t, err)
	got, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, data[350:450], got)
	b.Release()

	_, err = p.Chunk(1, RangeHint{Offset: 301})
	assert.ErrorIs(t, err, ErrChunkOutOfRange)
}

func TestFileProviderOutOfRange(t *testing.T) {
	path, _ := makeDataFile(t, 1000)

	p, err := NewFileProvider(path, 300)
	require.NoError(t, err)

	_, err = p.Chunk(-1, RangeHint{})
	assert.ErrorIs(t, err, ErrChunkOutOfRange)
	_, err = p.Chunk(4, RangeHint{})
	assert.ErrorIs(t, err, ErrChunkOutOfRange)
	_, err = p.Chunk(12345, RangeHint{})
	assert.ErrorIs(t, err, ErrChunkOutOfRange)
}

func TestFileProviderEmptyFile(t *testing.T) {
	path, _ := makeDataFile(t, 0)

	p, err := NewFileProvider(path, 300)
	require.NoError(t, err)
	assert.Zero(t, p.ChunkCount())

	_, err = p.Chunk(0, RangeHint{})
	assert.ErrorIs(t, err, ErrChunkOutOfRange)
}

func TestFileProviderValidation(t *testing.T) {
	path, _ := makeDataFile(t, 10)

	_, err := NewFileProvider(path, 0)
	assert.Error(t, err)

	_, err = NewFileProvider(filepath.Join(t.TempDir(), "missing"), 300)
	assert.Error(t, err)

	_, err = NewFileProvider(t.TempDir(), 300)
	assert.Error(t, err)
}

func TestMemoryProviderChunking(t *testing.T) {
	p := NewMemoryProvider([][]byte{[]byte("first chunk"), []byte("second")})
	assert.Equal(t, int32(2), p.ChunkCount())

	b, err := p.Chunk(0, RangeHint{})
	require.NoError(t, err)
	got, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("first chunk"), got)
	b.Release()

	b, err = p.Chunk(1, RangeHint{Offset: 3, Len: 2})
	require.NoError(t, err)
	got, err = b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("on"), got)
	b.Release()

	_, err = p.Chunk(2, RangeHint{})
	assert.ErrorIs(t, err, ErrChunkOutOfRange)
	_, err = p.Chunk(-1, RangeHint{})
	assert.ErrorIs(t, err, ErrChunkOutOfRange)
}
