package chunk

import (
	"os"

	"github.com/cockroachdb/errors"

	"github.com/shufflekit/chunknet/pkg/chunk/buf"
)

// FileProvider serves a file as consecutive fixed-size chunks backed by file
// segments. The last chunk may be short.
type FileProvider struct {
	path      string
	size      int64
	chunkSize int64
}

// NewFileProvider stats path and splits it into chunkSize-byte chunks.
func NewFileProvider(path string, chunkSize int64) (*FileProvider, error) {
	if chunkSize <= 0 {
		return nil, errors.Newf("chunk size %d must be positive", chunkSize)
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "stat chunk file")
	}
	if st.IsDir() {
		return nil, errors.Newf("%s is a directory", path)
	}
	return &FileProvider{path: path, size: st.Size(), chunkSize: chunkSize}, nil
}

// Path returns the backing file path.
func (p *FileProvider) Path() string {
	return p.path
}

// Size returns the file size in bytes.
func (p *FileProvider) Size() int64 {
	return p.size
}

// ChunkCount returns the number of chunks the file splits into.
func (p *FileProvider) ChunkCount() int32 {
	return int32((p.size + p.chunkSize - 1) / p.chunkSize)
}

// Chunk returns a file segment over the requested chunk range.
func (p *FileProvider) Chunk(chunkIndex int32, hint RangeHint) (buf.Buffer, error) {
	if chunkIndex < 0 || chunkIndex >= p.ChunkCount() {
		return nil, errors.Wrapf(ErrChunkOutOfRange, "chunk %d of %d", chunkIndex, p.ChunkCount())
	}

	start := int64(chunkIndex) * p.chunkSize
	length := p.chunkSize
	if start+length > p.size {
		length = p.size - start
	}

	off, n, err := hint.slice(length)
	if err != nil {
		return nil, err
	}
	return buf.NewFileSegment(p.path, start+off, n)
}

// MemoryProvider serves pre-materialized chunks. Handed-out buffers share the
// underlying slices; each carries its own reference count.
type MemoryProvider struct {
	chunks [][]byte
}

// NewMemoryProvider creates a provider over the given chunks.
func NewMemoryProvider(chunks [][]byte) *MemoryProvider {
	return &MemoryProvider{chunks: chunks}
}

// ChunkCount returns the number of chunks.
func (p *MemoryProvider) ChunkCount() int32 {
	return int32(len(p.chunks))
}

// Chunk returns an in-memory buffer over the requested chunk range.
func (p *MemoryProvider) Chunk(chunkIndex int32, hint RangeHint) (buf.Buffer, error) {
	if chunkIndex < 0 || int(chunkIndex) >= len(p.chunks) {
		return nil, errors.Wrapf(ErrChunkOutOfRange, "chunk %d of %d", chunkIndex, len(p.chunks))
	}

	data := p.chunks[chunkIndex]
	off, n, err := hint.slice(int64(len(data)))
	if err != nil {
		return nil, err
	}
	return buf.NewMemory(data[off : off+n]), nil
}
