package buf

import (
	"io"

	"go.uber.org/atomic"
)

// Buffer is a reference-counted view of chunk bytes. A buffer starts with one
// reference; Retain adds holders and Release drops them. The final Release
// frees the backing resource, and any data access after that panics.
type Buffer interface {
	io.WriterTo

	// Size returns the number of bytes the buffer exposes.
	Size() int64

	// Bytes materializes the whole view. The slice is valid only while the
	// caller holds a reference.
	Bytes() ([]byte, error)

	// Retain adds a reference.
	Retain()

	// Release drops a reference, freeing the backing resource at zero.
	Release()
}

// refCount implements the shared retain/release discipline.
type refCount struct {
	n atomic.Int32
}

func (rc *refCount) retain() {
	for {
		n := rc.n.Load()
		if n <= 0 {
			panic("buf: retain after final release")
		}
		if rc.n.CompareAndSwap(n, n+1) {
			return
		}
	}
}

// release reports whether the last reference was dropped.
func (rc *refCount) release() bool {
	n := rc.n.Dec()
	if n < 0 {
		panic("buf: release of freed buffer")
	}
	return n == 0
}

func (rc *refCount) mustBeLive() {
	if rc.n.Load() <= 0 {
		panic("buf: use after release")
	}
}

// Memory is an in-memory Buffer. An optional release hook returns the backing
// slice to its owner once the last reference is dropped.
type Memory struct {
	data    []byte
	release func([]byte)
	refs    refCount
}

// NewMemory creates a GC-managed in-memory buffer over data.
func NewMemory(data []byte) *Memory {
	return NewMemoryWithRelease(data, nil)
}

// NewPooled creates an in-memory buffer backed by the package allocator. The
// backing slice returns to its pool on final release.
func NewPooled(size int) *Memory {
	return NewMemoryWithRelease(alloc(size), free)
}

// NewMemoryWithRelease creates an in-memory buffer with a custom release hook.
func NewMemoryWithRelease(data []byte, release func([]byte)) *Memory {
	m := &Memory{data: data, release: release}
	m.refs.n.Store(1)
	return m
}

// Data returns the backing slice for in-place fills.
func (m *Memory) Data() []byte {
	m.refs.mustBeLive()
	return m.data
}

// Size returns the length of the backing slice.
func (m *Memory) Size() int64 {
	return int64(len(m.data))
}

// Bytes returns the backing slice without copying.
func (m *Memory) Bytes() ([]byte, error) {
	m.refs.mustBeLive()
	return m.data, nil
}

// WriteTo writes the whole view into w.
func (m *Memory) WriteTo(w io.Writer) (int64, error) {
	m.refs.mustBeLive()
	n, err := w.Write(m.data)
	return int64(n), err
}

// Retain increments the reference count.
func (m *Memory) Retain() {
	m.refs.retain()
}

// Release decrements the reference count and runs the release hook at zero.
func (m *Memory) Release() {
	if m.refs.release() && m.release != nil {
		m.release(m.data)
		m.data = nil
	}
}
