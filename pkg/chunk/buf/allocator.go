package buf

import "sync"

// Pooled size classes. Fetch payloads cluster around the serving chunk size,
// so classes run from small control payloads up to 8MB chunks.
const (
	size512  = 512
	size4K   = 4 << 10
	size16K  = 16 << 10
	size64K  = 64 << 10
	size256K = 256 << 10
	size1M   = 1 << 20
	size4M   = 4 << 20
	size8M   = 8 << 20
)

var classes = [...]int{size512, size4K, size16K, size64K, size256K, size1M, size4M, size8M}

var pools = buildPools()

func buildPools() [len(classes)]*sync.Pool {
	var ps [len(classes)]*sync.Pool
	for i, size := range classes {
		size := size // pre-Go 1.22 loop variable capture
		ps[i] = &sync.Pool{New: func() any { return make([]byte, size) }}
	}
	return ps
}

// alloc returns a slice of exactly size bytes, pool-backed when a class fits.
// Oversized requests fall through to plain GC-managed allocations.
func alloc(size int) []byte {
	for i, class := range classes {
		if size <= class {
			return pools[i].Get().([]byte)[:size]
		}
	}
	return make([]byte, size)
}

// free returns a pool-backed slice to its class. Slices whose capacity does
// not match a class are left for the GC.
func free(p []byte) {
	c := cap(p)
	for i, class := range classes {
		if c == class {
			pools[i].Put(p[:class])
			return
		}
	}
}
