package buf_test

import (
	"fmt"
	"os"
	"strings"

	"github.com/shufflekit/chunknet/pkg/chunk/buf"
)

// Example of using a pooled buffer
func ExampleNewPooled() {
	// Get buffer from pool
	b := buf.NewPooled(1024)
	defer b.Release()

	// Use buffer
	copy(b.Data(), []byte("Hello, World!"))
	fmt.Printf("Data: %s\n", b.Data()[:13])

	// Output: Data: Hello, World!
}

// Example of using a buffer with a custom release hook
func ExampleNewMemoryWithRelease() {
	size := 1024
	data := make([]byte, size)

	// Create buffer with custom release hook
	b := buf.NewMemoryWithRelease(data, func(data []byte) {
		// Custom cleanup (e.g., return to an arena, unmap, etc.)
		fmt.Println("Release hook called")
	})

	// Use buffer
	copy(b.Data(), []byte("Data with custom cleanup"))

	// Final release runs the hook
	b.Release()

	// Output: Release hook called
}

// Example of reference counting
func ExampleMemory_Retain() {
	b := buf.NewPooled(1024)

	// Share buffer
	b.Retain() // refCount = 2

	// First release
	b.Release() // refCount = 1

	// Buffer still valid
	copy(b.Data(), []byte("Still valid"))
	fmt.Printf("Data: %s\n", b.Data()[:11])

	// Final release
	b.Release() // refCount = 0, returns to pool

	// Output: Data: Still valid
}

// Example of a basic buffer (GC managed)
func ExampleNewMemory() {
	b := buf.NewMemory([]byte("GC managed"))

	data, _ := b.Bytes()
	fmt.Printf("Data: %s\n", data)

	// Final release, GC reclaims the slice
	b.Release()

	// Output: Data: GC managed
}

// Example of serving a file slice without loading it into memory
func ExampleNewFileSegment() {
	f, _ := os.CreateTemp("", "segment")
	defer os.Remove(f.Name())
	f.WriteString("## chunk payload ##")
	f.Close()

	s, _ := buf.NewFileSegment(f.Name(), 3, 13)
	defer s.Release()

	var sb strings.Builder
	s.WriteTo(&sb)
	fmt.Printf("Data: %s\n", sb.String())

	// Output: Data: chunk payload
}
