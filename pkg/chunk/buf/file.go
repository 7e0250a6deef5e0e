package buf

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

// FileSegment is a Buffer backed by a byte range of a file. The file stays
// open until the last reference is released.
type FileSegment struct {
	file   *os.File
	path   string
	offset int64
	length int64
	refs   refCount
}

// NewFileSegment opens path and exposes length bytes starting at offset. The
// range is validated against the file size before any reference exists, so a
// bad range never needs releasing.
func NewFileSegment(path string, offset, length int64) (*FileSegment, error) {
	if offset < 0 || length < 0 {
		return nil, errors.Newf("negative file segment range [%d,+%d) for %s", offset, length, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open segment file")
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "stat segment file")
	}
	if offset+length > st.Size() {
		_ = f.Close()
		return nil, errors.Newf("file segment [%d,+%d) exceeds %d bytes of %s", offset, length, st.Size(), path)
	}

	s := &FileSegment{file: f, path: path, offset: offset, length: length}
	s.refs.n.Store(1)
	return s, nil
}

// Path returns the backing file path.
func (s *FileSegment) Path() string {
	return s.path
}

// Offset returns the segment start within the file.
func (s *FileSegment) Offset() int64 {
	return s.offset
}

// Size returns the segment length.
func (s *FileSegment) Size() int64 {
	return s.length
}

// Bytes reads the whole segment with a single positioned read.
func (s *FileSegment) Bytes() ([]byte, error) {
	s.refs.mustBeLive()
	p := make([]byte, s.length)
	if _, err := s.file.ReadAt(p, s.offset); err != nil {
		return nil, errors.Wrapf(err, "read file segment %s[%d,+%d)", s.path, s.offset, s.length)
	}
	return p, nil
}

// WriteTo streams the segment into w directly from the file descriptor.
// The transfer advances the segment's file offset, so a single segment must
// not be written concurrently.
func (s *FileSegment) WriteTo(w io.Writer) (int64, error) {
	s.refs.mustBeLive()
	if _, err := s.file.Seek(s.offset, io.SeekStart); err != nil {
		return 0, errors.Wrapf(err, "seek file segment %s", s.path)
	}
	return io.CopyN(w, s.file, s.length)
}

// Retain increments the reference count.
func (s *FileSegment) Retain() {
	s.refs.retain()
}

// Release decrements the reference count and closes the file at zero. Close
// errors on the read-only handle are discarded.
func (s *FileSegment) Release() {
	if s.refs.release() {
		_ = s.file.Close()
	}
}
