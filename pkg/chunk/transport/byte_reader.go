package transport

import (
	"io"
)

// Utility functions for reading fixed-size big-endian fields

// readUint32BE reads 4 bytes and returns as uint32 (big endian)
func readUint32BE(r io.ByteReader) (uint32, error) {
	b0, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	b1, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	b2, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	b3, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	return uint32(b0)<<24 | uint32(b1)<<16 | uint32(b2)<<8 | uint32(b3), nil
}

// readUint64BE reads 8 bytes and returns as uint64 (big endian)
func readUint64BE(r io.ByteReader) (uint64, error) {
	hi, err := readUint32BE(r)
	if err != nil {
		return 0, err
	}
	lo, err := readUint32BE(r)
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<32 | uint64(lo), nil
}
