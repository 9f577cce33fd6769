// Package storage allocates backing memory for a CircularBuffer.
//
// The buffer itself never allocates; callers hand it a []byte. Region is a
// convenience for callers that want that memory outside the Go heap: on
// supported unix systems it is an anonymous private mapping, elsewhere (or if
// the mapping fails) it is a plain heap slice.
package storage

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when a closed Region is used.
var ErrClosed = errors.New("storage: region closed")

// Region is a block of backing memory. It must outlive every buffer that
// borrows it.
type Region struct {
	data   []byte
	mapped bool
}

// Heap returns a Region backed by an ordinary Go slice.
func Heap(size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("storage: invalid size %d", size)
	}
	return &Region{data: make([]byte, size)}, nil
}

// Allocate returns a memory-mapped Region when the platform supports it and
// falls back to Heap otherwise.
func Allocate(size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("storage: invalid size %d", size)
	}

	data, err := mapAnonymous(size)
	if err != nil {
		return Heap(size)
	}

	return &Region{data: data, mapped: true}, nil
}

// Bytes returns the region's memory, or nil once closed.
func (r *Region) Bytes() []byte {
	return r.data
}

// Len returns the region size in bytes.
func (r *Region) Len() int {
	return len(r.data)
}

// Mapped reports whether the region lives in an mmap'd segment.
func (r *Region) Mapped() bool {
	return r.mapped
}

// Close releases the region. Buffers still pointing at it must not be used
// afterwards.
func (r *Region) Close() error {
	if r.data == nil {
		return ErrClosed
	}

	data := r.data
	r.data = nil

	if !r.mapped {
		return nil
	}

	r.mapped = false
	return unmap(data)
}
