package sampler

import (
	"errors"
	"fmt"
)

// Allocator hands out scratch memory for the memory-pressure step.
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Free(buf []byte) error
}

// HeapAllocator allocates scratch buffers on the Go heap. Freed buffers are
// left to the garbage collector.
type HeapAllocator struct{}

// Alloc returns a zeroed slice of size bytes. A failed allocation is
// reported as ErrAlloc instead of panicking.
func (HeapAllocator) Alloc(size int) (buf []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, fmt.Errorf("%w: %v", ErrAlloc, r)
		}
	}()
	return make([]byte, size), nil
}

// Free is a no-op; the buffer is reclaimed by the garbage collector.
func (HeapAllocator) Free([]byte) error { return nil }

// BufferSet is the scratch memory owned by a single cycle.
type BufferSet struct {
	alloc Allocator
	bufs  [][]byte
}

// AcquireBuffers allocates count buffers of size bytes and touches every
// byte of each one. On failure the buffers allocated so far are released
// before the error is returned.
func AcquireBuffers(alloc Allocator, count, size int) (*BufferSet, error) {
	if count <= 0 || size <= 0 {
		return nil, fmt.Errorf("%w: %d buffers of %d bytes", ErrAlloc, count, size)
	}

	set := &BufferSet{
		alloc: alloc,
		bufs:  make([][]byte, 0, count),
	}
	for i := 0; i < count; i++ {
		buf, err := alloc.Alloc(size)
		if err != nil {
			if rerr := set.Release(); rerr != nil {
				err = errors.Join(err, rerr)
			}
			if !errors.Is(err, ErrAlloc) {
				err = fmt.Errorf("%w: %w", ErrAlloc, err)
			}
			return nil, fmt.Errorf("buffer %d of %d: %w", i+1, count, err)
		}
		Fill(buf)
		set.bufs = append(set.bufs, buf)
	}

	return set, nil
}

// Buffers exposes the live buffers. The slices are invalid after Release.
func (s *BufferSet) Buffers() [][]byte {
	return s.bufs
}

// Release returns every buffer to its allocator. It is safe to call more
// than once.
func (s *BufferSet) Release() error {
	var errs []error
	for i, buf := range s.bufs {
		if err := s.alloc.Free(buf); err != nil {
			errs = append(errs, fmt.Errorf("free buffer %d: %w", i, err))
		}
		s.bufs[i] = nil
	}
	s.bufs = s.bufs[:0]
	return errors.Join(errs...)
}

// Fill writes k mod 256 at every offset k so that each page is committed.
func Fill(buf []byte) {
	for k := range buf {
		buf[k] = byte(k)
	}
}
