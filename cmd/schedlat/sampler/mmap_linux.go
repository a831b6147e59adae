//go:build linux

package sampler

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// MmapAllocator maps anonymous private pages for every buffer and unmaps
// them on Free, so each cycle faults in fresh pages from the kernel.
type MmapAllocator struct{}

// NewMmapAllocator returns an MmapAllocator. It never fails on Linux.
func NewMmapAllocator() (MmapAllocator, error) {
	return MmapAllocator{}, nil
}

// Alloc maps size bytes of anonymous memory.
func (MmapAllocator) Alloc(size int) ([]byte, error) {
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d bytes: %w", ErrAlloc, size, err)
	}
	return buf, nil
}

// Free unmaps a buffer returned by Alloc.
func (MmapAllocator) Free(buf []byte) error {
	if err := unix.Munmap(buf); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}
