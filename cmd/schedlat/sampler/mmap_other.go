//go:build !linux

package sampler

import "errors"

var errMmapUnsupported = errors.New("mmap allocator is only supported on linux")

type MmapAllocator struct{}

func NewMmapAllocator() (MmapAllocator, error) {
	return MmapAllocator{}, errMmapUnsupported
}

func (MmapAllocator) Alloc(int) ([]byte, error) { return nil, errMmapUnsupported }

func (MmapAllocator) Free([]byte) error { return errMmapUnsupported }
