// Package pmm implements the kernel's physical frame allocator. The
// allocator tracks a single contiguous region of physical memory using one
// bit per frame.
package pmm

import (
	"math"

	"kestrel/kernel"
	"kestrel/kernel/mm"
)

var (
	errOutOfMemory     = &kernel.Error{Module: "pmm", Message: "out of physical memory"}
	errEmptyRegion     = &kernel.Error{Module: "pmm", Message: "memory region does not contain a full frame"}
	errFrameNotManaged = &kernel.Error{Module: "pmm", Message: "frame not managed by this allocator"}
	errDoubleFree      = &kernel.Error{Module: "pmm", Message: "frame is already free"}

	// bitmapAllocator is the allocator instance registered with mm by Init.
	bitmapAllocator BitmapAllocator
)

// BitmapAllocator tracks the allocation status of a physical memory region
// using one bit per frame. A set bit indicates that the frame is in use.
type BitmapAllocator struct {
	bitmap     []uint64
	firstFrame mm.Frame
	frameCount uint64
	freeCount  uint64
}

// init prepares the allocator to manage the physical region [regionStart,
// regionEnd). Partial frames at either end of the region are excluded.
func (alloc *BitmapAllocator) init(regionStart, regionEnd uintptr) *kernel.Error {
	alignedStart := (regionStart + mm.PageSize - 1) & ^(mm.PageSize - 1)
	alignedEnd := regionEnd & ^(mm.PageSize - 1)
	if alignedEnd <= alignedStart {
		return errEmptyRegion
	}

	alloc.firstFrame = mm.FrameFromAddress(alignedStart)
	alloc.frameCount = uint64((alignedEnd - alignedStart) >> mm.PageShift)
	alloc.freeCount = alloc.frameCount
	alloc.bitmap = make([]uint64, (alloc.frameCount+63)>>6)

	// Flag the unusable bits at the tail of the last block as allocated so
	// the scan in AllocFrame never hands them out.
	for relIndex := alloc.frameCount; relIndex < uint64(len(alloc.bitmap))<<6; relIndex++ {
		alloc.bitmap[relIndex>>6] |= uint64(1) << (63 - (relIndex & 63))
	}

	return nil
}

// AllocFrame reserves and returns the first free frame tracked by the
// allocator. It returns errOutOfMemory if all frames are in use.
func (alloc *BitmapAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	for blockIndex, block := range alloc.bitmap {
		if block == math.MaxUint64 {
			continue
		}

		for bitIndex, mask := uint64(0), uint64(1)<<63; bitIndex < 64; bitIndex, mask = bitIndex+1, mask>>1 {
			if block&mask == 0 {
				alloc.bitmap[blockIndex] |= mask
				alloc.freeCount--
				return alloc.firstFrame + mm.Frame(uint64(blockIndex)<<6+bitIndex), nil
			}
		}
	}

	return mm.InvalidFrame, errOutOfMemory
}

// FreeFrame releases a frame previously returned by AllocFrame.
func (alloc *BitmapAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	if frame < alloc.firstFrame || uint64(frame-alloc.firstFrame) >= alloc.frameCount {
		return errFrameNotManaged
	}

	relIndex := uint64(frame - alloc.firstFrame)
	mask := uint64(1) << (63 - (relIndex & 63))
	if alloc.bitmap[relIndex>>6]&mask == 0 {
		return errDoubleFree
	}

	alloc.bitmap[relIndex>>6] &^= mask
	alloc.freeCount++
	return nil
}

// FreeFrames returns the number of frames that are currently available for
// allocation.
func (alloc *BitmapAllocator) FreeFrames() uint64 {
	return alloc.freeCount
}

// TotalFrames returns the number of frames managed by the allocator.
func (alloc *BitmapAllocator) TotalFrames() uint64 {
	return alloc.frameCount
}

// Init sets up the kernel physical memory allocation sub-system for the
// region [regionStart, regionEnd) and registers it as the system frame
// allocator.
func Init(regionStart, regionEnd uintptr) *kernel.Error {
	if err := bitmapAllocator.init(regionStart, regionEnd); err != nil {
		return err
	}
	mm.SetFrameAllocator(bitmapAllocFrame)

	return nil
}

// Allocator returns the allocator instance registered by Init.
func Allocator() *BitmapAllocator {
	return &bitmapAllocator
}

func bitmapAllocFrame() (mm.Frame, *kernel.Error) {
	return bitmapAllocator.AllocFrame()
}
