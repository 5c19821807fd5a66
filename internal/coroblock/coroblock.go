// Package coroblock locates and decodes a coroutine's control block — the
// boost::coroutines2-style bookkeeping struct a suspended coroutine's
// runtime tucks into the top of its own stack.
package coroblock

import (
	"encoding/binary"
	"fmt"

	"github.com/itrofimow/llc2/internal/hostapi"
	"github.com/itrofimow/llc2/internal/settings"
)

const (
	blockAlignment = 64

	// sizeWithMagic/sizeNoMagic are sizeof(CoroControlBlockWithMagic) and
	// sizeof(CoroControlBlock) on x86_64: {usize/ptr, ptr, ptr, u32 state
	// (+ 4 bytes padding), ptr}. Variant A carries one extra leading usize.
	sizeWithMagic = 40
	sizeNoMagic   = 32

	magicConst = 0x12345678
)

// Address computes the highest 64-byte-aligned address within the
// reserved window at the top of the region that can hold a control block
// of the given size, mirroring TryFindCoroRegisters's reserve-then-align
// dance: reserve size+alignment bytes below region.End, then align up
// within that window.
func Address(regionEnd uint64, blockSize uint64) uint64 {
	reserved := regionEnd - blockSize - blockAlignment
	return alignUp(reserved, blockAlignment)
}

func alignUp(v, alignment uint64) uint64 {
	return (v + alignment - 1) &^ (alignment - 1)
}

// BlockSize returns the control-block size for the given magic mode.
func BlockSize(withMagic bool) uint64 {
	if withMagic {
		return sizeWithMagic
	}
	return sizeNoMagic
}

// ErrNoCoroutine indicates the region didn't contain (or didn't pass
// validation for) a suspended coroutine's control block — the orchestrator
// treats this as a silent skip.
type ErrNoCoroutine struct {
	Reason string
}

func (e *ErrNoCoroutine) Error() string { return e.Reason }

// FiberPointer reads the control block for the given region under the
// given settings and returns the embedded fiber pointer.
func FiberPointer(process hostapi.Process, region hostapi.Region, s *settings.Settings, ro hostapi.ReturnObject) (uint64, error) {
	blockSize := BlockSize(s.WithMagic)
	addr := Address(region.End, blockSize)

	data, err := process.ReadMemory(addr, int(blockSize))
	if err != nil {
		ro.Printf("Failed to read Coro::control_block from process memory: %v\n", err)
		return 0, &ErrNoCoroutine{Reason: fmt.Sprintf("read failed: %v", err)}
	}

	if s.WithMagic {
		return decodeWithMagic(data, addr, region.End, s.MmapSize(), ro)
	}
	return decodeNoMagic(data), nil
}

// layout (little-endian, x86_64):
//
//	variant A (with magic): [0x00] magic usize | [0x08] fiber ptr | [0x10] other ptr | [0x18] state u32 (+4 pad) | [0x20] except ptr
//	variant B (no magic):                         [0x00] fiber ptr | [0x08] other ptr | [0x10] state u32 (+4 pad) | [0x18] except ptr
func decodeWithMagic(data []byte, addr, regionEnd, mmapSize uint64, ro hostapi.ReturnObject) (uint64, error) {
	magic := binary.LittleEndian.Uint64(data[0:8])
	fiber := binary.LittleEndian.Uint64(data[8:16])

	remainingSize := mmapSize - (regionEnd - addr)
	expected := uint64(magicConst) ^ addr ^ remainingSize

	if magic != expected {
		ro.Printf("Magic doesn't match: expected %d, got %d\n", expected, magic)
		return 0, &ErrNoCoroutine{Reason: fmt.Sprintf("magic mismatch: expected %d, got %d", expected, magic)}
	}
	return fiber, nil
}

func decodeNoMagic(data []byte) uint64 {
	return binary.LittleEndian.Uint64(data[0:8])
}
