// Package fiberctx extracts the three unwind registers (RSP, RBP, RIP)
// from a suspended coroutine's fiber pointer. Which algorithm to use is a
// tagged-variant dispatch on settings.ContextImplementation — no
// subclassing, just a switch.
package fiberctx

import (
	"encoding/binary"
	"fmt"

	"github.com/itrofimow/llc2/internal/hostapi"
	"github.com/itrofimow/llc2/internal/settings"
)

// Registers are the three x86_64 SysV registers that fully describe a
// suspended coroutine's resumption point.
type Registers struct {
	RSP int64
	RBP int64
	RIP int64
}

// ucontextPreambleBytes is the gap between the fiber pointer and the
// embedded ucontext_t. Why +8 and not 0 is not documented anywhere in the
// runtime this was reverse-engineered from; treat it as an empirically
// determined constant tied to the activation record's layout, not a bug
// to "fix".
const ucontextPreambleBytes = 8

// sizeof(ucontext_t) on x86_64 Linux glibc. mcontext_t's gregs array
// starts at a fixed offset inside it; REG_RSP/REG_RBP/REG_RIP are glibc's
// indices into gregs (15, 10, 16 respectively).
const (
	ucontextSize = 968
	gregsOffset  = 40 // offsetof(ucontext_t, uc_mcontext.gregs)
	regRSP       = 15
	regRBP       = 10
	regRIP       = 16
)

func gregAt(data []byte, idx int) int64 {
	off := gregsOffset + idx*8
	return int64(binary.LittleEndian.Uint64(data[off : off+8]))
}

// FromUContext reads a ucontext_t at fiberPtr+8 and extracts RSP/RBP/RIP
// from its gregs array.
func FromUContext(process hostapi.Process, fiberPtr uint64, ro hostapi.ReturnObject) (*Registers, error) {
	data, err := process.ReadMemory(fiberPtr+ucontextPreambleBytes, ucontextSize)
	if err != nil {
		ro.Printf("Failed to read ucontext from process memory: %v\n", err)
		return nil, fmt.Errorf("failed to read ucontext at 0x%x: %w", fiberPtr+ucontextPreambleBytes, err)
	}
	return &Registers{
		RSP: gregAt(data, regRSP),
		RBP: gregAt(data, regRBP),
		RIP: gregAt(data, regRIP),
	}, nil
}

// fcontextDataSize is sizeof the 64-byte Boost.Context x86_64 SysV save
// area jump_fcontext reads registers from.
const fcontextDataSize = 0x40

const (
	fcOffRBP = 0x30
	fcOffRIP = 0x38
)

// FromFContext reads the 64-byte fcontext save area at fiberPtr. RSP is
// derived (fiberPtr+0x40, the post-jump stack pointer jump_fcontext
// establishes), RBP/RIP are read directly out of the save area.
//
//	  0x00: fc_mxcsr(4)+fc_x87_cw(4)  0x08: R12  0x10: R13  0x18: R14
//	  0x20: R15  0x28: RBX  0x30: RBP  0x38: RIP
func FromFContext(process hostapi.Process, fiberPtr uint64, ro hostapi.ReturnObject) (*Registers, error) {
	data, err := process.ReadMemory(fiberPtr, fcontextDataSize)
	if err != nil {
		ro.Printf("Failed to read fcontext from process memory: %v\n", err)
		return nil, fmt.Errorf("failed to read fcontext at 0x%x: %w", fiberPtr, err)
	}
	rbp := int64(binary.LittleEndian.Uint64(data[fcOffRBP : fcOffRBP+8]))
	rip := int64(binary.LittleEndian.Uint64(data[fcOffRIP : fcOffRIP+8]))
	return &Registers{
		RSP: int64(fiberPtr) + fcontextDataSize,
		RBP: rbp,
		RIP: rip,
	}, nil
}

// Extract dispatches to FromUContext or FromFContext based on
// s.ContextImpl.
func Extract(process hostapi.Process, fiberPtr uint64, s *settings.Settings, ro hostapi.ReturnObject) (*Registers, error) {
	switch s.ContextImpl {
	case settings.FContext:
		return FromFContext(process, fiberPtr, ro)
	default:
		return FromUContext(process, fiberPtr, ro)
	}
}
