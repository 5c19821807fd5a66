package ptracehost

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// gpRegisters is a hostapi.GPRegisters backed by the traced thread's real
// PtraceRegs, mirroring how pkg/tracer/regs wraps unix.PtraceRegs with
// typed accessors instead of reading the embedded struct fields directly
// at every call site.
type gpRegisters struct {
	tid  int
	regs unix.PtraceRegs
}

func readRegisters(tid int) (*gpRegisters, error) {
	g := &gpRegisters{tid: tid}
	if err := unix.PtraceGetRegs(tid, &g.regs); err != nil {
		return nil, fmt.Errorf("PTRACE_GETREGS(%d): %w", tid, err)
	}
	return g, nil
}

func (g *gpRegisters) RSP() int64 { return int64(g.regs.Rsp) }
func (g *gpRegisters) RBP() int64 { return int64(g.regs.Rbp) }
func (g *gpRegisters) RIP() int64 { return int64(g.regs.Rip) }

func (g *gpRegisters) SetRSP(v int64) error {
	g.regs.Rsp = uint64(v)
	return g.flush()
}

func (g *gpRegisters) SetRBP(v int64) error {
	g.regs.Rbp = uint64(v)
	return g.flush()
}

func (g *gpRegisters) SetRIP(v int64) error {
	g.regs.Rip = uint64(v)
	return g.flush()
}

func (g *gpRegisters) flush() error {
	if err := unix.PtraceSetRegs(g.tid, &g.regs); err != nil {
		return fmt.Errorf("PTRACE_SETREGS(%d): %w", g.tid, err)
	}
	return nil
}
