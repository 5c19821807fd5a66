package ptracehost

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/itrofimow/llc2/internal/hostapi"
)

// Process is a hostapi.Process backed by a PTRACE_ATTACH'd pid. llc2 only
// ever touches the attached thread group leader, so there is exactly one
// thread: the traced tid itself.
type Process struct {
	pid    int
	symtab *symtab // lazily loaded, nil if unavailable
}

func newProcess(pid int) *Process {
	return &Process{pid: pid}
}

func (p *Process) MemoryRegions() []hostapi.RegionResult {
	return memoryRegions(p.pid)
}

func (p *Process) ReadMemory(addr uint64, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := unix.PtracePeekData(p.pid, uintptr(addr), buf)
	if err != nil {
		return nil, fmt.Errorf("PTRACE_PEEKDATA(0x%x, %d bytes): %w", addr, size, err)
	}
	if n != size {
		return nil, fmt.Errorf("PTRACE_PEEKDATA(0x%x): short read, wanted %d got %d", addr, size, n)
	}
	return buf, nil
}

func (p *Process) SelectedThread() (hostapi.Thread, bool) {
	return newThread(p), true
}

// symtabFor lazily resolves (and caches) the function-name symbol table
// for the traced binary, trying DWARF first (the expected case for a C++
// userver binary) and falling back to gosym (for Go binaries).
func (p *Process) symtabFor() *symtab {
	if p.symtab == nil {
		p.symtab = loadSymtab(p.pid)
	}
	return p.symtab
}
