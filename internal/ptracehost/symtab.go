package ptracehost

import (
	"debug/dwarf"
	"debug/elf"
	"debug/gosym"
	"fmt"
)

// symtab resolves a program counter to a displayable function name,
// preferring DWARF (the C++ userver binaries this tool targets) and
// falling back to gosym (for Go binaries), mirroring pkg/unwinder/unwinder_linux.go's
// ELF-section recipe but widened to also carry a *dwarf.Data for
// internal/ptracehost's limited variable-lookup path.
type symtab struct {
	path  string
	gosym *gosym.Table
	dwarf *dwarf.Data
}

func loadSymtab(pid int) *symtab {
	path := fmt.Sprintf("/proc/%d/exe", pid)
	e, err := elf.Open(path)
	if err != nil {
		return nil
	}
	defer e.Close()

	st := &symtab{path: path}

	if d, err := e.DWARF(); err == nil {
		st.dwarf = d
	}

	if gosymtabSec := e.Section(".gosymtab"); gosymtabSec != nil {
		if gopclntabSec := e.Section(".gopclntab"); gopclntabSec != nil {
			if textSec := e.Section(".text"); textSec != nil {
				gosymtabData, err1 := gosymtabSec.Data()
				gopclntabData, err2 := gopclntabSec.Data()
				if err1 == nil && err2 == nil {
					table, err := gosym.NewTable(gosymtabData, gosym.NewLineTable(gopclntabData, textSec.Addr))
					if err == nil {
						st.gosym = table
					}
				}
			}
		}
	}

	if st.gosym == nil && st.dwarf == nil {
		return nil
	}
	return st
}

// FuncName resolves pc to the best display name this symtab can produce.
func (s *symtab) FuncName(pc uint64) string {
	if s == nil {
		return ""
	}
	if s.dwarf != nil {
		if name := dwarfFuncName(s.dwarf, pc); name != "" {
			return name
		}
	}
	if s.gosym != nil {
		if _, _, fn := s.gosym.PCToLine(pc); fn != nil {
			return fn.Name
		}
	}
	return ""
}

// dwarfFuncName walks DW_TAG_subprogram entries looking for the one whose
// [low_pc, high_pc) range contains pc. No inlined-subroutine handling:
// inlined frames are a known unreliable corner of sentinel detection.
func dwarfFuncName(d *dwarf.Data, pc uint64) string {
	reader := d.Reader()
	for {
		entry, err := reader.Next()
		if err != nil || entry == nil {
			return ""
		}
		if entry.Tag != dwarf.TagSubprogram {
			continue
		}
		low, ok := entry.Val(dwarf.AttrLowpc).(uint64)
		if !ok {
			continue
		}
		high, ok := highPC(entry, low)
		if !ok {
			continue
		}
		if pc >= low && pc < high {
			if name, ok := entry.Val(dwarf.AttrName).(string); ok {
				return name
			}
		}
	}
}

func highPC(entry *dwarf.Entry, low uint64) (uint64, bool) {
	switch v := entry.Val(dwarf.AttrHighpc).(type) {
	case uint64:
		// DWARF4+ commonly encodes high_pc as an offset from low_pc.
		if v < low {
			return low + v, true
		}
		return v, true
	case int64:
		// constant-class high_pc (the offset form) decodes as int64.
		return low + uint64(v), true
	default:
		return 0, false
	}
}
