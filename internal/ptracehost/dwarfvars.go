package ptracehost

import (
	"debug/dwarf"

	"github.com/itrofimow/llc2/internal/hostapi"
)

const (
	dwOpAddr  = 0x03
	dwOpFbreg = 0x91
)

// frameBaseOffset approximates DW_OP_call_frame_cfa for the common x86_64
// SysV prologue (push %rbp; mov %rsp,%rbp): the canonical frame address
// sits 16 bytes above the frame's own RBP (the saved RBP slot plus the
// return address slot). Compilers that omit frame pointers, or use a
// non-standard prologue, aren't handled — consistent with the scope note
// in DESIGN.md that this isn't a general DWARF expression evaluator.
func frameBaseOffset(rbp uint64) uint64 {
	return rbp + 16
}

// evalSimpleLocation decodes just enough of a DWARF location expression
// to resolve "this"-style formal parameters: a bare DW_OP_addr (static
// address) or DW_OP_fbreg (frame-base-relative, via frameBaseOffset).
func evalSimpleLocation(loc []byte, frameBase uint64) (uint64, bool) {
	if len(loc) == 0 {
		return 0, false
	}
	switch loc[0] {
	case dwOpAddr:
		if len(loc) < 9 {
			return 0, false
		}
		return leUint64(loc[1:9]), true
	case dwOpFbreg:
		off, ok := decodeSLEB128(loc[1:])
		if !ok {
			return 0, false
		}
		return uint64(int64(frameBase) + off), true
	default:
		return 0, false
	}
}

func decodeSLEB128(b []byte) (int64, bool) {
	var result int64
	var shift uint
	for i := 0; i < len(b); i++ {
		by := b[i]
		result |= int64(by&0x7f) << shift
		shift += 7
		if by&0x80 == 0 {
			if shift < 64 && by&0x40 != 0 {
				result |= -1 << shift
			}
			return result, true
		}
	}
	return 0, false
}

// subprogramFor returns the DW_TAG_subprogram entry whose PC range
// contains pc, if any.
func subprogramFor(d *dwarf.Data, pc uint64) *dwarf.Entry {
	reader := d.Reader()
	for {
		entry, err := reader.Next()
		if err != nil || entry == nil {
			return nil
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
			return entry
		}
	}
}

func findFrameVariable(f *frame, name string) (hostapi.Value, bool) {
	vars := frameVariableEntries(f, true, true)
	for _, v := range vars {
		if v.name == name {
			return v.value, true
		}
	}
	return nil, false
}

func frameVariables(f *frame, arguments, locals bool) []hostapi.Value {
	entries := frameVariableEntries(f, arguments, locals)
	out := make([]hostapi.Value, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.value)
	}
	return out
}

type namedValue struct {
	name  string
	value *value
}

func frameVariableEntries(f *frame, arguments, locals bool) []namedValue {
	if f.st == nil || f.st.dwarf == nil {
		return nil
	}
	sub := subprogramFor(f.st.dwarf, f.pc)
	if sub == nil {
		return nil
	}

	frameBase := frameBaseOffset(f.rbp)

	var out []namedValue
	reader := f.st.dwarf.Reader()
	reader.Seek(sub.Offset)
	// skip the subprogram entry itself, then walk entries at its
	// immediate nesting depth until the sibling terminator (a zero-Tag
	// entry) closes this scope; deeper (nested lexical block) entries
	// are skipped rather than recursed into.
	reader.Next()
	depth := 0
	for {
		entry, err := reader.Next()
		if err != nil || entry == nil {
			break
		}
		if entry.Tag == 0 {
			if depth == 0 {
				break
			}
			depth--
			continue
		}
		if depth > 0 {
			if entry.Children {
				depth++
			}
			continue
		}
		if entry.Children {
			depth++
		}

		isArg := entry.Tag == dwarf.TagFormalParameter
		isLocal := entry.Tag == dwarf.TagVariable
		if !isArg && !isLocal {
			continue
		}
		if (isArg && !arguments) || (isLocal && !locals) {
			continue
		}
		name, _ := entry.Val(dwarf.AttrName).(string)
		loc, ok := entry.Val(dwarf.AttrLocation).([]byte)
		if !ok {
			continue
		}
		addr, ok := evalSimpleLocation(loc, frameBase)
		if !ok {
			continue
		}
		var typ dwarf.Type
		if off, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok {
			typ, _ = f.st.dwarf.Type(off)
		}
		out = append(out, namedValue{name: name, value: &value{proc: f.proc, addr: addr, typ: typ, desc: name}})
	}
	return out
}
