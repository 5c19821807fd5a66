package ptracehost

import (
	"debug/dwarf"

	"github.com/itrofimow/llc2/internal/hostapi"
)

// value is a hostapi.Value anchored to a live address in the traced
// process and (when known) a DWARF type, scoped to exactly the
// operations btrender's span-extraction path needs: member lookup,
// pointer dereference, an unsigned read, and a display type name. This
// is not a general DWARF expression evaluator (see DESIGN.md's scope
// note) — no location lists, no register-relative expressions beyond the
// simplified frame-base approximation in dwarfvars.go.
type value struct {
	proc *Process
	addr uint64
	typ  dwarf.Type
	desc string
}

func (v *value) Description() string {
	if v.desc != "" {
		return v.desc
	}
	return ""
}

func (v *value) DisplayTypeName() string {
	if v.typ == nil {
		return ""
	}
	return v.typ.String()
}

func (v *value) ValueAsUnsigned() uint64 {
	size := typeSize(v.typ)
	if size == 0 || size > 8 {
		size = 8
	}
	data, err := v.proc.ReadMemory(v.addr, size)
	if err != nil {
		return 0
	}
	return leUint64(padTo8(data))
}

func (v *value) AddressOf() uint64 { return v.addr }

func (v *value) Dereference() (hostapi.Value, bool) {
	ptr := v.ValueAsUnsigned()
	if ptr == 0 {
		return nil, false
	}
	var pointee dwarf.Type
	if pt, ok := v.typ.(*dwarf.PtrType); ok {
		pointee = pt.Type
	}
	return &value{proc: v.proc, addr: ptr, typ: pointee}, true
}

func (v *value) ChildMemberWithName(name string) (hostapi.Value, bool) {
	structType := stripTypedefsAndQualifiers(v.typ)
	st, ok := structType.(*dwarf.StructType)
	if !ok {
		return nil, false
	}
	for _, f := range st.Field {
		if f.Name == name {
			return &value{proc: v.proc, addr: v.addr + uint64(f.ByteOffset), typ: f.Type}, true
		}
	}
	return nil, false
}

func padTo8(b []byte) []byte {
	if len(b) >= 8 {
		return b[:8]
	}
	out := make([]byte, 8)
	copy(out, b)
	return out
}

func typeSize(t dwarf.Type) int {
	if t == nil {
		return 0
	}
	return int(t.Size())
}

func stripTypedefsAndQualifiers(t dwarf.Type) dwarf.Type {
	for {
		switch v := t.(type) {
		case *dwarf.TypedefType:
			t = v.Type
		case *dwarf.QualType:
			t = v.Type
		default:
			return t
		}
	}
}
