// Package hostfake is an in-memory implementation of internal/hostapi,
// used by the core packages' tests in place of a real debugger. It plays
// the same role pkg/profile's direct construction plays in gomodjail's
// own tests: no mocking framework, just a small hand-written stand-in.
package hostfake

import (
	"encoding/binary"
	"fmt"

	"github.com/itrofimow/llc2/internal/hostapi"
)

// Process is a fake hostapi.Process backed by a flat byte-addressable
// memory map.
type Process struct {
	Regions              []hostapi.Region
	RegionErrs           map[int]error // index -> error, for regions that fail to enumerate
	Mem                  map[uint64][]byte
	Thread               *Thread
	ReadMemoryErr        map[uint64]error // addr -> forced read error
	PanicOnMemoryRegions bool             // exercises command-boundary panic recovery in tests
}

func NewProcess() *Process {
	return &Process{Mem: make(map[uint64][]byte)}
}

// WriteMemory stores bytes at addr for later ReadMemory calls.
func (p *Process) WriteMemory(addr uint64, b []byte) {
	p.Mem[addr] = append([]byte(nil), b...)
}

// WriteUint64 stores a little-endian u64 at addr.
func (p *Process) WriteUint64(addr uint64, v uint64) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	p.WriteMemory(addr, b)
}

func (p *Process) MemoryRegions() []hostapi.RegionResult {
	if p.PanicOnMemoryRegions {
		panic("hostfake: forced panic in MemoryRegions")
	}
	out := make([]hostapi.RegionResult, len(p.Regions))
	for i, r := range p.Regions {
		if err := p.RegionErrs[i]; err != nil {
			out[i] = hostapi.RegionResult{Err: err}
			continue
		}
		out[i] = hostapi.RegionResult{Region: r}
	}
	return out
}

func (p *Process) ReadMemory(addr uint64, size int) ([]byte, error) {
	if err := p.ReadMemoryErr[addr]; err != nil {
		return nil, err
	}
	out := make([]byte, size)
	for i := 0; i < size; i++ {
		b, ok := p.Mem[addr+uint64(i)]
		if ok && len(b) > 0 {
			out[i] = b[0]
			continue
		}
		// fall back to scanning stored byte slices for overlap
		found := false
		for base, bytes := range p.Mem {
			if addr+uint64(i) >= base && addr+uint64(i) < base+uint64(len(bytes)) {
				out[i] = bytes[addr+uint64(i)-base]
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("hostfake: no memory recorded at 0x%x", addr+uint64(i))
		}
	}
	return out, nil
}

func (p *Process) SelectedThread() (hostapi.Thread, bool) {
	if p.Thread == nil {
		return nil, false
	}
	return p.Thread, true
}

// Target is a fake hostapi.Target.
type Target struct {
	Proc   *Process
	NoProc bool
}

func (t *Target) Process() (hostapi.Process, bool) {
	if t.NoProc || t.Proc == nil {
		return nil, false
	}
	return t.Proc, true
}

// Debugger is a fake hostapi.Debugger.
type Debugger struct {
	Width int
	Tgt   *Target
	NoTgt bool
}

func (d *Debugger) TerminalWidth() int { return d.Width }

func (d *Debugger) SelectedTarget() (hostapi.Target, bool) {
	if d.NoTgt || d.Tgt == nil {
		return nil, false
	}
	return d.Tgt, true
}

// Registers is a fake hostapi.GPRegisters.
type Registers struct {
	Rsp, Rbp, Rip int64
	SetErr        error
}

func (r *Registers) RSP() int64 { return r.Rsp }
func (r *Registers) RBP() int64 { return r.Rbp }
func (r *Registers) RIP() int64 { return r.Rip }

func (r *Registers) SetRSP(v int64) error {
	if r.SetErr != nil {
		return r.SetErr
	}
	r.Rsp = v
	return nil
}

func (r *Registers) SetRBP(v int64) error {
	if r.SetErr != nil {
		return r.SetErr
	}
	r.Rbp = v
	return nil
}

func (r *Registers) SetRIP(v int64) error {
	if r.SetErr != nil {
		return r.SetErr
	}
	r.Rip = v
	return nil
}

// Thread is a fake hostapi.Thread.
type Thread struct {
	Frames   []*Frame
	Regs     *Registers
	selFrame *Frame // lazily created frame 0 stand-in when Frames is empty
}

func (t *Thread) NumFrames() int { return len(t.Frames) }

func (t *Thread) FrameAtIndex(i int) hostapi.Frame {
	if i < 0 || i >= len(t.Frames) {
		return nil
	}
	return t.Frames[i]
}

// SelectedFrame returns the thread's "live" frame: by convention frame 0,
// the frame whose registers regguard installs/restores. The same Frame
// object is returned across calls so writes (e.g. SetPC) are observable.
func (t *Thread) SelectedFrame() hostapi.Frame {
	if len(t.Frames) > 0 {
		f := t.Frames[0]
		if f.Regs == nil {
			f.Regs = t.Regs
		}
		return f
	}
	if t.selFrame == nil {
		t.selFrame = &Frame{Regs: t.Regs}
	}
	return t.selFrame
}

// PC returns the program counter last written to the thread's selected
// frame, for test assertions.
func (t *Thread) PC() int64 {
	return t.SelectedFrame().(*Frame).PC
}

// Frame is a fake hostapi.Frame.
type Frame struct {
	Desc     string
	FuncName string
	Vars     map[string]*Value
	Args     []*Value
	Locals   []*Value
	Regs     *Registers
	PC       int64
}

func (f *Frame) Description() string { return f.Desc }

func (f *Frame) Registers() (hostapi.GPRegisters, error) {
	return f.Regs, nil
}

func (f *Frame) SetPC(v int64) error {
	f.PC = v
	return nil
}

func (f *Frame) FindVariable(name string) (hostapi.Value, bool) {
	v, ok := f.Vars[name]
	if !ok {
		return nil, false
	}
	return v, true
}

func (f *Frame) Variables(arguments, locals bool) []hostapi.Value {
	var out []hostapi.Value
	if arguments {
		for _, v := range f.Args {
			out = append(out, v)
		}
	}
	if locals {
		for _, v := range f.Locals {
			out = append(out, v)
		}
	}
	return out
}

// Value is a fake hostapi.Value.
type Value struct {
	Desc     string
	TypeName string
	Unsigned uint64
	Addr     uint64
	DerefTo  *Value
	DerefOk  bool
	Members  map[string]*Value
}

func (v *Value) Description() string    { return v.Desc }
func (v *Value) DisplayTypeName() string { return v.TypeName }
func (v *Value) ValueAsUnsigned() uint64 { return v.Unsigned }
func (v *Value) AddressOf() uint64       { return v.Addr }

func (v *Value) Dereference() (hostapi.Value, bool) {
	if !v.DerefOk || v.DerefTo == nil {
		return nil, false
	}
	return v.DerefTo, true
}

func (v *Value) ChildMemberWithName(name string) (hostapi.Value, bool) {
	m, ok := v.Members[name]
	if !ok {
		return nil, false
	}
	return m, true
}

// ReturnObject is a fake hostapi.ReturnObject that records everything
// printed/appended, for assertions in tests.
type ReturnObject struct {
	Lines  []string
	Failed bool
}

func (r *ReturnObject) Printf(format string, args ...any) int {
	s := fmt.Sprintf(format, args...)
	r.Lines = append(r.Lines, s)
	return len(s)
}

func (r *ReturnObject) AppendMessage(s string) {
	r.Lines = append(r.Lines, s)
}

func (r *ReturnObject) SetFailure() {
	r.Failed = true
}

// Joined concatenates every line recorded so far, useful for substring
// assertions in tests.
func (r *ReturnObject) Joined() string {
	out := ""
	for _, l := range r.Lines {
		out += l
	}
	return out
}
