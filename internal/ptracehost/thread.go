package ptracehost

import (
	"fmt"

	"github.com/itrofimow/llc2/internal/hostapi"
)

const maxWalkedFrames = 512

// thread is a hostapi.Thread for the single traced tid. Frames are
// produced by walking the RBP chain starting at the live registers
// (frame 0); this is a much cruder unwinder than a real debugger's CFI
// walker, but it's enough to drive the sentinel scan btrender does once
// llc2 has pointed the live registers at a sleeping coroutine, which is
// the only unwinding this tool's core ever needs.
type thread struct {
	proc   *Process
	frames []*frame
}

func newThread(proc *Process) *thread {
	return &thread{proc: proc}
}

func (t *thread) ensureFrames() {
	if t.frames != nil {
		return
	}
	live, err := readRegisters(t.proc.pid)
	if err != nil {
		t.frames = []*frame{}
		return
	}

	st := t.proc.symtabFor()

	frames := []*frame{{proc: t.proc, idx: 0, regs: live, pc: uint64(live.RIP()), rbp: uint64(live.RBP()), st: st, owner: t}}

	bp := uint64(live.RBP())
	for i := 1; i < maxWalkedFrames && bp != 0; i++ {
		savedBP, err := t.proc.ReadMemory(bp, 8)
		if err != nil {
			break
		}
		retAddr, err := t.proc.ReadMemory(bp+8, 8)
		if err != nil {
			break
		}
		pc := leUint64(retAddr)
		if pc == 0 {
			break
		}
		frames = append(frames, &frame{proc: t.proc, idx: i, pc: pc, st: st, rbp: leUint64(savedBP)})
		bp = leUint64(savedBP)
	}

	t.frames = frames
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func (t *thread) NumFrames() int {
	t.ensureFrames()
	return len(t.frames)
}

func (t *thread) FrameAtIndex(i int) hostapi.Frame {
	t.ensureFrames()
	if i < 0 || i >= len(t.frames) {
		return nil
	}
	return t.frames[i]
}

func (t *thread) SelectedFrame() hostapi.Frame {
	t.ensureFrames()
	if len(t.frames) == 0 {
		// registers could not be read; synthesize a dead frame 0 so
		// callers still get a non-nil Frame to fail gracefully against.
		return &frame{proc: t.proc, idx: 0}
	}
	return t.frames[0]
}

// invalidate drops the cached RBP-chain walk. Called whenever frame 0's
// live registers are rewritten (regguard swapping in a coroutine's
// RSP/RBP/RIP), since the cached walk was built from whatever registers
// were live at the time and does not track later PTRACE_SETREGS calls on
// its own.
func (t *thread) invalidate() {
	t.frames = nil
}

// frame is a hostapi.Frame. Only frame 0 (the live register set) can
// have its registers/PC rewritten — that's the one frame ptrace actually
// controls; deeper frames are reconstructions from the RBP chain and
// exist only for description/variable-scan purposes.
type frame struct {
	proc  *Process
	idx   int
	regs  *gpRegisters // non-nil only for frame 0
	pc    uint64
	rbp   uint64
	st    *symtab
	owner *thread // non-nil only for frame 0, used to invalidate the walk on SetPC
}

func (f *frame) Description() string {
	name := f.st.FuncName(f.pc)
	if name == "" {
		return fmt.Sprintf("frame #%d: 0x%016x <unknown>", f.idx, f.pc)
	}
	return fmt.Sprintf("frame #%d: 0x%016x %s", f.idx, f.pc, name)
}

func (f *frame) Registers() (hostapi.GPRegisters, error) {
	if f.regs == nil {
		return nil, fmt.Errorf("frame #%d is not the live register frame", f.idx)
	}
	return f.regs, nil
}

func (f *frame) SetPC(v int64) error {
	if f.regs == nil {
		return fmt.Errorf("frame #%d is not the live register frame", f.idx)
	}
	f.pc = uint64(v)
	err := f.regs.SetRIP(v)
	// regguard writes RSP/RBP directly through the GPRegisters returned by
	// Registers() and calls SetPC last, so this is the single point where a
	// full register swap (RSP, RBP, RIP) is known to be complete; the next
	// ensureFrames call re-walks the RBP chain from the new registers
	// instead of returning the frames built from the old ones.
	if f.owner != nil {
		f.owner.invalidate()
	}
	return err
}

func (f *frame) FindVariable(name string) (hostapi.Value, bool) {
	return findFrameVariable(f, name)
}

func (f *frame) Variables(arguments, locals bool) []hostapi.Value {
	return frameVariables(f, arguments, locals)
}
