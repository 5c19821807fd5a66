package orchestrator

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/itrofimow/llc2/internal/btrender"
	"github.com/itrofimow/llc2/internal/coroblock"
	"github.com/itrofimow/llc2/internal/hostapi"
	"github.com/itrofimow/llc2/internal/hostfake"
	"github.com/itrofimow/llc2/internal/settings"
	"gotest.tools/v3/assert"
)

// resetSettings clears the process-wide settings singleton by forcing a
// failing Init (Init always clears before validating).
func resetSettings(t *testing.T) {
	t.Helper()
	_, _ = settings.Init(nil)
}

// writeFcontextCoroutine lays out a valid fcontext-backed coroutine
// control block plus fiber save area inside region [begin, begin+realStackSize),
// for settings s, with the save area at fiberPtr.
func writeFcontextCoroutine(proc *hostfake.Process, s *settings.Settings, regionBegin, regionEnd, fiberPtr uint64, rbp, rip int64) {
	blockSize := coroblock.BlockSize(s.WithMagic)
	addr := coroblock.Address(regionEnd, blockSize)

	block := make([]byte, blockSize)
	if s.WithMagic {
		mmapSize := s.MmapSize()
		remaining := mmapSize - (regionEnd - addr)
		expected := uint64(0x12345678) ^ addr ^ remaining
		binary.LittleEndian.PutUint64(block[0:8], expected)
		binary.LittleEndian.PutUint64(block[8:16], fiberPtr)
	} else {
		binary.LittleEndian.PutUint64(block[0:8], fiberPtr)
	}
	proc.WriteMemory(addr, block)

	save := make([]byte, 0x40)
	binary.LittleEndian.PutUint64(save[0x30:0x38], uint64(rbp))
	binary.LittleEndian.PutUint64(save[0x38:0x40], uint64(rip))
	proc.WriteMemory(fiberPtr, save)
}

func TestExecuteUninitializedFails(t *testing.T) {
	resetSettings(t)

	dbg := &hostfake.Debugger{Width: 80, NoTgt: true}
	ro := &hostfake.ReturnObject{}

	r := Run{Debugger: dbg, Sentinels: btrender.DefaultSentinels()}
	err := r.Execute(nil, ro)

	assert.ErrorContains(t, err, "LLC2 plugin is not initialized")
	assert.Assert(t, strings.Contains(ro.Joined(), "LLC2 plugin is not initialized"))
	assert.Assert(t, ro.Failed)
}

func TestExecuteNoTargetFails(t *testing.T) {
	_, err := settings.Init([]string{"-s", "262144", "-c", "ucontext"})
	assert.NilError(t, err)

	dbg := &hostfake.Debugger{Width: 80, NoTgt: true}
	ro := &hostfake.ReturnObject{}

	r := Run{Debugger: dbg, Sentinels: btrender.DefaultSentinels()}
	err = r.Execute(nil, ro)

	assert.ErrorContains(t, err, "No target selected")
	assert.Assert(t, strings.Contains(ro.Joined(), "No target selected"))
	assert.Assert(t, ro.Failed)
}

func TestExecuteNoProcessFails(t *testing.T) {
	_, err := settings.Init([]string{"-s", "262144", "-c", "ucontext"})
	assert.NilError(t, err)

	dbg := &hostfake.Debugger{Width: 80, Tgt: &hostfake.Target{NoProc: true}}
	ro := &hostfake.ReturnObject{}

	r := Run{Debugger: dbg, Sentinels: btrender.DefaultSentinels()}
	err = r.Execute(nil, ro)

	assert.ErrorContains(t, err, "No process launched")
}

func TestExecuteNoThreadFails(t *testing.T) {
	_, err := settings.Init([]string{"-s", "262144", "-c", "ucontext"})
	assert.NilError(t, err)

	proc := hostfake.NewProcess() // no Thread set
	dbg := &hostfake.Debugger{Width: 80, Tgt: &hostfake.Target{Proc: proc}}
	ro := &hostfake.ReturnObject{}

	r := Run{Debugger: dbg, Sentinels: btrender.DefaultSentinels()}
	err = r.Execute(nil, ro)

	assert.ErrorContains(t, err, "No thread selected")
}

func TestExecuteMagicMismatchEmitsDiagnosticNoTitle(t *testing.T) {
	s, err := settings.Init([]string{"-s", "262144", "-c", "fcontext", "-m"})
	assert.NilError(t, err)

	const regionBegin = uint64(0x10000000)
	regionEnd := regionBegin + s.RealStackSize()

	proc := hostfake.NewProcess()
	proc.Regions = []hostapi.Region{{Begin: regionBegin, End: regionEnd}}

	addr := coroblock.Address(regionEnd, coroblock.BlockSize(true))
	block := make([]byte, coroblock.BlockSize(true))
	binary.LittleEndian.PutUint64(block[0:8], 0) // wrong magic
	proc.WriteMemory(addr, block)

	proc.Thread = &hostfake.Thread{Regs: &hostfake.Registers{}}
	dbg := &hostfake.Debugger{Width: 80, Tgt: &hostfake.Target{Proc: proc}}
	ro := &hostfake.ReturnObject{}

	r := Run{Debugger: dbg, Sentinels: btrender.DefaultSentinels()}
	assert.NilError(t, r.Execute(nil, ro))

	joined := ro.Joined()
	assert.Assert(t, strings.Contains(joined, "Magic doesn't match: expected"))
	assert.Assert(t, !strings.Contains(joined, "FOUND SLEEPING COROUTINE"))
}

func TestExecuteValidFcontextCoroutineIsRenderedAndRegistersRestored(t *testing.T) {
	s, err := settings.Init([]string{"-s", "262144", "-c", "fcontext"})
	assert.NilError(t, err)

	const regionBegin = uint64(0x10000000)
	regionEnd := regionBegin + s.RealStackSize()
	const fiberPtr = uint64(0x20000000)

	proc := hostfake.NewProcess()
	proc.Regions = []hostapi.Region{{Begin: regionBegin, End: regionEnd}}
	writeFcontextCoroutine(proc, s, regionBegin, regionEnd, fiberPtr, -0x2152411100000000, -0x3501454200000000)

	origRegs := &hostfake.Registers{Rsp: 1, Rbp: 2, Rip: 3}
	sleepFrame := &hostfake.Frame{Desc: "engine::impl::TaskContext::Sleep(...)", Regs: origRegs}
	thread := &hostfake.Thread{Frames: []*hostfake.Frame{{Desc: "outer()"}, sleepFrame}, Regs: origRegs}
	proc.Thread = thread

	dbg := &hostfake.Debugger{Width: 80, Tgt: &hostfake.Target{Proc: proc}}
	ro := &hostfake.ReturnObject{}

	r := Run{Debugger: dbg, Sentinels: btrender.DefaultSentinels()}
	assert.NilError(t, r.Execute(nil, ro))

	joined := ro.Joined()
	assert.Assert(t, strings.Contains(joined, "FOUND SLEEPING COROUTINE"))
	assert.Assert(t, strings.Contains(joined, "coro stack address: 0x10000000"))

	// registers restored to their pre-bt values after the guard scope ends
	assert.Equal(t, int64(1), origRegs.Rsp)
	assert.Equal(t, int64(2), origRegs.Rbp)
	assert.Equal(t, int64(3), origRegs.Rip)
}

func TestExecuteFullModeIncludesFrameHeaders(t *testing.T) {
	s, err := settings.Init([]string{"-s", "262144", "-c", "fcontext"})
	assert.NilError(t, err)

	const regionBegin = uint64(0x10000000)
	regionEnd := regionBegin + s.RealStackSize()
	const fiberPtr = uint64(0x20000000)

	proc := hostfake.NewProcess()
	proc.Regions = []hostapi.Region{{Begin: regionBegin, End: regionEnd}}
	writeFcontextCoroutine(proc, s, regionBegin, regionEnd, fiberPtr, 0x1111, 0x2222)

	regs := &hostfake.Registers{}
	sleepFrame := &hostfake.Frame{
		Desc: "engine::impl::TaskContext::Sleep(...)",
		Regs: regs,
		Args: []*hostfake.Value{{Desc: "arg=1"}},
	}
	entryFrame := &hostfake.Frame{Desc: "utils::impl::WrappedCallImpl<Task>(...)"}
	thread := &hostfake.Thread{Frames: []*hostfake.Frame{{Desc: "outer()"}, sleepFrame, entryFrame}, Regs: regs}
	proc.Thread = thread

	dbg := &hostfake.Debugger{Width: 80, Tgt: &hostfake.Target{Proc: proc}}
	ro := &hostfake.ReturnObject{}

	r := Run{Debugger: dbg, Sentinels: btrender.DefaultSentinels()}
	assert.NilError(t, r.Execute([]string{"-f"}, ro))

	joined := ro.Joined()
	assert.Assert(t, strings.Contains(joined, "FRAME ARGUMENTS"))
	assert.Assert(t, strings.Contains(joined, "arg=1"))
}

func TestExecuteStackFilterRestrictsToOneRegion(t *testing.T) {
	s, err := settings.Init([]string{"-s", "262144", "-c", "fcontext"})
	assert.NilError(t, err)

	const beginA = uint64(0x10000000)
	const beginB = uint64(0x10100000)
	endA := beginA + s.RealStackSize()
	endB := beginB + s.RealStackSize()

	proc := hostfake.NewProcess()
	proc.Regions = []hostapi.Region{{Begin: beginA, End: endA}, {Begin: beginB, End: endB}}
	writeFcontextCoroutine(proc, s, beginA, endA, 0x20000000, 0x1111, 0x2222)
	writeFcontextCoroutine(proc, s, beginB, endB, 0x20100000, 0x3333, 0x4444)

	regs := &hostfake.Registers{}
	sleepFrame := &hostfake.Frame{Desc: "engine::impl::TaskContext::Sleep(...)", Regs: regs}
	thread := &hostfake.Thread{Frames: []*hostfake.Frame{{Desc: "outer()"}, sleepFrame}, Regs: regs}
	proc.Thread = thread

	dbg := &hostfake.Debugger{Width: 80, Tgt: &hostfake.Target{Proc: proc}}
	ro := &hostfake.ReturnObject{}

	r := Run{Debugger: dbg, Sentinels: btrender.DefaultSentinels()}
	assert.NilError(t, r.Execute([]string{"-s", "10100000"}, ro))

	joined := ro.Joined()
	assert.Assert(t, strings.Contains(joined, "coro stack address: 0x10100000"))
	assert.Assert(t, !strings.Contains(joined, "coro stack address: 0x10000000"))
}

func TestParseBtArgsDiscardsPartialHex(t *testing.T) {
	out := ParseBtArgs([]string{"-s", "deadbeefzz"})
	assert.Assert(t, out.StackAddress == nil)
}

func TestParseBtArgsAcceptsFullHex(t *testing.T) {
	out := ParseBtArgs([]string{"-s", "10100000", "-f"})
	assert.Assert(t, out.StackAddress != nil)
	assert.Equal(t, uint64(0x10100000), *out.StackAddress)
	assert.Equal(t, true, out.Full)
}

func TestExecuteRecoversPanic(t *testing.T) {
	_, err := settings.Init([]string{"-s", "262144", "-c", "ucontext"})
	assert.NilError(t, err)

	proc := hostfake.NewProcess()
	proc.Thread = &hostfake.Thread{Regs: &hostfake.Registers{}}
	proc.PanicOnMemoryRegions = true

	dbg := &hostfake.Debugger{Width: 80, Tgt: &hostfake.Target{Proc: proc}}
	ro := &hostfake.ReturnObject{}

	r := Run{Debugger: dbg, Sentinels: btrender.DefaultSentinels()}
	err = r.Execute(nil, ro)

	assert.ErrorContains(t, err, "recovered from panic")
	assert.Assert(t, ro.Failed)
}
