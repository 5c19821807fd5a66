// Package ptracehost is a concrete, standalone hostapi.Debugger backend:
// it attaches to an already-running process via PTRACE_ATTACH and speaks
// directly to /proc and the traced thread's registers, instead of relying
// on an actual debugger (lldb) session. It exists so "llc2 bt --pid" can
// run outside of a debugger script at all, at the cost of being a much
// more limited stand-in for frame/variable introspection than a real
// debugger provides (see the scope note in DESIGN.md).
package ptracehost

import (
	"fmt"
	"runtime"

	"github.com/elastic/go-seccomp-bpf/arch"
	"golang.org/x/sys/unix"

	"github.com/itrofimow/llc2/internal/hostapi"
)

// guardX86_64 rejects attaching on anything but an x86_64 host: the
// control-block/fcontext/ucontext layouts this tool decodes are bit-exact
// x86_64 SysV contracts and aren't portable to other architectures.
func guardX86_64() error {
	if runtime.GOARCH != "amd64" {
		return fmt.Errorf("ptracehost: unsupported architecture %q, llc2 only understands x86_64 SysV coroutines", runtime.GOARCH)
	}
	if _, err := arch.GetInfo(""); err != nil {
		return fmt.Errorf("ptracehost: failed to resolve architecture info: %w", err)
	}
	return nil
}

// Host is a hostapi.Debugger backed by a single PTRACE_ATTACH'd process.
type Host struct {
	width int
	proc  *Process
}

// Attach stops pid with PTRACE_ATTACH and returns a Host wrapping it.
// Callers should Detach when done to let the process continue.
func Attach(pid int, terminalWidth int) (*Host, error) {
	if err := guardX86_64(); err != nil {
		return nil, err
	}
	if err := unix.PtraceAttach(pid); err != nil {
		return nil, fmt.Errorf("ptracehost: PTRACE_ATTACH(%d): %w", pid, err)
	}
	var ws unix.WaitStatus
	if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
		return nil, fmt.Errorf("ptracehost: waiting for pid %d to stop: %w", pid, err)
	}
	if !ws.Stopped() {
		_ = unix.PtraceDetach(pid)
		return nil, fmt.Errorf("ptracehost: pid %d did not stop after PTRACE_ATTACH (status=0x%x)", pid, ws)
	}

	return &Host{width: terminalWidth, proc: newProcess(pid)}, nil
}

// Detach lets the traced process resume running freely.
func (h *Host) Detach() error {
	return unix.PtraceDetach(h.proc.pid)
}

func (h *Host) TerminalWidth() int { return h.width }

// Process exposes the attached process directly, mainly so callers can
// hand it to btrender as a StringReader.
func (h *Host) Process() *Process { return h.proc }

func (h *Host) SelectedTarget() (hostapi.Target, bool) {
	return &target{proc: h.proc}, true
}

type target struct {
	proc *Process
}

func (t *target) Process() (hostapi.Process, bool) {
	return t.proc, true
}
