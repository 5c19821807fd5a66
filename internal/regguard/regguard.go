// Package regguard provides scoped acquisition of a thread's
// general-purpose registers: install a coroutine's {rsp,rbp,rip}, and
// guarantee the thread's real registers are restored no matter how the
// caller's scope exits. This is CurrentFrameRegistersGuard translated from
// C++ RAII into an io.Closer.
package regguard

import (
	"log/slog"

	"github.com/itrofimow/llc2/internal/fiberctx"
	"github.com/itrofimow/llc2/internal/hostapi"
)

// Guard holds at most one saved snapshot across however many Install
// calls happen within its lifetime; Close restores that snapshot exactly
// once (or does nothing if Install was never called).
type Guard struct {
	thread  hostapi.Thread
	saved   *fiberctx.Registers
	hasSave bool
}

// New creates a guard over thread. Callers must defer Close.
func New(thread hostapi.Thread) *Guard {
	return &Guard{thread: thread}
}

// Install writes regs into the thread's selected-frame registers and PC.
// On the first call within this guard's lifetime it captures the
// pre-install values so Close can restore them; subsequent calls overwrite
// the live registers but leave the saved snapshot untouched.
func (g *Guard) Install(regs *fiberctx.Registers) error {
	frame := g.thread.SelectedFrame()
	current, err := frame.Registers()
	if err != nil {
		return err
	}

	if !g.hasSave {
		g.saved = &fiberctx.Registers{RSP: current.RSP(), RBP: current.RBP(), RIP: current.RIP()}
		g.hasSave = true
	}

	return g.write(frame, current, regs)
}

func (g *Guard) write(frame hostapi.Frame, dst hostapi.GPRegisters, regs *fiberctx.Registers) error {
	if err := dst.SetRSP(regs.RSP); err != nil {
		slog.Debug("failed to update register", "reg", "rsp", "err", err)
	}
	if err := dst.SetRBP(regs.RBP); err != nil {
		slog.Debug("failed to update register", "reg", "rbp", "err", err)
	}
	if err := dst.SetRIP(regs.RIP); err != nil {
		slog.Debug("failed to update register", "reg", "rip", "err", err)
	}
	return frame.SetPC(regs.RIP)
}

// Close restores the original registers captured by the first Install
// call, if any. Restoration is attempted unconditionally: per-register
// write failures are logged, never returned, so a guard scope always
// finishes its restore attempt.
func (g *Guard) Close() error {
	if !g.hasSave {
		return nil
	}
	frame := g.thread.SelectedFrame()
	current, err := frame.Registers()
	if err != nil {
		return err
	}
	return g.write(frame, current, g.saved)
}
