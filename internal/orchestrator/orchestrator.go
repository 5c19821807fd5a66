// Package orchestrator is the top-level "llc2 bt" driver: it resolves
// debugger state, enumerates candidate regions, and composes
// regionscan/coroblock/fiberctx/regguard/btrender per region. This is
// BacktraceCmd::RealExecute translated into a free function.
package orchestrator

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/itrofimow/llc2/internal/btrender"
	"github.com/itrofimow/llc2/internal/coroblock"
	"github.com/itrofimow/llc2/internal/fiberctx"
	"github.com/itrofimow/llc2/internal/hostapi"
	"github.com/itrofimow/llc2/internal/regguard"
	"github.com/itrofimow/llc2/internal/regionscan"
	"github.com/itrofimow/llc2/internal/scopetimer"
	"github.com/itrofimow/llc2/internal/settings"
)

// BtArgs are the locally-parsed "llc2 bt" command-line arguments.
type BtArgs struct {
	Full         bool
	StackAddress *uint64
}

// ParseBtArgs mirrors ParseBtSettings: "-f" sets full mode, "-s <hex>"
// restricts processing to one stack. A malformed hex token (anything the
// full string doesn't parse as hex) discards the filter rather than
// failing the command, matching the source's strtoul + "did we consume
// the whole token" check.
func ParseBtArgs(args []string) BtArgs {
	var out BtArgs
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			out.Full = true
		case "-s":
			if i+1 >= len(args) {
				continue
			}
			i++
			v, err := strconv.ParseUint(args[i], 16, 64)
			if err != nil {
				continue
			}
			out.StackAddress = &v
		}
	}
	return out
}

// Run bundles the collaborators one "llc2 bt" invocation needs: the
// debugger host, the sentinel strings the renderer scans for, and the
// string reader that backs span extraction.
type Run struct {
	Debugger  hostapi.Debugger
	Sentinels btrender.Sentinels
	Strings   btrender.StringReader
}

var (
	errNotInitialized = errors.New("LLC2 plugin is not initialized")
	errNoTarget       = errors.New("No target selected")
	errNoProcess      = errors.New("No process launched")
	errNoThread       = errors.New("No thread selected")
)

// Execute runs one "llc2 bt" invocation. It always writes diagnostics to
// ro; the returned error, if any, is also the failure message already
// written to ro. An unexpected panic
// anywhere in the region loop (e.g. a malformed control block driving an
// out-of-range read past what ReadMemory itself catches) is recovered
// here and turned into an error, mirroring CmdBase::DoExecute's
// catch(std::exception) at the command boundary.
func (r Run) Execute(args []string, ro hostapi.ReturnObject) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("llc2 bt: recovered from panic: %v", rec)
			ro.Printf("%s\n", err.Error())
			ro.SetFailure()
		}
	}()

	btArgs := ParseBtArgs(args)

	s, ok := settings.Get()
	if !ok {
		ro.Printf("%s\n", errNotInitialized.Error())
		ro.SetFailure()
		return errNotInitialized
	}

	width := r.Debugger.TerminalWidth()

	target, ok := r.Debugger.SelectedTarget()
	if !ok {
		ro.Printf("%s\n", errNoTarget.Error())
		ro.SetFailure()
		return errNoTarget
	}
	process, ok := target.Process()
	if !ok {
		ro.Printf("%s\n", errNoProcess.Error())
		ro.SetFailure()
		return errNoProcess
	}
	thread, ok := process.SelectedThread()
	if !ok {
		ro.Printf("%s\n", errNoThread.Error())
		ro.SetFailure()
		return errNoThread
	}

	defer scopetimer.Start(ro, "llc2 bt")()

	regions := regionscan.Candidates(process, s.RealStackSize(), ro)

	guard := regguard.New(thread)
	defer guard.Close()

	for _, region := range regions {
		stackAddress := region.Begin

		if btArgs.StackAddress != nil && *btArgs.StackAddress != stackAddress {
			continue
		}

		fiberPtr, err := coroblock.FiberPointer(process, region, s, ro)
		if err != nil {
			continue
		}

		regs, err := fiberctx.Extract(process, fiberPtr, s, ro)
		if err != nil {
			continue
		}

		stop := scopetimer.Start(ro, "coro backtrace")
		if err := guard.Install(regs); err != nil {
			stop()
			continue
		}
		btrender.Render(stackAddress, thread, ro, btrender.Options{
			Full:      btArgs.Full,
			Sentinels: r.Sentinels,
			Strings:   r.Strings,
			Width:     width,
		})
		stop()
	}

	return nil
}
