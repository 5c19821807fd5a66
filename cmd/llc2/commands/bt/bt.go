// Package bt implements "llc2 bt": attaches to a running process and
// renders the backtrace of any sleeping userver coroutine it finds.
package bt

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/itrofimow/llc2/internal/btrender"
	"github.com/itrofimow/llc2/internal/orchestrator"
	"github.com/itrofimow/llc2/internal/ptracehost"
)

func Example() string {
	return "llc2 bt --pid 12345 -f"
}

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "bt",
		Short:                 "Backtrace sleeping coroutines in an attached process",
		Example:               Example(),
		Args:                  cobra.NoArgs,
		RunE:                  action,
		DisableFlagsInUseLine: true,
	}
	flags := cmd.Flags()
	flags.Int("pid", 0, "pid of the process to attach to (required)")
	flags.BoolP("full", "f", false, "full mode: include frame arguments and locals")
	flags.StringP("stack", "s", "", "only process the coroutine stack at this hex address")
	flags.Int("width", 0, "terminal width used for output formatting (values <= 0 mean 80; the terminal is not queried)")
	return cmd
}

func action(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()

	pid, err := flags.GetInt("pid")
	if err != nil {
		return err
	}
	if pid <= 0 {
		return fmt.Errorf("--pid is required")
	}

	width, err := flags.GetInt("width")
	if err != nil {
		return err
	}
	if width <= 0 {
		width = 80
	}

	full, err := flags.GetBool("full")
	if err != nil {
		return err
	}
	stackAddr, err := flags.GetString("stack")
	if err != nil {
		return err
	}

	host, err := ptracehost.Attach(pid, width)
	if err != nil {
		return err
	}
	defer host.Detach()

	var rawArgs []string
	if full {
		rawArgs = append(rawArgs, "-f")
	}
	if stackAddr != "" {
		rawArgs = append(rawArgs, "-s", stackAddr)
	}

	ro := &cobraReturnObject{cmd: cmd}

	run := orchestrator.Run{
		Debugger:  host,
		Sentinels: btrender.DefaultSentinels(),
		Strings:   host.Process(),
	}
	return run.Execute(rawArgs, ro)
}

// cobraReturnObject adapts cobra's command output stream to
// hostapi.ReturnObject.
type cobraReturnObject struct {
	cmd    *cobra.Command
	failed bool
}

func (r *cobraReturnObject) Printf(format string, args ...any) int {
	s := fmt.Sprintf(format, args...)
	r.cmd.Print(s)
	return len(s)
}

func (r *cobraReturnObject) AppendMessage(s string) {
	r.cmd.Println(s)
}

func (r *cobraReturnObject) SetFailure() {
	r.failed = true
}
