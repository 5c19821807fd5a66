// Package init implements "llc2 init", the command that publishes the
// process-wide settings singleton internal/settings holds.
package init

import (
	"github.com/spf13/cobra"

	"github.com/itrofimow/llc2/internal/settings"
)

func Example() string {
	return "llc2 init -s 262144 -c ucontext -m"
}

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "init",
		Short:                 "Initialize llc2 settings",
		Example:               Example(),
		Args:                  cobra.NoArgs,
		RunE:                  action,
		DisableFlagsInUseLine: true,
	}
	flags := cmd.Flags()
	flags.Uint64P("stack-size", "s", 0, "coroutine stack size in bytes, >= 16KiB (required)")
	flags.StringP("context", "c", "ucontext", "context implementation: ucontext|fcontext")
	flags.BoolP("magic", "m", false, "control block carries an integrity magic")
	flags.StringP("filter", "f", "", "reserved filter, parsed but not consumed by bt")
	flags.StringP("truncate", "t", "", "reserved truncation point, parsed but not consumed by bt")
	return cmd
}

func action(cmd *cobra.Command, _ []string) error {
	var rawArgs []string
	for _, shorthand := range []string{"s", "c", "m", "f", "t"} {
		flag := cmd.Flags().ShorthandLookup(shorthand)
		if flag == nil || !flag.Changed {
			continue
		}
		if flag.Value.Type() == "bool" {
			rawArgs = append(rawArgs, "-"+shorthand)
			continue
		}
		rawArgs = append(rawArgs, "-"+shorthand, flag.Value.String())
	}

	s, err := settings.Init(rawArgs)
	if err != nil {
		cmd.PrintErrf("init failed: %v\n", err)
		return err
	}

	cmd.Printf("llc2 initialized: stack_size=%d context_impl=%s with_magic=%t filter_by=%s truncate_at=%s mmap_size=%d real_stack_size=%d\n",
		s.StackSize, s.ContextImpl, s.WithMagic, orNull(s.FilterBy), orNull(s.TruncateAt), s.MmapSize(), s.RealStackSize())
	return nil
}

func orNull(s *string) string {
	if s == nil {
		return "(null)"
	}
	return *s
}
