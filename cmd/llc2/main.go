package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	btcmd "github.com/itrofimow/llc2/cmd/llc2/commands/bt"
	initcmd "github.com/itrofimow/llc2/cmd/llc2/commands/init"
	"github.com/itrofimow/llc2/cmd/llc2/version"
	"github.com/itrofimow/llc2/internal/envutil"
)

var logLevel = new(slog.LevelVar)

func main() {
	logHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(logHandler))
	if err := newRootCommand().Execute(); err != nil {
		slog.Error("exiting with an error", "error", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "llc2",
		Short:         "Reconstructs backtraces of sleeping userver coroutines",
		Example:       btcmd.Example(),
		Version:       version.GetVersion(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cmd.PersistentFlags()
	flags.Bool("debug", envutil.Bool("DEBUG", false), "debug mode [$DEBUG]")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			logLevel.Set(slog.LevelDebug)
		}
		return nil
	}

	cmd.AddCommand(
		initcmd.New(),
		btcmd.New(),
	)
	return cmd
}
