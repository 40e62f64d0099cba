package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"growtube/internal/config"
	"growtube/internal/logs"

	"github.com/spf13/cobra"
)

type rootFlags struct {
	useColour bool
	debug     bool
}

func main() {
	config.LoadDotEnv()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flags := &rootFlags{useColour: logs.IsTerminal(os.Stderr)}
	root := &cobra.Command{
		Use:          "growtube",
		Short:        "GrowTube economy bot",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&flags.useColour, "use-colour", flags.useColour, "colour log output")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "log at debug level")

	root.AddCommand(
		newRunCmd(flags),
		newDBCmd(flags),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (f *rootFlags) logger(debug bool) *slog.Logger {
	logger := logs.New(os.Stderr, logs.Options{Debug: f.debug || debug, Colour: f.useColour})
	slog.SetDefault(logger)
	return logger
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadBotFromEnv()
			if err != nil {
				return err
			}
			return run(cmd.Context(), flags.logger(cfg.Debug), cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the database schema before starting")
	return cmd
}
