package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/codewandler/pharmacyrt-go/internal/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	debug      bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "pharmacy-assistant",
		Short:        "Realtime Hebrew voice assistant for pharmacy questions",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if opts.debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to the YAML config file")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logs")

	cmd.AddCommand(newServeCommand(opts), newChatCommand(opts))
	return cmd
}

func (o *rootOptions) load() (config.Config, error) {
	cfg, warnings, err := config.Load(o.configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	for _, w := range warnings {
		slog.Warn(w)
	}
	return cfg, nil
}
