package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/codewandler/pharmacyrt-go/events"
	"github.com/codewandler/pharmacyrt-go/internal/pharmacy"
	"github.com/codewandler/pharmacyrt-go/internal/server"
	"github.com/codewandler/pharmacyrt-go/internal/upstream"
	"github.com/spf13/cobra"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the backend that creates realtime sessions and executes pharmacy functions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ListenAddr = addr
			}

			logger := slog.Default()
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			api := upstream.New(cfg.OpenAIAPIKey,
				upstream.WithBaseURL(cfg.OpenAIBaseURL),
				upstream.WithLogger(logger),
			)

			h := server.Handler(server.Options{
				Sessions: api,
				Executor: pharmacy.NewCatalog(),
				Session:  cfg.Session(pharmacy.SystemPrompt, pharmacy.Tools(), events.AudioFormatPCM16),
				Logger:   logger,
			})

			return server.Serve(ctx, cfg.ListenAddr, h, logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides listen_addr")
	return cmd
}
