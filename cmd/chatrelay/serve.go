// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/sigil-dev/chatrelay/internal/channel/telegram"
	"github.com/sigil-dev/chatrelay/internal/config"
	"github.com/sigil-dev/chatrelay/internal/server"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the keep-alive endpoint",
		Long: "Connect to the completion service and Telegram, then relay messages until interrupted. " +
			"The process refuses to start when a credential is missing or the completion client cannot be created.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, v)
		},
	}

	cmd.Flags().Int("port", 0, "override networking.port")
	_ = v.BindPFlag("networking.port", cmd.Flags().Lookup("port"))

	return cmd
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	if err := cfg.CheckCredentials(true); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	relay, err := WireRelay(ctx, cfg, cfg.Sessions.Memory)
	if err != nil {
		return err
	}
	defer relay.Close()

	bot, err := telegram.New(relay.Manager, telegram.Options{
		Token:       cfg.Transport.Telegram.Token,
		PollTimeout: cfg.Transport.Telegram.PollTimeout,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		ListenAddr: cfg.Networking.Addr(),
		Version:    version,
	}, relay.Client, relay.Manager)
	if err != nil {
		return err
	}

	return runServices(ctx, stop, srv, bot, relay)
}

type runner interface {
	Run(ctx context.Context) error
}

// runServices runs the HTTP server, the transport, and the session janitor
// until ctx ends or one of them fails. The transport stopping on its own
// shuts everything down.
func runServices(ctx context.Context, stop context.CancelFunc, srv *server.Server, transport runner, relay *Relay) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error {
		defer stop()
		return transport.Run(gctx)
	})
	if relay.Janitor != nil {
		g.Go(func() error { return relay.Janitor.Run(gctx) })
	}

	err := g.Wait()
	slog.Info("chatrelay stopped", "stats", relay.Manager.Stats())
	return err
}
