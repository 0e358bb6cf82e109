// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/chatrelay/internal/channel/console"
	"github.com/sigil-dev/chatrelay/internal/config"
)

func newChatCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the model in the terminal",
		Long:  "Start an interactive conversation with memory. /start or /reset begins a new conversation, /exit quits.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, v)
		},
	}

	cmd.Flags().String("id", console.DefaultConversationID, "conversation id")
	cmd.Flags().Bool("no-memory", false, "answer every prompt independently")

	return cmd
}

func runChat(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	if err := cfg.CheckCredentials(false); err != nil {
		return err
	}

	noMemory, _ := cmd.Flags().GetBool("no-memory")
	relay, err := WireRelay(cmd.Context(), cfg, cfg.Sessions.Memory && !noMemory)
	if err != nil {
		return err
	}
	defer relay.Close()

	id, _ := cmd.Flags().GetString("id")
	repl := console.New(relay.Manager, console.Options{
		In:             cmd.InOrStdin(),
		Out:            cmd.OutOrStdout(),
		ConversationID: id,
	})
	return repl.Run(cmd.Context())
}
