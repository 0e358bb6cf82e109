// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/chatrelay/internal/config"
	"github.com/sigil-dev/chatrelay/internal/conversation"
	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
)

// askConversationID names the single-shot conversation in logs.
const askConversationID = "cli-ask"

func newAskCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [prompt...]",
		Short: "Send one prompt without conversation memory",
		Long:  "Send a single prompt to the completion service and print the reply. With no arguments the prompt is read from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, v, args)
		},
	}
}

func runAsk(cmd *cobra.Command, v *viper.Viper, args []string) error {
	prompt := strings.Join(args, " ")
	if prompt == "" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return relayerr.Errorf(relayerr.CodeCLIInputInvalid, "reading prompt: %w", err)
		}
		prompt = string(raw)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return relayerr.New(relayerr.CodeCLIInputInvalid, "prompt must not be empty")
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	if err := cfg.CheckCredentials(false); err != nil {
		return err
	}

	relay, err := WireRelay(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer relay.Close()

	reply, err := relay.Manager.HandleMessage(cmd.Context(), askConversationID, prompt)
	if err != nil {
		if f, ok := conversation.AsFailure(err); ok {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), conversation.UserMessage(f.Kind))
		}
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), reply)
	return err
}
