// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sigil-dev/chatrelay/internal/config"
	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
)

func newConfigCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with credentials masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, v)
		},
	})

	return cmd
}

func runConfigShow(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return relayerr.Errorf(relayerr.CodeConfigParseInvalidFormat, "encoding config: %w", err)
	}

	w := cmd.OutOrStdout()
	if used := v.ConfigFileUsed(); used != "" {
		_, _ = fmt.Fprintf(w, "# loaded from %s\n", used)
	}
	_, err = w.Write(out)
	return err
}
