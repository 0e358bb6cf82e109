// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	"github.com/sigil-dev/chatrelay/internal/channel/telegram"
	"github.com/sigil-dev/chatrelay/internal/config"
	"github.com/sigil-dev/chatrelay/internal/secrets"
	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
)

// telegramAPIBase is the Bot API host probed by doctor. Tests point it at a
// local server.
var telegramAPIBase = telegram.DefaultAPIBase

const doctorProbeTimeout = 10 * time.Second

func newDoctorCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check configuration, credentials, the Telegram bot token, the completion backend, and disk space.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, v)
		},
	}
}

type check struct {
	name string
	fn   func() string
}

func runDoctor(cmd *cobra.Command, v *viper.Viper) error {
	w := cmd.OutOrStdout()
	ctx := cmd.Context()

	cfg, cfgErr := config.FromViper(v)

	checks := []check{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", func() string { return checkConfig(v, cfgErr) }},
	}
	if cfg != nil {
		checks = append(checks,
			check{"Completion Key", func() string { return checkSecret(cfg.Completion.APIKey, "GEMINI_API_KEY") }},
			check{"Backend", func() string { return checkBackend(ctx, cfg) }},
			check{"Telegram", func() string { return checkTelegram(ctx, cfg.Transport.Telegram.Token) }},
		)
	}
	checks = append(checks, check{"Disk Space", checkDiskSpace})

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

func checkBinary() string {
	return currentBuild().String()
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig(v *viper.Viper, err error) string {
	if err != nil {
		return fmt.Sprintf("invalid: %s", err)
	}
	if cfgFile := v.ConfigFileUsed(); cfgFile != "" {
		return fmt.Sprintf("loaded from %s", cfgFile)
	}
	return "using defaults (no config file found)"
}

func checkSecret(value, env string) string {
	switch {
	case value == "":
		return fmt.Sprintf("missing (set %s)", env)
	case secrets.IsKeyringURI(value):
		return fmt.Sprintf("unresolved keyring reference %s", value)
	default:
		return "set (" + config.Mask(value) + ")"
	}
}

func checkBackend(ctx context.Context, cfg *config.Config) string {
	client, err := backendFactory(ctx, cfg.Completion.Backend, completionOptions(cfg))
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s, model %s", client.Backend(), client.Model())
}

func checkTelegram(ctx context.Context, token string) string {
	if token == "" {
		return "skipped (set TELEGRAM_BOT_TOKEN)"
	}
	if secrets.IsKeyringURI(token) {
		return fmt.Sprintf("unresolved keyring reference %s", token)
	}

	ctx, cancel := context.WithTimeout(ctx, doctorProbeTimeout)
	defer cancel()

	bot, err := telegram.ValidateToken(ctx, http.DefaultClient, telegramAPIBase, token)
	if relayerr.IsUnauthorized(err) {
		return fmt.Sprintf("rejected: %s", err)
	}
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("ok, bot @%s (id %d)", bot.Username, bot.ID)
}

func checkDiskSpace() string {
	path, err := os.Getwd()
	if err != nil {
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
